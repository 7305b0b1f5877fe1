package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"qctrack/internal/grid"
	"qctrack/pkg/domain"
)

func TestWriteGridRoundTrip(t *testing.T) {
	lot := domain.Lot{Number: "L-100", Status: domain.LotStatusInTesting}
	specs := []domain.TestSpecification{
		{
			Base:          domain.Base{ID: "s1"},
			TestName:      "Total Plate Count",
			Category:      "Micro",
			Unit:          "CFU/g",
			Specification: "< 10,000",
			DefaultMethod: "USP <61>",
			Required:      true,
		},
		{
			Base:          domain.Base{ID: "s2"},
			TestName:      "Lead",
			Category:      "Heavy Metals",
			Unit:          "ppm",
			Specification: "< 0.5",
			Required:      true,
		},
	}
	results := []domain.TestResult{
		{
			Base:          domain.Base{ID: "r1"},
			LotID:         "l1",
			TestName:      "Total Plate Count",
			Value:         "1,200",
			Unit:          "CFU/g",
			Specification: "< 10,000",
			Method:        "USP <61>",
			Status:        domain.ResultStatusDraft,
		},
	}
	rows := grid.Reconcile(specs, results)

	var buf bytes.Buffer
	if err := WriteGrid(&buf, lot, rows); err != nil {
		t.Fatalf("write grid: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != SheetName {
		t.Fatalf("sheets = %v", sheets)
	}

	cells, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(cells) != 4 {
		t.Fatalf("row count = %d, want 4", len(cells))
	}
	if cells[0][0] != "Lot L-100" {
		t.Fatalf("title = %q", cells[0][0])
	}
	if cells[1][0] != "Test" || cells[1][6] != "Verdict" {
		t.Fatalf("header = %v", cells[1])
	}
	if cells[2][0] != "Total Plate Count" || cells[2][6] != "pass" {
		t.Fatalf("first data row = %v", cells[2])
	}
	if cells[3][0] != "Lead" || cells[3][6] != "pending" {
		t.Fatalf("placeholder row = %v", cells[3])
	}
	if len(cells[3]) > 2 && cells[3][2] != "" {
		t.Fatalf("placeholder result cell = %q, want empty", cells[3][2])
	}
}
