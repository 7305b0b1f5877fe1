// Package export renders a lot's reconciled result grid as an XLSX workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"qctrack/internal/grid"
	"qctrack/pkg/domain"
)

// SheetName is the single worksheet carrying the result grid.
const SheetName = "Results"

var headerRow = []string{
	"Test", "Category", "Result", "Unit", "Specification", "Method", "Verdict", "Notes", "Status",
}

// WriteGrid renders the lot's rows, in grid order, to w. Placeholder rows
// export with an empty result and a pending verdict, so the workbook reads
// as a checklist of outstanding work.
func WriteGrid(w io.Writer, lot domain.Lot, rows []grid.Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("export: create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("export: drop default sheet: %w", err)
	}

	if err := f.SetCellValue(SheetName, "A1", fmt.Sprintf("Lot %s", lot.Number)); err != nil {
		return fmt.Errorf("export: write title: %w", err)
	}
	if err := f.SetCellValue(SheetName, "B1", string(lot.Status)); err != nil {
		return fmt.Errorf("export: write status: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A2", &headerRow); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	for i, row := range rows {
		cells := []any{
			row.TestName,
			row.Category,
			row.Value,
			row.Unit,
			row.Specification,
			row.Method,
			string(row.Verdict),
			row.Notes,
			string(row.Status),
		}
		axis := fmt.Sprintf("A%d", i+3)
		if err := f.SetSheetRow(SheetName, axis, &cells); err != nil {
			return fmt.Errorf("export: write row %d: %w", i, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}
