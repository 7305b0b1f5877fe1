package grid

import (
	"reflect"
	"testing"

	"qctrack/internal/speceval"
	"qctrack/pkg/domain"
)

func spec(id, product, name, category, unit, specification, method string) domain.TestSpecification {
	return domain.TestSpecification{
		Base:          domain.Base{ID: id},
		ProductID:     product,
		TestName:      name,
		Category:      category,
		Unit:          unit,
		Specification: specification,
		Required:      true,
		DefaultMethod: method,
	}
}

func result(id, lot, name, value, unit, specification string) domain.TestResult {
	return domain.TestResult{
		Base:          domain.Base{ID: id},
		LotID:         lot,
		TestName:      name,
		Value:         value,
		Unit:          unit,
		Specification: specification,
		Status:        domain.ResultStatusDraft,
	}
}

func TestReconcileAllPlaceholders(t *testing.T) {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Total Plate Count", "Microbiological", "CFU/g", "< 10,000 CFU/g", "USP <61>"),
		spec("s2", "p1", "Yeast and Mold", "Microbiological", "CFU/g", "< 1,000 CFU/g", "USP <61>"),
		spec("s3", "p1", "Appearance", "Physical", "", "Conforms", "Visual"),
	}

	rows := Reconcile(specs, nil)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if !row.ID.IsPlaceholder() {
			t.Errorf("row %d: expected placeholder identity, got %s", i, row.ID)
		}
		if row.Verdict != speceval.VerdictPending {
			t.Errorf("row %d: expected pending verdict, got %s", i, row.Verdict)
		}
		if row.TestName != specs[i].TestName {
			t.Errorf("row %d: order broken, got %q want %q", i, row.TestName, specs[i].TestName)
		}
	}
	if rows[0].Method != "USP <61>" {
		t.Errorf("placeholder method not seeded from specification default: %q", rows[0].Method)
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Total Plate Count", "Microbiological", "CFU/g", "< 10,000 CFU/g", "USP <61>"),
		spec("s2", "p1", "Lead", "Heavy Metals", "ppm", "<= 0.5 ppm", "ICP-MS"),
	}
	results := []domain.TestResult{
		result("r1", "l1", "Lead", "0.2", "ppm", "<= 0.5 ppm"),
		result("r2", "l1", "Cadmium", "0.1", "ppm", "<= 0.3 ppm"),
	}

	first := Reconcile(specs, results)
	second := Reconcile(specs, results)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reconciliation is not deterministic:\n%v\n%v", first, second)
	}
}

func TestReconcileMatchAndAdditionalOrdering(t *testing.T) {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Total Plate Count", "Microbiological", "CFU/g", "< 10,000 CFU/g", "USP <61>"),
		spec("s2", "p1", "Lead", "Heavy Metals", "ppm", "<= 0.5 ppm", "ICP-MS"),
	}
	results := []domain.TestResult{
		result("r1", "l1", "Moisture", "4.1", "%", "<= 6 %"),
		result("r2", "l1", "Lead", "0.2", "ppm", "<= 0.5 ppm"),
		result("r3", "l1", "Ash", "2.0", "%", "<= 3 %"),
	}

	rows := Reconcile(specs, results)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	// Specification-derived rows first, in specification order.
	if rows[0].TestName != "Total Plate Count" || !rows[0].ID.IsPlaceholder() {
		t.Errorf("row 0 unexpected: %+v", rows[0])
	}
	if rows[1].TestName != "Lead" || rows[1].ID.IsPlaceholder() || rows[1].Additional {
		t.Errorf("row 1 should be the matched Lead result: %+v", rows[1])
	}
	if rows[1].Verdict != speceval.VerdictPass {
		t.Errorf("matched Lead row verdict = %s, want pass", rows[1].Verdict)
	}

	// Additional rows after, in store order.
	if !rows[2].Additional || rows[2].TestName != "Moisture" {
		t.Errorf("row 2 unexpected: %+v", rows[2])
	}
	if !rows[3].Additional || rows[3].TestName != "Ash" {
		t.Errorf("row 3 unexpected: %+v", rows[3])
	}
}

func TestReconcileDeduplicatesAcrossProducts(t *testing.T) {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Lead", "Heavy Metals", "ppm", "<= 0.5 ppm", "ICP-MS"),
		spec("s2", "p2", "Lead", "Heavy Metals", "ppm", "<= 1.0 ppm", "ICP-OES"),
		spec("s3", "p2", "Arsenic", "Heavy Metals", "ppm", "<= 0.3 ppm", "ICP-MS"),
	}

	rows := Reconcile(specs, nil)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after de-duplication, got %d", len(rows))
	}
	if rows[0].Specification != "<= 0.5 ppm" {
		t.Errorf("first occurrence should win: got %q", rows[0].Specification)
	}
	if rows[1].TestName != "Arsenic" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestReconcileDuplicateResultNames(t *testing.T) {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Lead", "Heavy Metals", "ppm", "<= 0.5 ppm", "ICP-MS"),
	}
	results := []domain.TestResult{
		result("r1", "l1", "Lead", "0.2", "ppm", "<= 0.5 ppm"),
		result("r2", "l1", "Lead", "0.3", "ppm", "<= 0.5 ppm"),
	}

	rows := Reconcile(specs, results)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if id, _ := rows[0].ID.ResultID(); id != "r1" {
		t.Errorf("first result should claim the specification row, got %s", rows[0].ID)
	}
	if !rows[1].Additional {
		t.Errorf("second duplicate should be an additional row: %+v", rows[1])
	}
}

func TestReconcilePositionStableAcrossPersistence(t *testing.T) {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Total Plate Count", "Microbiological", "CFU/g", "< 10,000 CFU/g", "USP <61>"),
		spec("s2", "p1", "Lead", "Heavy Metals", "ppm", "<= 0.5 ppm", "ICP-MS"),
		spec("s3", "p1", "Moisture", "Physical", "%", "<= 6 %", "Loss on drying"),
	}

	before := Reconcile(specs, nil)
	after := Reconcile(specs, []domain.TestResult{
		result("r1", "l1", "Lead", "0.2", "ppm", "<= 0.5 ppm"),
	})

	if len(before) != len(after) {
		t.Fatalf("row count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].TestName != after[i].TestName {
			t.Errorf("row %d moved: %q vs %q", i, before[i].TestName, after[i].TestName)
		}
	}
	if after[1].ID.IsPlaceholder() {
		t.Errorf("Lead row should have adopted persisted identity: %s", after[1].ID)
	}
}
