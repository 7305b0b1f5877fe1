package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"qctrack/pkg/domain"
)

func seedProduct(t *testing.T, store *Store, sku string) Product {
	t.Helper()
	var created Product
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateProduct(Product{SKU: sku, Name: "Ashwagandha Extract"})
		return err
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return created
}

func seedLot(t *testing.T, store *Store, productID string) Lot {
	t.Helper()
	var created Lot
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateLot(Lot{Number: "L-2401", ProductIDs: []string{productID}})
		return err
	})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return created
}

func TestStoreCRUDRoundTrip(t *testing.T) {
	store := NewStore(nil)
	product := seedProduct(t, store, "SKU-1")
	lot := seedLot(t, store, product.ID)

	if lot.Status != domain.LotStatusReceived {
		t.Fatalf("new lot status = %s", lot.Status)
	}
	if lot.ReceivedAt.IsZero() || lot.CreatedAt.IsZero() {
		t.Fatal("timestamps not assigned")
	}

	var spec TestSpecification
	var result TestResult
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		spec, err = tx.CreateTestSpecification(TestSpecification{
			ProductID:     product.ID,
			TestName:      "Lead",
			Specification: "<= 0.5 ppm",
			Required:      true,
		})
		if err != nil {
			return err
		}
		result, err = tx.CreateTestResult(TestResult{
			LotID:         lot.ID,
			TestName:      "Lead",
			Value:         "0.2",
			Specification: "<= 0.5 ppm",
		})
		return err
	})
	if err != nil {
		t.Fatalf("create spec and result: %v", err)
	}
	if result.Status != domain.ResultStatusDraft {
		t.Fatalf("new result status = %s", result.Status)
	}

	if got, ok := store.GetTestResult(result.ID); !ok || got.Value != "0.2" {
		t.Fatalf("get result: %v %v", got, ok)
	}
	if specs := store.ListTestSpecifications(); len(specs) != 1 || specs[0].ID != spec.ID {
		t.Fatalf("list specifications: %v", specs)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateTestResult(result.ID, func(r *TestResult) error {
			r.Value = "0.3"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update result: %v", err)
	}
	if got, _ := store.GetTestResult(result.ID); got.Value != "0.3" {
		t.Fatalf("update not visible: %q", got.Value)
	}
}

func TestStoreRejectsDanglingReferences(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateLot(Lot{Number: "L-1", ProductIDs: []string{"missing"}})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing product error, got %v", err)
	}

	product := seedProduct(t, store, "SKU-1")
	seedLot(t, store, product.ID)
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteProduct(product.ID)
	})
	if err == nil || !strings.Contains(err.Error(), "still referenced") {
		t.Fatalf("expected reference guard, got %v", err)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "block_all",
			Severity: domain.SeverityBlock,
			Message:  "blocked",
		})
	}
	return res, nil
}

func TestStoreBlockingViolationAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateProduct(Product{SKU: "SKU-1"})
		return err
	})
	var violation domain.RuleViolationError
	if err == nil {
		t.Fatal("expected rule violation error")
	}
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %T", err)
	}
	if len(store.ListProducts()) != 0 {
		t.Fatal("blocked transaction must not commit")
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	store := NewStore(nil)
	product := seedProduct(t, store, "SKU-1")
	lot := seedLot(t, store, product.ID)

	snapshot := store.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)

	if got, ok := restored.GetLot(lot.ID); !ok || got.Number != "L-2401" {
		t.Fatalf("restored lot: %v %v", got, ok)
	}
	if got, ok := restored.GetProduct(product.ID); !ok || got.SKU != "SKU-1" {
		t.Fatalf("restored product: %v %v", got, ok)
	}
}

func TestMigrateSnapshotDropsOrphans(t *testing.T) {
	snapshot := Snapshot{
		Products: map[string]Product{"p1": {Base: domain.Base{ID: "p1"}, SKU: "SKU-1"}},
		Lots: map[string]Lot{
			"l1": {Base: domain.Base{ID: "l1"}, Number: "L-1", ProductIDs: []string{"p1", "ghost"}},
		},
		Specifications: map[string]TestSpecification{
			"s1": {Base: domain.Base{ID: "s1"}, ProductID: "p1", TestName: "Lead"},
			"s2": {Base: domain.Base{ID: "s2"}, ProductID: "ghost", TestName: "Arsenic"},
		},
		Results: map[string]TestResult{
			"r1": {Base: domain.Base{ID: "r1"}, LotID: "l1", TestName: "Lead"},
			"r2": {Base: domain.Base{ID: "r2"}, LotID: "ghost", TestName: "Lead"},
		},
	}

	store := NewStore(nil)
	store.ImportState(snapshot)

	if specs := store.ListTestSpecifications(); len(specs) != 1 || specs[0].ID != "s1" {
		t.Fatalf("orphan specification survived: %v", specs)
	}
	if results := store.ListTestResults(); len(results) != 1 || results[0].ID != "r1" {
		t.Fatalf("orphan result survived: %v", results)
	}
	lot, _ := store.GetLot("l1")
	if len(lot.ProductIDs) != 1 || lot.ProductIDs[0] != "p1" {
		t.Fatalf("ghost product reference survived: %v", lot.ProductIDs)
	}
	if r, _ := store.GetTestResult("r1"); r.Status != domain.ResultStatusDraft {
		t.Fatalf("missing status not defaulted: %q", r.Status)
	}
}

func TestStoreCloneIsolation(t *testing.T) {
	store := NewStore(nil)
	product := seedProduct(t, store, "SKU-1")
	lot := seedLot(t, store, product.ID)

	got, _ := store.GetLot(lot.ID)
	got.ProductIDs[0] = "mutated"
	if fresh, _ := store.GetLot(lot.ID); fresh.ProductIDs[0] == "mutated" {
		t.Fatal("returned lot shares backing array with store state")
	}
}
