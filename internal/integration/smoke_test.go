// Package integration exercises the full stack: service, rules, reconciler,
// edit session, and save coordinator working against the in-memory store.
package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"qctrack/internal/adapters/gridapi"
	"qctrack/internal/core"
	"qctrack/internal/grid"
	"qctrack/pkg/domain"
)

type focusRecorder struct {
	targets []grid.ExitTarget
}

func (f *focusRecorder) RequestFocus(target grid.ExitTarget) {
	f.targets = append(f.targets, target)
}

type rebindRecorder struct {
	mu    sync.Mutex
	pairs [][2]grid.RowID
}

func (r *rebindRecorder) record(placeholder, persisted grid.RowID) {
	r.mu.Lock()
	r.pairs = append(r.pairs, [2]grid.RowID{placeholder, persisted})
	r.mu.Unlock()
}

func seedCatalog(t *testing.T, svc *core.Service) domain.Lot {
	t.Helper()
	ctx := context.Background()
	product, _, err := svc.CreateProduct(ctx, domain.Product{SKU: "SKU-1", Name: "Protein Blend"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	specs := []domain.TestSpecification{
		{ProductID: product.ID, TestName: "Total Plate Count", Unit: "CFU/g", Specification: "< 10,000", Required: true, DefaultMethod: "USP <61>"},
		{ProductID: product.ID, TestName: "Lead", Unit: "ppm", Specification: "< 0.5", Required: true},
	}
	for _, spec := range specs {
		if _, _, err := svc.CreateTestSpecification(ctx, spec); err != nil {
			t.Fatalf("create spec %s: %v", spec.TestName, err)
		}
	}
	lot, _, err := svc.CreateLot(ctx, domain.Lot{Number: "L-100", ProductIDs: []string{product.ID}})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return lot
}

func reconcileLot(t *testing.T, svc *core.Service, lotID string) []grid.Row {
	t.Helper()
	ctx := context.Background()
	specs, err := svc.ListSpecificationsForLot(ctx, lotID)
	if err != nil {
		t.Fatalf("list specs: %v", err)
	}
	results, err := svc.ListResultsForLot(ctx, lotID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	return grid.Reconcile(specs, results)
}

// A technician tabs through the whole grid typing values, the coordinator
// persists placeholder rows as they are committed, and the lot closes out
// through review with approved immutable results.
func TestRecordingPipeline(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()
	lot := seedCatalog(t, svc)
	rows := reconcileLot(t, svc, lot.ID)
	if len(rows) != 2 || !rows[0].ID.IsPlaceholder() {
		t.Fatalf("initial rows = %+v", rows)
	}

	rebinds := &rebindRecorder{}
	coord := grid.NewCoordinator(gridapi.NewServiceResultStore(svc), lot.ID, grid.NopNotifier{}, grid.Callbacks{
		RowPersisted: rebinds.record,
	})
	coord.SetBaseline(rows)

	focus := &focusRecorder{}
	session := grid.NewSession(rows, "lot-header", "approve-button", coord, focus)

	first := grid.Position{Row: rows[0].ID, Column: grid.ColumnResult}
	if !session.Dispatch(grid.Event{Kind: grid.EventStart, Cell: first}) {
		t.Fatalf("start refused")
	}
	inputs := []string{"1,200", "plates duplicated", "0.2", ""}
	for i, value := range inputs {
		if value != "" {
			if !session.Dispatch(grid.Event{Kind: grid.EventInput, Value: value}) {
				t.Fatalf("input %d refused", i)
			}
		}
		if !session.Dispatch(grid.Event{Kind: grid.EventAdvance, Direction: grid.Forward}) {
			t.Fatalf("advance %d refused", i)
		}
	}

	if _, editing := session.Editing(); editing {
		t.Fatalf("session should be idle after walking off the grid")
	}
	if len(focus.targets) != 1 || focus.targets[0] != "approve-button" {
		t.Fatalf("focus targets = %v", focus.targets)
	}

	coord.Wait()

	results, err := svc.ListResultsForLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("persisted results = %d, want 2", len(results))
	}

	rebinds.mu.Lock()
	pairCount := len(rebinds.pairs)
	rebinds.mu.Unlock()
	if pairCount != 2 {
		t.Fatalf("persisted callbacks = %d, want 2", pairCount)
	}

	rows = reconcileLot(t, svc, lot.ID)
	for _, row := range rows {
		if row.ID.IsPlaceholder() {
			t.Fatalf("row %s still a placeholder", row.TestName)
		}
		if row.Verdict != "pass" {
			t.Fatalf("row %s verdict = %s", row.TestName, row.Verdict)
		}
	}
	if rows[0].Method != "USP <61>" {
		t.Fatalf("method snapshot = %q", rows[0].Method)
	}

	for _, next := range []domain.LotStatus{domain.LotStatusInTesting, domain.LotStatusInReview} {
		if _, _, err := svc.AdvanceLotStatus(ctx, lot.ID, next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	for _, res := range results {
		if _, _, err := svc.ApproveTestResult(ctx, res.ID); err != nil {
			t.Fatalf("approve %s: %v", res.TestName, err)
		}
	}
	if _, _, err := svc.AdvanceLotStatus(ctx, lot.ID, domain.LotStatusApproved); err != nil {
		t.Fatalf("approve lot: %v", err)
	}

	var blocked domain.RuleViolationError
	_, _, err = svc.UpdateTestResult(ctx, results[0].ID, func(r *domain.TestResult) error {
		r.Value = "9"
		return nil
	})
	if !errors.As(err, &blocked) {
		t.Fatalf("update approved result err = %v, want RuleViolationError", err)
	}
}

// A save that lands while its placeholder row is mid-create retargets to the
// persisted identity instead of creating a duplicate result.
func TestQueuedEditRetargetsAfterCreate(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()
	lot := seedCatalog(t, svc)
	rows := reconcileLot(t, svc, lot.ID)

	coord := grid.NewCoordinator(gridapi.NewServiceResultStore(svc), lot.ID, grid.NopNotifier{}, grid.Callbacks{})
	coord.SetBaseline(rows)

	placeholder := rows[0].ID
	coord.Submit(placeholder, grid.FieldResult, "1,200")
	coord.Submit(placeholder, grid.FieldNotes, "first run")
	coord.Wait()

	results, err := svc.ListResultsForLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("result count = %d, want 1 (no duplicate create)", len(results))
	}
	if results[0].Value != "1,200" || results[0].Notes != "first run" {
		t.Fatalf("result = %+v", results[0])
	}

	resolved := coord.Resolve(placeholder)
	if resolved.IsPlaceholder() {
		t.Fatalf("placeholder did not resolve to persisted identity")
	}
	if status := coord.Status(resolved); status != grid.SaveIdle {
		t.Fatalf("status = %s, want idle", status)
	}
}
