package grid

import (
	"testing"

	"qctrack/pkg/domain"
)

type submission struct {
	row   RowID
	field Field
	value string
}

type recordingSaver struct {
	subs []submission
}

func (r *recordingSaver) Submit(row RowID, field Field, value string) {
	r.subs = append(r.subs, submission{row: row, field: field, value: value})
}

type recordingFocus struct {
	targets []ExitTarget
}

func (r *recordingFocus) RequestFocus(target ExitTarget) {
	r.targets = append(r.targets, target)
}

func sessionRows() []Row {
	specs := []domain.TestSpecification{
		spec("s1", "p1", "Total Plate Count", "Microbiological", "CFU/g", "< 10,000 CFU/g", "USP <61>"),
		spec("s2", "p1", "Lead", "Heavy Metals", "ppm", "<= 0.5 ppm", "ICP-MS"),
	}
	return Reconcile(specs, nil)
}

func newTestSession(rows []Row) (*Session, *recordingSaver, *recordingFocus) {
	saver := &recordingSaver{}
	focus := &recordingFocus{}
	return NewSession(rows, "lot-header", "approve-button", saver, focus), saver, focus
}

func TestSessionForwardTraversalExitsOnce(t *testing.T) {
	rows := sessionRows()
	s, _, focus := newTestSession(rows)

	first := Position{Row: rows[0].ID, Column: ColumnResult}
	if !s.Dispatch(Event{Kind: EventStart, Cell: first}) {
		t.Fatal("start refused")
	}
	n := len(rows) * len(editableColumns)
	for i := 0; i < n; i++ {
		if !s.Dispatch(Event{Kind: EventAdvance, Direction: Forward}) {
			t.Fatalf("advance %d refused", i)
		}
	}
	if _, editing := s.Editing(); editing {
		t.Fatal("session should be idle after traversing every cell")
	}
	if len(focus.targets) != 1 || focus.targets[0] != "approve-button" {
		t.Fatalf("expected exactly one forward exit, got %v", focus.targets)
	}
	// Further advances are refused so the host's default handling runs.
	if s.Dispatch(Event{Kind: EventAdvance, Direction: Forward}) {
		t.Fatal("advance while idle should be refused")
	}
}

func TestSessionAdvanceVisitsColumnsThenNextRow(t *testing.T) {
	rows := sessionRows()
	s, _, _ := newTestSession(rows)

	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}})
	s.Dispatch(Event{Kind: EventAdvance, Direction: Forward})
	if p, _ := s.Editing(); p != (Position{Row: rows[0].ID, Column: ColumnNotes}) {
		t.Fatalf("after first advance: %+v", p)
	}
	s.Dispatch(Event{Kind: EventAdvance, Direction: Forward})
	if p, _ := s.Editing(); p != (Position{Row: rows[1].ID, Column: ColumnResult}) {
		t.Fatalf("after second advance: %+v", p)
	}
	s.Dispatch(Event{Kind: EventAdvance, Direction: Backward})
	if p, _ := s.Editing(); p != (Position{Row: rows[0].ID, Column: ColumnNotes}) {
		t.Fatalf("after backward advance: %+v", p)
	}
}

func TestSessionBackwardExitFromFirstCell(t *testing.T) {
	rows := sessionRows()
	s, _, focus := newTestSession(rows)

	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}})
	s.Dispatch(Event{Kind: EventAdvance, Direction: Backward})
	if _, editing := s.Editing(); editing {
		t.Fatal("expected idle after backward exit")
	}
	if len(focus.targets) != 1 || focus.targets[0] != "lot-header" {
		t.Fatalf("expected backward exit target, got %v", focus.targets)
	}
}

func TestSessionTrailingCommitIsSwallowed(t *testing.T) {
	rows := sessionRows()
	s, saver, _ := newTestSession(rows)

	first := Position{Row: rows[0].ID, Column: ColumnResult}
	s.Dispatch(Event{Kind: EventStart, Cell: first})
	s.Dispatch(Event{Kind: EventInput, Value: "5000"})
	s.Dispatch(Event{Kind: EventAdvance, Direction: Forward})
	if len(saver.subs) != 1 || saver.subs[0].value != "5000" {
		t.Fatalf("expected one submission from the advance, got %v", saver.subs)
	}

	// The platform blur for the exited cell arrives after the navigation
	// already moved on. The destination wins.
	if !s.Dispatch(Event{Kind: EventCommit, Cell: first}) {
		t.Fatal("trailing commit should be consumed")
	}
	if len(saver.subs) != 1 {
		t.Fatalf("trailing commit must not re-submit, got %v", saver.subs)
	}
	if p, editing := s.Editing(); !editing || p != (Position{Row: rows[0].ID, Column: ColumnNotes}) {
		t.Fatalf("destination lost to trailing commit: %+v editing=%v", p, editing)
	}

	// A later genuine blur on the destination still commits.
	s.Dispatch(Event{Kind: EventInput, Value: "checked"})
	if !s.Dispatch(Event{Kind: EventCommit, Cell: Position{Row: rows[0].ID, Column: ColumnNotes}}) {
		t.Fatal("genuine commit refused")
	}
	if _, editing := s.Editing(); editing {
		t.Fatal("expected idle after genuine commit")
	}
	if len(saver.subs) != 2 || saver.subs[1].value != "checked" {
		t.Fatalf("genuine commit should submit, got %v", saver.subs)
	}
}

func TestSessionCancelDiscardsDraft(t *testing.T) {
	rows := sessionRows()
	s, saver, _ := newTestSession(rows)

	first := Position{Row: rows[0].ID, Column: ColumnResult}
	s.Dispatch(Event{Kind: EventStart, Cell: first})
	s.Dispatch(Event{Kind: EventInput, Value: "garbage"})
	if !s.Dispatch(Event{Kind: EventCancel}) {
		t.Fatal("cancel refused")
	}
	if len(saver.subs) != 0 {
		t.Fatalf("cancel must not submit, got %v", saver.subs)
	}
	if _, editing := s.Editing(); editing {
		t.Fatal("expected idle after cancel")
	}
	// The blur trailing the cancel must not resurrect the draft.
	if !s.Dispatch(Event{Kind: EventCommit, Cell: first}) {
		t.Fatal("trailing commit after cancel should be consumed")
	}
	if len(saver.subs) != 0 {
		t.Fatalf("trailing commit after cancel must not submit, got %v", saver.subs)
	}
}

func TestSessionSameColumnAdvance(t *testing.T) {
	rows := sessionRows()
	s, _, focus := newTestSession(rows)

	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}})
	s.Dispatch(Event{Kind: EventAdvanceSameColumn})
	if p, _ := s.Editing(); p != (Position{Row: rows[1].ID, Column: ColumnResult}) {
		t.Fatalf("same-column advance landed at %+v", p)
	}
	// At the last row the session goes idle without an exit emission.
	s.Dispatch(Event{Kind: EventAdvanceSameColumn})
	if _, editing := s.Editing(); editing {
		t.Fatal("expected idle at last row")
	}
	if len(focus.targets) != 0 {
		t.Fatalf("same-column advance must not emit focus, got %v", focus.targets)
	}
}

func TestSessionMethodColumnIsRowLocalAndReadOnly(t *testing.T) {
	rows := sessionRows()
	s, saver, _ := newTestSession(rows)

	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}})
	if !s.Dispatch(Event{Kind: EventSelectColumn, Column: ColumnMethod}) {
		t.Fatal("method column select refused")
	}
	if p, _ := s.Editing(); p.Column != ColumnMethod {
		t.Fatalf("expected method column, got %+v", p)
	}
	if s.Draft() != "USP <61>" {
		t.Fatalf("method draft = %q", s.Draft())
	}

	// Leaving the method column never submits; forward navigation continues
	// past the row.
	s.Dispatch(Event{Kind: EventAdvance, Direction: Forward})
	if p, _ := s.Editing(); p != (Position{Row: rows[1].ID, Column: ColumnResult}) {
		t.Fatalf("advance from method landed at %+v", p)
	}
	// Only the initial result cell submission may exist.
	for _, sub := range saver.subs {
		if sub.field != FieldResult || sub.row != rows[0].ID {
			t.Fatalf("unexpected submission %v", sub)
		}
	}
}

func TestSessionStartWhileEditingClosesPrior(t *testing.T) {
	rows := sessionRows()
	s, saver, _ := newTestSession(rows)

	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}})
	s.Dispatch(Event{Kind: EventInput, Value: "5000"})
	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[1].ID, Column: ColumnResult}})
	if len(saver.subs) != 1 || saver.subs[0].row != rows[0].ID {
		t.Fatalf("prior cell should have committed, got %v", saver.subs)
	}
	if p, _ := s.Editing(); p.Row != rows[1].ID {
		t.Fatalf("expected second row active, got %+v", p)
	}
}

func TestSessionRefusesWhenLocked(t *testing.T) {
	rows := sessionRows()
	s, _, _ := newTestSession(rows)
	s.SetEditable(false)
	if s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}}) {
		t.Fatal("start must be refused on a locked grid")
	}
}

func TestSessionRebindPreservesPosition(t *testing.T) {
	rows := sessionRows()
	s, saver, _ := newTestSession(rows)

	old := rows[0].ID
	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: old, Column: ColumnResult}})
	s.Dispatch(Event{Kind: EventInput, Value: "5000"})

	persisted := PersistedRowID("r-new")
	s.RebindRow(old, persisted)

	if p, _ := s.Editing(); p.Row != persisted {
		t.Fatalf("active cell did not follow rebind: %+v", p)
	}
	if s.Draft() != "5000" {
		t.Fatalf("draft lost across rebind: %q", s.Draft())
	}
	s.Dispatch(Event{Kind: EventAdvance, Direction: Forward})
	if p, _ := s.Editing(); p != (Position{Row: persisted, Column: ColumnNotes}) {
		t.Fatalf("navigation order did not follow rebind: %+v", p)
	}
	if saver.subs[0].row != persisted {
		t.Fatalf("submission should carry the rebound identity, got %v", saver.subs[0])
	}
}

func TestSessionSetRowsDropsVanishedRow(t *testing.T) {
	rows := sessionRows()
	s, _, _ := newTestSession(rows)

	s.Dispatch(Event{Kind: EventStart, Cell: Position{Row: rows[0].ID, Column: ColumnResult}})
	s.SetRows(rows[1:])
	if _, editing := s.Editing(); editing {
		t.Fatal("session should go idle when the active row disappears")
	}
}
