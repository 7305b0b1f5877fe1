package grid

// Direction selects forward or backward traversal of the navigation order.
type Direction string

// Traversal directions.
const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// EventKind discriminates edit session events.
type EventKind string

// Session events. Every transition funnels through Session.Dispatch; child
// cells hold a session reference instead of sharing ambient editing state.
const (
	// EventStart opens a cell for input, implicitly closing any prior cell
	// through the regular commit path.
	EventStart EventKind = "start"
	// EventInput replaces the in-progress draft value.
	EventInput EventKind = "input"
	// EventAdvance commits the cell and moves along the navigation order.
	EventAdvance EventKind = "advance"
	// EventAdvanceSameColumn commits and moves to the next row, same column.
	EventAdvanceSameColumn EventKind = "advance_same_column"
	// EventSelectColumn commits and moves within the current row only; this
	// is the only way to reach the read-only method column.
	EventSelectColumn EventKind = "select_column"
	// EventCancel discards the draft without saving.
	EventCancel EventKind = "cancel"
	// EventCommit is the unqualified exit raised by a focus loss. It is
	// ignored when a navigation transition already decided the cell's fate.
	EventCommit EventKind = "commit"
)

// Event is the single input type accepted by Dispatch.
type Event struct {
	Kind      EventKind
	Cell      Position
	Direction Direction
	Column    Column
	Value     string
}

// Saver receives committed cell values. Calls are fire-and-forget from the
// session's perspective; completion is tracked by the save coordinator.
type Saver interface {
	Submit(row RowID, field Field, value string)
}

// FocusSink is the hosting surface's side of the focus protocol. The
// session names an exit target when navigation runs off either end of the
// grid; the host moves real input focus.
type FocusSink interface {
	RequestFocus(target ExitTarget)
}

// Session is the navigation state machine owning the single editable cell.
// It is intentionally not goroutine-safe: transitions are serialized
// through the hosting surface's event queue, and the host grants the
// session first refusal on navigation inputs by calling Dispatch before its
// own focus handling. A true return value is that claim being exercised.
type Session struct {
	order Order
	rows  map[RowID]Row
	saver Saver
	focus FocusSink

	editable  bool
	editing   bool
	cell      Position
	draft     string
	exited    Position
	hasExited bool
}

// NewSession builds a session over a reconciled row snapshot. The backward
// and forward exit targets are supplied by the hosting surface.
func NewSession(rows []Row, backward, forward ExitTarget, saver Saver, focus FocusSink) *Session {
	s := &Session{
		saver:    saver,
		focus:    focus,
		editable: true,
	}
	s.install(rows, backward, forward)
	return s
}

func (s *Session) install(rows []Row, backward, forward ExitTarget) {
	s.order = BuildOrder(rows, backward, forward)
	s.rows = make(map[RowID]Row, len(rows))
	for _, row := range rows {
		s.rows[row.ID] = row
	}
}

// SetRows replaces the row snapshot after a reconciliation pass. If the
// active cell's row no longer exists (its specification was deleted
// concurrently) the session falls back to idle without saving; the editing
// target is gone, so there is nothing to report.
func (s *Session) SetRows(rows []Row) {
	s.install(rows, s.order.backward, s.order.forward)
	if s.editing {
		if _, ok := s.rows[s.cell.Row]; !ok {
			s.editing = false
			s.draft = ""
		}
	}
}

// RebindRow swaps a placeholder identity for its persisted replacement,
// preserving the active cell and navigation position across the
// transition.
func (s *Session) RebindRow(old, updated RowID) {
	s.order.Rebind(old, updated)
	if row, ok := s.rows[old]; ok {
		delete(s.rows, old)
		row.ID = updated
		s.rows[updated] = row
	}
	if s.editing && s.cell.Row == old {
		s.cell.Row = updated
	}
	if s.hasExited && s.exited.Row == old {
		s.exited.Row = updated
	}
}

// SetEditable toggles whether new edits may start (locked lot).
func (s *Session) SetEditable(editable bool) { s.editable = editable }

// Editing returns the active cell, if any.
func (s *Session) Editing() (Position, bool) { return s.cell, s.editing }

// Draft returns the in-progress value.
func (s *Session) Draft() string { return s.draft }

// Dispatch applies one event. The return value reports whether the session
// claimed the input; false hands it back to the host's default handling.
func (s *Session) Dispatch(ev Event) bool {
	switch ev.Kind {
	case EventStart:
		return s.start(ev.Cell)
	case EventInput:
		if !s.editing {
			return false
		}
		s.draft = ev.Value
		return true
	case EventAdvance:
		return s.advance(ev.Direction)
	case EventAdvanceSameColumn:
		return s.advanceSameColumn()
	case EventSelectColumn:
		return s.selectColumn(ev.Column)
	case EventCancel:
		if !s.editing {
			return false
		}
		s.markExited(s.cell)
		s.editing = false
		s.draft = ""
		return true
	case EventCommit:
		return s.commit(ev.Cell)
	}
	return false
}

func (s *Session) start(cell Position) bool {
	if !s.editable {
		return false
	}
	row, known := s.rows[cell.Row]
	if !known {
		return false
	}
	if cell.Column != ColumnMethod && !s.order.Contains(cell) {
		return false
	}
	if s.editing {
		// Opening a new cell closes the prior one through the same commit
		// path used by explicit navigation.
		s.leaveCell()
		s.markExited(s.cell)
	}
	s.editing = true
	s.cell = cell
	s.draft = row.FieldValue(cell.Column)
	return true
}

func (s *Session) advance(dir Direction) bool {
	if !s.editing {
		return false
	}
	cur := s.cell
	s.leaveCell()
	s.markExited(cur)

	var (
		next   Position
		target ExitTarget
		ok     bool
	)
	if dir == Backward {
		next, target, ok = s.order.Prev(s.navPosition(cur, dir))
	} else {
		next, target, ok = s.order.Next(s.navPosition(cur, dir))
	}
	if !ok {
		s.editing = false
		s.draft = ""
		if s.focus != nil {
			s.focus.RequestFocus(target)
		}
		return true
	}
	s.enter(next)
	return true
}

func (s *Session) advanceSameColumn() bool {
	if !s.editing {
		return false
	}
	cur := s.cell
	s.leaveCell()
	s.markExited(cur)
	next, ok := s.order.NextSameColumn(s.navPosition(cur, Forward))
	if !ok {
		s.editing = false
		s.draft = ""
		return true
	}
	s.enter(next)
	return true
}

func (s *Session) selectColumn(col Column) bool {
	if !s.editing {
		return false
	}
	if col != ColumnResult && col != ColumnNotes && col != ColumnMethod {
		return false
	}
	if col == s.cell.Column {
		return true
	}
	cur := s.cell
	s.leaveCell()
	s.markExited(cur)
	s.enter(Position{Row: cur.Row, Column: col})
	return true
}

// commit handles the unqualified exit raised when a cell loses focus
// without an explicit navigation. A blur trailing a navigation transition
// references the cell that was already left; it is swallowed so the
// navigation's destination wins over the idle state the bare exit would
// force.
func (s *Session) commit(cell Position) bool {
	if s.editing && cell == s.cell {
		s.leaveCell()
		s.markExited(cell)
		s.editing = false
		s.draft = ""
		return true
	}
	if s.hasExited && cell == s.exited {
		s.hasExited = false
		return true
	}
	return false
}

// leaveCell pushes the draft to the save coordinator. The state change is
// applied by the caller only after the save has been issued. The read-only
// method column never submits.
func (s *Session) leaveCell() {
	if s.cell.Column == ColumnMethod || s.saver == nil {
		return
	}
	s.saver.Submit(s.cell.Row, fieldForColumn(s.cell.Column), s.draft)
}

func (s *Session) enter(p Position) {
	s.cell = p
	s.editing = true
	s.draft = s.rows[p.Row].FieldValue(p.Column)
}

func (s *Session) markExited(p Position) {
	s.exited = p
	s.hasExited = true
}

// navPosition maps the method column onto its row's cross-row order
// neighbors: forward navigation continues after the row's last editable
// cell, backward before its first.
func (s *Session) navPosition(p Position, dir Direction) Position {
	if p.Column != ColumnMethod {
		return p
	}
	if dir == Backward {
		return Position{Row: p.Row, Column: ColumnResult}
	}
	return Position{Row: p.Row, Column: ColumnNotes}
}

func fieldForColumn(c Column) Field {
	if c == ColumnNotes {
		return FieldNotes
	}
	return FieldResult
}
