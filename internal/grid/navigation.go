package grid

// ExitTarget names a sibling control on the hosting surface that should
// receive focus when navigation runs off an end of the grid. The host
// supplies the names; the grid only echoes them back through the focus
// protocol.
type ExitTarget string

// Position is one editable cell in the navigation order.
type Position struct {
	Row    RowID  `json:"row_id"`
	Column Column `json:"column"`
}

// Order is the fixed, acyclic traversal sequence for cross-row navigation:
// row order times the editable column order, bracketed by the two external
// exit targets. The method column is excluded; it is reachable only through
// row-local column commands.
type Order struct {
	positions []Position
	index     map[Position]int
	backward  ExitTarget
	forward   ExitTarget
}

// BuildOrder derives the navigation order from a reconciled row list.
func BuildOrder(rows []Row, backward, forward ExitTarget) Order {
	o := Order{
		positions: make([]Position, 0, len(rows)*len(editableColumns)),
		index:     make(map[Position]int, len(rows)*len(editableColumns)),
		backward:  backward,
		forward:   forward,
	}
	for _, row := range rows {
		for _, col := range editableColumns {
			p := Position{Row: row.ID, Column: col}
			o.index[p] = len(o.positions)
			o.positions = append(o.positions, p)
		}
	}
	return o
}

// Len returns the number of editable cells.
func (o Order) Len() int { return len(o.positions) }

// First returns the first editable cell, if any.
func (o Order) First() (Position, bool) {
	if len(o.positions) == 0 {
		return Position{}, false
	}
	return o.positions[0], true
}

// Contains reports whether the cell participates in cross-row navigation.
func (o Order) Contains(p Position) bool {
	_, ok := o.index[p]
	return ok
}

// Next returns the cell after p. When p is the last cell, ok is false and
// the forward exit target is returned instead.
func (o Order) Next(p Position) (Position, ExitTarget, bool) {
	i, known := o.index[p]
	if !known || i+1 >= len(o.positions) {
		return Position{}, o.forward, false
	}
	return o.positions[i+1], "", true
}

// Prev returns the cell before p. When p is the first cell, ok is false and
// the backward exit target is returned instead.
func (o Order) Prev(p Position) (Position, ExitTarget, bool) {
	i, known := o.index[p]
	if !known || i == 0 {
		return Position{}, o.backward, false
	}
	return o.positions[i-1], "", true
}

// NextSameColumn returns the next row's cell in the same column; ok is
// false at the last row.
func (o Order) NextSameColumn(p Position) (Position, bool) {
	i, known := o.index[p]
	if !known {
		return Position{}, false
	}
	for j := i + 1; j < len(o.positions); j++ {
		if o.positions[j].Column == p.Column {
			return o.positions[j], true
		}
	}
	return Position{}, false
}

// Rebind replaces every occurrence of the old row identity. Called when a
// placeholder row adopts persisted identity so the order stays aligned with
// the reconciled rows without rebuilding mid-session.
func (o *Order) Rebind(old, updated RowID) {
	for i, p := range o.positions {
		if p.Row != old {
			continue
		}
		delete(o.index, p)
		p.Row = updated
		o.positions[i] = p
		o.index[p] = i
	}
}
