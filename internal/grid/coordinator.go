package grid

import (
	"context"
	"fmt"
	"sync"

	"qctrack/pkg/domain"
)

// Field names an editable result attribute carried by a save task.
type Field string

// Savable fields. The method column is read-only in the grid and has no
// field.
const (
	FieldResult Field = "result"
	FieldNotes  Field = "notes"
)

// SaveStatus is the per-row save indicator exposed to the rendering layer.
type SaveStatus string

// Row save states.
const (
	SaveIdle   SaveStatus = "idle"
	SaveActive SaveStatus = "saving"
	SaveFailed SaveStatus = "failed"
)

// ResultFields is the full attribute set needed to create a result from a
// placeholder row.
type ResultFields struct {
	TestName      string
	Unit          string
	Method        string
	Specification string
	Value         string
	Notes         string
}

// PartialFields is a sparse update; nil fields are left untouched.
type PartialFields struct {
	Value *string
	Notes *string
}

// ResultStore is the persistence surface the coordinator writes through.
type ResultStore interface {
	CreateResult(ctx context.Context, lotID string, fields ResultFields) (domain.TestResult, error)
	UpdateResult(ctx context.Context, resultID string, fields PartialFields) (domain.TestResult, error)
}

// Callbacks deliver save outcomes back to the grid. All callbacks run on
// coordinator goroutines; receivers marshal onto their own event queue.
type Callbacks struct {
	// RowSaved fires after any successful write.
	RowSaved func(row RowID)
	// RowPersisted fires once per placeholder row, when its first save
	// assigns persisted identity.
	RowPersisted func(placeholder, persisted RowID)
	// RowFailed delivers the last known good value so the cell can revert.
	RowFailed func(row RowID, field Field, revert string)
}

type saveTask struct {
	field Field
	value string
}

type rowState struct {
	queue  []saveTask
	active bool
	failed bool
}

// Coordinator serializes saves per row: at most one write per row is in
// flight, later submissions for the same row queue in FIFO order, and
// different rows proceed independently. A placeholder row's first
// successful save swaps its identity for the persisted one; tasks queued
// behind the create are retargeted automatically.
type Coordinator struct {
	store    ResultStore
	lotID    string
	notifier Notifier
	cb       Callbacks

	mu       sync.Mutex
	rows     map[RowID]*rowState
	alias    map[RowID]RowID
	baseline map[RowID]map[Field]string
	seeds    map[RowID]ResultFields
	wg       sync.WaitGroup
}

// NewCoordinator builds a coordinator for one lot's grid.
func NewCoordinator(store ResultStore, lotID string, notifier Notifier, cb Callbacks) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		store:    store,
		lotID:    lotID,
		notifier: notifier,
		cb:       cb,
		rows:     make(map[RowID]*rowState),
		alias:    make(map[RowID]RowID),
		baseline: make(map[RowID]map[Field]string),
		seeds:    make(map[RowID]ResultFields),
	}
}

// SetBaseline records the last known good values and placeholder creation
// seeds from a reconciled row snapshot. Called once per reconciliation
// pass, before edits begin against those rows.
func (c *Coordinator) SetBaseline(rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		id := c.resolveLocked(row.ID)
		c.baseline[id] = map[Field]string{
			FieldResult: row.Value,
			FieldNotes:  row.Notes,
		}
		if id.IsPlaceholder() {
			c.seeds[id] = ResultFields{
				TestName:      row.TestName,
				Unit:          row.Unit,
				Method:        row.Method,
				Specification: row.Specification,
			}
		}
	}
}

// Submit enqueues one cell save. Unchanged values are dropped when the row
// has nothing in flight, so navigating through cells without typing does
// not generate writes.
func (c *Coordinator) Submit(row RowID, field Field, value string) {
	c.mu.Lock()
	id := c.resolveLocked(row)
	st := c.rows[id]
	if st == nil {
		st = &rowState{}
		c.rows[id] = st
	}
	if !st.active && len(st.queue) == 0 {
		if base, ok := c.baseline[id]; ok && base[field] == value {
			c.mu.Unlock()
			return
		}
	}
	st.queue = append(st.queue, saveTask{field: field, value: value})
	if !st.active {
		st.active = true
		c.wg.Add(1)
		go c.drain(id)
	}
	c.mu.Unlock()
}

// Status reports the row's save indicator.
func (c *Coordinator) Status(row RowID) SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.resolveLocked(row)
	st := c.rows[id]
	if st == nil {
		return SaveIdle
	}
	if st.active || len(st.queue) > 0 {
		return SaveActive
	}
	if st.failed {
		return SaveFailed
	}
	return SaveIdle
}

// Resolve maps a possibly stale placeholder identity to its current one.
func (c *Coordinator) Resolve(row RowID) RowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(row)
}

// Wait blocks until every queued save has been attempted. Closing the
// hosting surface does not cancel in-flight saves; callers wait here
// during teardown.
func (c *Coordinator) Wait() { c.wg.Wait() }

func (c *Coordinator) resolveLocked(row RowID) RowID {
	for {
		next, ok := c.alias[row]
		if !ok {
			return row
		}
		row = next
	}
}

func (c *Coordinator) drain(row RowID) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		row = c.resolveLocked(row)
		st := c.rows[row]
		if st == nil || len(st.queue) == 0 {
			if st != nil {
				st.active = false
			}
			c.mu.Unlock()
			return
		}
		task := st.queue[0]
		st.queue = st.queue[1:]
		c.mu.Unlock()

		c.perform(row, task)
	}
}

func (c *Coordinator) perform(row RowID, task saveTask) {
	ctx := context.Background()
	if specID, placeholder := row.SpecID(); placeholder {
		c.create(ctx, row, specID, task)
		return
	}
	resultID, _ := row.ResultID()
	c.update(ctx, row, resultID, task)
}

func (c *Coordinator) create(ctx context.Context, row RowID, specID string, task saveTask) {
	c.mu.Lock()
	fields := c.seeds[row]
	if base, ok := c.baseline[row]; ok {
		fields.Value = base[FieldResult]
		fields.Notes = base[FieldNotes]
	}
	c.mu.Unlock()
	switch task.field {
	case FieldNotes:
		fields.Notes = task.value
	default:
		fields.Value = task.value
	}

	res, err := c.store.CreateResult(ctx, c.lotID, fields)
	if err != nil {
		c.fail(row, task, err)
		return
	}

	persisted := PersistedRowID(res.ID)
	c.mu.Lock()
	c.alias[row] = persisted
	if st, ok := c.rows[row]; ok {
		delete(c.rows, row)
		c.rows[persisted] = st
		st.failed = false
	}
	delete(c.seeds, row)
	delete(c.baseline, row)
	c.baseline[persisted] = map[Field]string{
		FieldResult: res.Value,
		FieldNotes:  res.Notes,
	}
	c.mu.Unlock()

	if c.cb.RowPersisted != nil {
		c.cb.RowPersisted(row, persisted)
	}
	if c.cb.RowSaved != nil {
		c.cb.RowSaved(persisted)
	}
}

func (c *Coordinator) update(ctx context.Context, row RowID, resultID string, task saveTask) {
	var fields PartialFields
	switch task.field {
	case FieldNotes:
		fields.Notes = &task.value
	default:
		fields.Value = &task.value
	}

	res, err := c.store.UpdateResult(ctx, resultID, fields)
	if err != nil {
		c.fail(row, task, err)
		return
	}

	c.mu.Lock()
	base := c.baseline[row]
	if base == nil {
		base = make(map[Field]string)
		c.baseline[row] = base
	}
	base[FieldResult] = res.Value
	base[FieldNotes] = res.Notes
	if st, ok := c.rows[row]; ok {
		st.failed = false
	}
	c.mu.Unlock()

	if c.cb.RowSaved != nil {
		c.cb.RowSaved(row)
	}
}

// fail reverts to the last known good value and reports the failure. A
// failed task does not stall the row's queue; later submissions still run.
func (c *Coordinator) fail(row RowID, task saveTask, err error) {
	c.mu.Lock()
	if st, ok := c.rows[row]; ok {
		st.failed = true
	}
	revert := ""
	if base, ok := c.baseline[row]; ok {
		revert = base[task.field]
	}
	c.mu.Unlock()

	c.notifier.Failure(fmt.Sprintf("save failed for %s: %v", row, err))
	if c.cb.RowFailed != nil {
		c.cb.RowFailed(row, task.field, revert)
	}
}
