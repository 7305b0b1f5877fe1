// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"qctrack/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Product aliases domain.Product for in-memory persistence operations.
	Product = domain.Product
	// Lot aliases domain.Lot.
	Lot = domain.Lot
	// TestSpecification aliases domain.TestSpecification.
	TestSpecification = domain.TestSpecification
	// TestResult aliases domain.TestResult.
	TestResult = domain.TestResult
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	products       map[string]Product
	lots           map[string]Lot
	specifications map[string]TestSpecification
	results        map[string]TestResult
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Products       map[string]Product           `json:"products"`
	Lots           map[string]Lot               `json:"lots"`
	Specifications map[string]TestSpecification `json:"specifications"`
	Results        map[string]TestResult        `json:"results"`
}

func newMemoryState() memoryState {
	return memoryState{
		products:       make(map[string]Product),
		lots:           make(map[string]Lot),
		specifications: make(map[string]TestSpecification),
		results:        make(map[string]TestResult),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Products:       make(map[string]Product, len(state.products)),
		Lots:           make(map[string]Lot, len(state.lots)),
		Specifications: make(map[string]TestSpecification, len(state.specifications)),
		Results:        make(map[string]TestResult, len(state.results)),
	}
	for k, v := range state.products {
		s.Products[k] = cloneProduct(v)
	}
	for k, v := range state.lots {
		s.Lots[k] = cloneLot(v)
	}
	for k, v := range state.specifications {
		s.Specifications[k] = cloneSpecification(v)
	}
	for k, v := range state.results {
		s.Results[k] = cloneResult(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Products {
		state.products[k] = cloneProduct(v)
	}
	for k, v := range s.Lots {
		state.lots[k] = cloneLot(v)
	}
	for k, v := range s.Specifications {
		state.specifications[k] = cloneSpecification(v)
	}
	for k, v := range s.Results {
		state.results[k] = cloneResult(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots persisted by earlier runs: nil maps
// become empty, and records whose owning entity no longer exists are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Products == nil {
		snapshot.Products = map[string]Product{}
	}
	if snapshot.Lots == nil {
		snapshot.Lots = map[string]Lot{}
	}
	if snapshot.Specifications == nil {
		snapshot.Specifications = map[string]TestSpecification{}
	}
	if snapshot.Results == nil {
		snapshot.Results = map[string]TestResult{}
	}

	productExists := func(id string) bool {
		_, ok := snapshot.Products[id]
		return ok
	}
	lotExists := func(id string) bool {
		_, ok := snapshot.Lots[id]
		return ok
	}

	for id, spec := range snapshot.Specifications {
		if spec.ProductID == "" || !productExists(spec.ProductID) {
			delete(snapshot.Specifications, id)
		}
	}
	for id, lot := range snapshot.Lots {
		if filtered, changed := filterIDs(lot.ProductIDs, productExists); changed {
			lot.ProductIDs = filtered
			snapshot.Lots[id] = lot
		}
	}
	for id, res := range snapshot.Results {
		if res.LotID == "" || !lotExists(res.LotID) {
			delete(snapshot.Results, id)
			continue
		}
		if res.Status == "" {
			res.Status = domain.ResultStatusDraft
			snapshot.Results[id] = res
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.products {
		cloned.products[k] = cloneProduct(v)
	}
	for k, v := range s.lots {
		cloned.lots[k] = cloneLot(v)
	}
	for k, v := range s.specifications {
		cloned.specifications[k] = cloneSpecification(v)
	}
	for k, v := range s.results {
		cloned.results[k] = cloneResult(v)
	}
	return cloned
}

func cloneProduct(p Product) Product { return p }

func cloneLot(l Lot) Lot {
	cp := l
	cp.ProductIDs = append([]string(nil), l.ProductIDs...)
	if l.Notes != nil {
		n := *l.Notes
		cp.Notes = &n
	}
	return cp
}

func cloneSpecification(s TestSpecification) TestSpecification { return s }

func cloneResult(r TestResult) TestResult {
	cp := r
	if r.DocumentKey != nil {
		k := *r.DocumentKey
		cp.DocumentKey = &k
	}
	return cp
}

// payloadOf snapshots an entity value for change records. Domain entities
// are plain data and always marshal.
func payloadOf(v any) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(v)
	if err != nil {
		panic(fmt.Errorf("memory: encode change payload: %w", err))
	}
	return payload
}

func filterIDs(values []string, exists func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	changed := false
	for _, v := range values {
		if _, ok := seen[v]; ok {
			changed = true
			continue
		}
		seen[v] = struct{}{}
		if !exists(v) {
			changed = true
			continue
		}
		out = append(out, v)
	}
	if !changed && len(out) == len(values) {
		return values, false
	}
	return out, true
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListProducts returns all products within the transaction snapshot.
func (v transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, cloneProduct(p))
	}
	return out
}

// ListLots returns all lots within the transaction snapshot.
func (v transactionView) ListLots() []Lot {
	out := make([]Lot, 0, len(v.state.lots))
	for _, l := range v.state.lots {
		out = append(out, cloneLot(l))
	}
	return out
}

// ListTestSpecifications returns all specifications in the snapshot.
func (v transactionView) ListTestSpecifications() []TestSpecification {
	out := make([]TestSpecification, 0, len(v.state.specifications))
	for _, s := range v.state.specifications {
		out = append(out, cloneSpecification(s))
	}
	return out
}

// ListTestResults returns all results in the snapshot.
func (v transactionView) ListTestResults() []TestResult {
	out := make([]TestResult, 0, len(v.state.results))
	for _, r := range v.state.results {
		out = append(out, cloneResult(r))
	}
	return out
}

// FindProduct retrieves a product by ID from the snapshot.
func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// FindLot retrieves a lot by ID from the snapshot.
func (v transactionView) FindLot(id string) (Lot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// FindTestSpecification retrieves a specification by ID from the snapshot.
func (v transactionView) FindTestSpecification(id string) (TestSpecification, bool) {
	s, ok := v.state.specifications[id]
	if !ok {
		return TestSpecification{}, false
	}
	return cloneSpecification(s), true
}

// FindTestResult retrieves a result by ID from the snapshot.
func (v transactionView) FindTestResult(id string) (TestResult, bool) {
	r, ok := v.state.results[id]
	if !ok {
		return TestResult{}, false
	}
	return cloneResult(r), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// GetProduct returns a product by ID from committed state.
func (s *Store) GetProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// ListProducts returns all products from committed state.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		out = append(out, cloneProduct(p))
	}
	return out
}

// GetLot returns a lot by ID from committed state.
func (s *Store) GetLot(id string) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// ListLots returns all lots from committed state.
func (s *Store) ListLots() []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lot, 0, len(s.state.lots))
	for _, l := range s.state.lots {
		out = append(out, cloneLot(l))
	}
	return out
}

// GetTestResult returns a result by ID from committed state.
func (s *Store) GetTestResult(id string) (TestResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.results[id]
	if !ok {
		return TestResult{}, false
	}
	return cloneResult(r), true
}

// ListTestSpecifications returns all specifications from committed state.
func (s *Store) ListTestSpecifications() []TestSpecification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TestSpecification, 0, len(s.state.specifications))
	for _, sp := range s.state.specifications {
		out = append(out, cloneSpecification(sp))
	}
	return out
}

// ListTestResults returns all results from committed state.
func (s *Store) ListTestResults() []TestResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TestResult, 0, len(s.state.results))
	for _, r := range s.state.results {
		out = append(out, cloneResult(r))
	}
	return out
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProduct exposes product lookup within the transaction scope.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	p, ok := tx.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// FindLot exposes lot lookup within the transaction scope.
func (tx *transaction) FindLot(id string) (Lot, bool) {
	l, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// CreateProduct stores a new product within the transaction.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	if p.SKU == "" {
		return Product{}, errors.New("product requires sku")
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = cloneProduct(p)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: payloadOf(p)})
	return cloneProduct(p), nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %q not found", id)
	}
	before := cloneProduct(current)
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.products[id] = cloneProduct(current)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: payloadOf(before), After: payloadOf(current)})
	return cloneProduct(current), nil
}

// DeleteProduct removes a product from the transaction state.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return fmt.Errorf("product %q not found", id)
	}
	for _, lot := range tx.state.lots {
		for _, pid := range lot.ProductIDs {
			if pid == id {
				return fmt.Errorf("product %q still referenced by lot %q", id, lot.ID)
			}
		}
	}
	for _, spec := range tx.state.specifications {
		if spec.ProductID == id {
			return fmt.Errorf("product %q still referenced by specification %q", id, spec.ID)
		}
	}
	delete(tx.state.products, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: payloadOf(current)})
	return nil
}

// CreateLot stores a new lot within the transaction.
func (tx *transaction) CreateLot(l Lot) (Lot, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return Lot{}, fmt.Errorf("lot %q already exists", l.ID)
	}
	if l.Number == "" {
		return Lot{}, errors.New("lot requires number")
	}
	if len(l.ProductIDs) == 0 {
		return Lot{}, errors.New("lot requires at least one product")
	}
	for _, pid := range l.ProductIDs {
		if _, ok := tx.state.products[pid]; !ok {
			return Lot{}, fmt.Errorf("product %q not found", pid)
		}
	}
	if l.Status == "" {
		l.Status = domain.LotStatusReceived
	}
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = tx.now
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.lots[l.ID] = cloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, After: payloadOf(l)})
	return cloneLot(l), nil
}

// UpdateLot mutates a lot using the provided mutator function.
func (tx *transaction) UpdateLot(id string, mutator func(*Lot) error) (Lot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, fmt.Errorf("lot %q not found", id)
	}
	before := cloneLot(current)
	if err := mutator(&current); err != nil {
		return Lot{}, err
	}
	for _, pid := range current.ProductIDs {
		if _, ok := tx.state.products[pid]; !ok {
			return Lot{}, fmt.Errorf("product %q not found", pid)
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.lots[id] = cloneLot(current)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, Before: payloadOf(before), After: payloadOf(current)})
	return cloneLot(current), nil
}

// DeleteLot removes a lot from the transaction state.
func (tx *transaction) DeleteLot(id string) error {
	current, ok := tx.state.lots[id]
	if !ok {
		return fmt.Errorf("lot %q not found", id)
	}
	for _, res := range tx.state.results {
		if res.LotID == id {
			return fmt.Errorf("lot %q still referenced by result %q", id, res.ID)
		}
	}
	delete(tx.state.lots, id)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionDelete, Before: payloadOf(current)})
	return nil
}

// CreateTestSpecification stores a new specification within the transaction.
func (tx *transaction) CreateTestSpecification(sp TestSpecification) (TestSpecification, error) {
	if sp.ID == "" {
		sp.ID = tx.store.newID()
	}
	if _, exists := tx.state.specifications[sp.ID]; exists {
		return TestSpecification{}, fmt.Errorf("specification %q already exists", sp.ID)
	}
	if sp.ProductID == "" {
		return TestSpecification{}, errors.New("specification requires product id")
	}
	if _, ok := tx.state.products[sp.ProductID]; !ok {
		return TestSpecification{}, fmt.Errorf("product %q not found", sp.ProductID)
	}
	if sp.TestName == "" {
		return TestSpecification{}, errors.New("specification requires test name")
	}
	sp.CreatedAt = tx.now
	sp.UpdatedAt = tx.now
	tx.state.specifications[sp.ID] = cloneSpecification(sp)
	tx.recordChange(Change{Entity: domain.EntityTestSpecification, Action: domain.ActionCreate, After: payloadOf(sp)})
	return cloneSpecification(sp), nil
}

// UpdateTestSpecification mutates a specification.
func (tx *transaction) UpdateTestSpecification(id string, mutator func(*TestSpecification) error) (TestSpecification, error) {
	current, ok := tx.state.specifications[id]
	if !ok {
		return TestSpecification{}, fmt.Errorf("specification %q not found", id)
	}
	before := cloneSpecification(current)
	if err := mutator(&current); err != nil {
		return TestSpecification{}, err
	}
	if current.ProductID == "" {
		return TestSpecification{}, errors.New("specification requires product id")
	}
	if _, ok := tx.state.products[current.ProductID]; !ok {
		return TestSpecification{}, fmt.Errorf("product %q not found", current.ProductID)
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.specifications[id] = cloneSpecification(current)
	tx.recordChange(Change{Entity: domain.EntityTestSpecification, Action: domain.ActionUpdate, Before: payloadOf(before), After: payloadOf(current)})
	return cloneSpecification(current), nil
}

// DeleteTestSpecification removes a specification from the transaction state.
func (tx *transaction) DeleteTestSpecification(id string) error {
	current, ok := tx.state.specifications[id]
	if !ok {
		return fmt.Errorf("specification %q not found", id)
	}
	delete(tx.state.specifications, id)
	tx.recordChange(Change{Entity: domain.EntityTestSpecification, Action: domain.ActionDelete, Before: payloadOf(current)})
	return nil
}

// CreateTestResult stores a new result within the transaction.
func (tx *transaction) CreateTestResult(r TestResult) (TestResult, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.results[r.ID]; exists {
		return TestResult{}, fmt.Errorf("result %q already exists", r.ID)
	}
	if r.TestName == "" {
		return TestResult{}, errors.New("result requires test name")
	}
	if r.Status == "" {
		r.Status = domain.ResultStatusDraft
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.results[r.ID] = cloneResult(r)
	tx.recordChange(Change{Entity: domain.EntityTestResult, Action: domain.ActionCreate, After: payloadOf(r)})
	return cloneResult(r), nil
}

// UpdateTestResult mutates a result.
func (tx *transaction) UpdateTestResult(id string, mutator func(*TestResult) error) (TestResult, error) {
	current, ok := tx.state.results[id]
	if !ok {
		return TestResult{}, fmt.Errorf("result %q not found", id)
	}
	before := cloneResult(current)
	if err := mutator(&current); err != nil {
		return TestResult{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.results[id] = cloneResult(current)
	tx.recordChange(Change{Entity: domain.EntityTestResult, Action: domain.ActionUpdate, Before: payloadOf(before), After: payloadOf(current)})
	return cloneResult(current), nil
}

// DeleteTestResult removes a result from the transaction state.
func (tx *transaction) DeleteTestResult(id string) error {
	current, ok := tx.state.results[id]
	if !ok {
		return fmt.Errorf("result %q not found", id)
	}
	delete(tx.state.results, id)
	tx.recordChange(Change{Entity: domain.EntityTestResult, Action: domain.ActionDelete, Before: payloadOf(current)})
	return nil
}
