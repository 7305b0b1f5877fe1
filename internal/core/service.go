package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"qctrack/internal/infra/persistence/memory"
	"qctrack/pkg/domain"
)

// Clock abstracts the time source used for operation timing.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the current time from the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

// Option customizes service construction.
type Option func(*Service)

// WithLogger installs a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// Service exposes higher-level transactional operations for the quality
// control schema.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: noopLogger{},
		tracer: noopTracer{},
		clock:  ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over an in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// run wraps one service operation with tracing, metrics and logging.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := s.clock.Now()
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, duration)
	}
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation, "duration_ms", float64(duration)/float64(time.Millisecond))
	}
	return err
}

// CreateProduct persists a new product.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, Result, error) {
	var created Product
	var res Result
	err := s.run(ctx, "create_product", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateProduct(product)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateProduct mutates a product using the provided mutator.
func (s *Service) UpdateProduct(ctx context.Context, id string, mutator func(*Product) error) (Product, Result, error) {
	var updated Product
	var res Result
	err := s.run(ctx, "update_product", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateProduct(id, mutator)
			return err
		})
		return err
	})
	return updated, res, err
}

// CreateTestSpecification persists a required-test declaration for a product.
func (s *Service) CreateTestSpecification(ctx context.Context, spec TestSpecification) (TestSpecification, Result, error) {
	var created TestSpecification
	var res Result
	err := s.run(ctx, "create_test_specification", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateTestSpecification(spec)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateTestSpecification mutates a specification.
func (s *Service) UpdateTestSpecification(ctx context.Context, id string, mutator func(*TestSpecification) error) (TestSpecification, Result, error) {
	var updated TestSpecification
	var res Result
	err := s.run(ctx, "update_test_specification", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateTestSpecification(id, mutator)
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteTestSpecification removes a specification.
func (s *Service) DeleteTestSpecification(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_test_specification", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteTestSpecification(id)
		})
		return err
	})
	return res, err
}

// CreateLot persists a new lot.
func (s *Service) CreateLot(ctx context.Context, lot Lot) (Lot, Result, error) {
	var created Lot
	var res Result
	err := s.run(ctx, "create_lot", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateLot(lot)
			return err
		})
		return err
	})
	return created, res, err
}

// AdvanceLotStatus moves a lot along its pipeline. Transition legality is
// enforced by the lot status rule; illegal moves abort the transaction.
func (s *Service) AdvanceLotStatus(ctx context.Context, id string, next LotStatus) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.run(ctx, "advance_lot_status", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateLot(id, func(l *Lot) error {
				l.Status = next
				return nil
			})
			return err
		})
		return err
	})
	return updated, res, err
}

// CreateTestResult records a result against a lot.
func (s *Service) CreateTestResult(ctx context.Context, lotID string, result TestResult) (TestResult, Result, error) {
	var created TestResult
	var res Result
	err := s.run(ctx, "create_test_result", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindLot(lotID); !ok {
				return ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			result.LotID = lotID
			var err error
			created, err = tx.CreateTestResult(result)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateTestResult mutates a result using the provided mutator.
func (s *Service) UpdateTestResult(ctx context.Context, id string, mutator func(*TestResult) error) (TestResult, Result, error) {
	var updated TestResult
	var res Result
	err := s.run(ctx, "update_test_result", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateTestResult(id, mutator)
			return err
		})
		return err
	})
	return updated, res, err
}

// ApproveTestResult locks a draft result. Approved results are immutable.
func (s *Service) ApproveTestResult(ctx context.Context, id string) (TestResult, Result, error) {
	return s.UpdateTestResult(ctx, id, func(r *TestResult) error {
		r.Status = ResultStatusApproved
		return nil
	})
}

// DeleteTestResult removes a result record.
func (s *Service) DeleteTestResult(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_test_result", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteTestResult(id)
		})
		return err
	})
	return res, err
}

// AttachResultDocument links a stored source document to a result.
func (s *Service) AttachResultDocument(ctx context.Context, id, key string) (TestResult, Result, error) {
	return s.UpdateTestResult(ctx, id, func(r *TestResult) error {
		r.DocumentKey = &key
		return nil
	})
}

// ListSpecificationsForLot returns the specifications covering a lot's
// products, grouped by the lot's product order and sorted deterministically
// within each product. De-duplication by test name is left to the grid
// reconciler so first occurrence follows product order.
func (s *Service) ListSpecificationsForLot(ctx context.Context, lotID string) ([]TestSpecification, error) {
	var out []TestSpecification
	err := s.run(ctx, "list_specifications_for_lot", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			lot, ok := view.FindLot(lotID)
			if !ok {
				return ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			all := view.ListTestSpecifications()
			sortSpecifications(all)
			for _, productID := range lot.ProductIDs {
				for _, spec := range all {
					if spec.ProductID == productID {
						out = append(out, spec)
					}
				}
			}
			return nil
		})
	})
	return out, err
}

// ListSpecificationsForProduct returns one product's specifications in
// stable order.
func (s *Service) ListSpecificationsForProduct(ctx context.Context, productID string) ([]TestSpecification, error) {
	var out []TestSpecification
	err := s.run(ctx, "list_specifications_for_product", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindProduct(productID); !ok {
				return ErrNotFound{Entity: EntityProduct, ID: productID}
			}
			for _, spec := range view.ListTestSpecifications() {
				if spec.ProductID == productID {
					out = append(out, spec)
				}
			}
			sortSpecifications(out)
			return nil
		})
	})
	return out, err
}

// ListResultsForLot returns the lot's recorded results in stable order.
func (s *Service) ListResultsForLot(ctx context.Context, lotID string) ([]TestResult, error) {
	var out []TestResult
	err := s.run(ctx, "list_results_for_lot", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindLot(lotID); !ok {
				return ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			for _, res := range view.ListTestResults() {
				if res.LotID == lotID {
					out = append(out, res)
				}
			}
			sortResults(out)
			return nil
		})
	})
	return out, err
}

// GetLot returns a lot by ID.
func (s *Service) GetLot(ctx context.Context, id string) (Lot, error) {
	lot, ok := s.store.GetLot(id)
	if !ok {
		return Lot{}, ErrNotFound{Entity: EntityLot, ID: id}
	}
	_ = ctx
	return lot, nil
}

// ListLots returns all lots in stable order.
func (s *Service) ListLots(ctx context.Context) []Lot {
	_ = ctx
	lots := s.store.ListLots()
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots
}

// ListProducts returns all products in stable order.
func (s *Service) ListProducts(ctx context.Context) []Product {
	_ = ctx
	products := s.store.ListProducts()
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})
	return products
}

// GetTestResult returns a result by ID.
func (s *Service) GetTestResult(ctx context.Context, id string) (TestResult, error) {
	_ = ctx
	res, ok := s.store.GetTestResult(id)
	if !ok {
		return TestResult{}, ErrNotFound{Entity: EntityTestResult, ID: id}
	}
	return res, nil
}

func sortSpecifications(specs []TestSpecification) {
	sort.Slice(specs, func(i, j int) bool {
		if !specs[i].CreatedAt.Equal(specs[j].CreatedAt) {
			return specs[i].CreatedAt.Before(specs[j].CreatedAt)
		}
		return specs[i].TestName < specs[j].TestName
	})
}

func sortResults(results []TestResult) {
	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
}
