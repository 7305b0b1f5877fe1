package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	DeleteLot(id string) error
	CreateTestSpecification(TestSpecification) (TestSpecification, error)
	UpdateTestSpecification(id string, mutator func(*TestSpecification) error) (TestSpecification, error)
	DeleteTestSpecification(id string) error
	CreateTestResult(TestResult) (TestResult, error)
	UpdateTestResult(id string, mutator func(*TestResult) error) (TestResult, error)
	DeleteTestResult(id string) error
	FindProduct(id string) (Product, bool)
	FindLot(id string) (Lot, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// reconciliation passes.
type TransactionView interface {
	ListProducts() []Product
	ListLots() []Lot
	ListTestSpecifications() []TestSpecification
	ListTestResults() []TestResult
	FindProduct(id string) (Product, bool)
	FindLot(id string) (Lot, bool)
	FindTestSpecification(id string) (TestSpecification, bool)
	FindTestResult(id string) (TestResult, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProduct(id string) (Product, bool)
	ListProducts() []Product
	GetLot(id string) (Lot, bool)
	ListLots() []Lot
	GetTestResult(id string) (TestResult, bool)
	ListTestSpecifications() []TestSpecification
	ListTestResults() []TestResult
}
