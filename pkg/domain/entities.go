// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by qctrack.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a product catalog record.
	EntityProduct EntityType = "product"
	// EntityLot identifies a lot (sample submission) record.
	EntityLot EntityType = "lot"
	// EntityTestSpecification identifies a required-test specification record.
	EntityTestSpecification EntityType = "test_specification"
	// EntityTestResult identifies a recorded test result.
	EntityTestResult EntityType = "test_result"
)

// LotStatus represents the canonical lot pipeline states.
type LotStatus string

// Canonical lot statuses. Approved and rejected are terminal; grid editing is
// only permitted while a lot is in received or in_testing.
const (
	LotStatusReceived  LotStatus = "received"
	LotStatusInTesting LotStatus = "in_testing"
	LotStatusInReview  LotStatus = "in_review"
	LotStatusApproved  LotStatus = "approved"
	LotStatusRejected  LotStatus = "rejected"
)

// Editable reports whether results may still be recorded against a lot in
// this status. Role checks live with the caller; this is the status half of
// the authorization decision.
func (s LotStatus) Editable() bool {
	return s == LotStatusReceived || s == LotStatusInTesting
}

// Terminal reports whether the status permits no further transitions.
func (s LotStatus) Terminal() bool {
	return s == LotStatusApproved || s == LotStatusRejected
}

// ResultStatus enumerates test result lifecycle states.
type ResultStatus string

// Canonical result statuses used by the review workflow.
const (
	ResultStatusDraft    ResultStatus = "draft"
	ResultStatusApproved ResultStatus = "approved"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Action identifies the mutation recorded in a Change.
type Action string

// Canonical change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a catalog entry owning the test specifications that lots of
// this product must satisfy.
type Product struct {
	Base
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Lot is a sample submission tracked through the quality-control pipeline.
// Multi-product lots carry more than one product reference; their required
// specifications are the de-duplicated union across products.
type Lot struct {
	Base
	Number     string    `json:"number"`
	ProductIDs []string  `json:"product_ids"`
	Status     LotStatus `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
	Notes      *string   `json:"notes,omitempty"`
}

// TestSpecification declares a required or optional test for a product with
// a pass/fail criterion expressed as a free-form specification string
// (e.g. "< 10,000 CFU/g", "Negative"). Immutable from the grid's
// perspective; owned by the product catalog.
type TestSpecification struct {
	Base
	ProductID     string `json:"product_id"`
	TestName      string `json:"test_name"`
	Category      string `json:"category"`
	Unit          string `json:"unit"`
	Specification string `json:"specification"`
	Required      bool   `json:"required"`
	DefaultMethod string `json:"default_method"`
}

// TestResult is a persisted result recorded against a lot. Specification is
// snapshotted at recording time so later catalog edits do not rewrite
// history. DocumentKey optionally links a stored source document.
type TestResult struct {
	Base
	LotID         string       `json:"lot_id"`
	TestName      string       `json:"test_name"`
	Value         string       `json:"value"`
	Unit          string       `json:"unit"`
	Specification string       `json:"specification"`
	Method        string       `json:"method"`
	Notes         string       `json:"notes"`
	Status        ResultStatus `json:"status"`
	DocumentKey   *string      `json:"document_key,omitempty"`
}

// Change captures a single entity mutation observed within a transaction.
// Before is undefined for creates; After is undefined for deletes.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Violation describes a rule outcome attached to a specific entity.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule violations produced by a transaction.
type Result struct {
	Violations []Violation
}

// Merge appends the other result's violations.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation carries block severity.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
