// Package gridapi exposes the result grid over HTTP and adapts the core
// service to the grid's persistence surface.
package gridapi

import (
	"context"

	"qctrack/internal/core"
	"qctrack/internal/grid"
	"qctrack/pkg/domain"
)

// ServiceResultStore adapts a core.Service to the grid's save surface.
type ServiceResultStore struct {
	svc *core.Service
}

// NewServiceResultStore wraps the service for grid coordinator use.
func NewServiceResultStore(svc *core.Service) *ServiceResultStore {
	return &ServiceResultStore{svc: svc}
}

var _ grid.ResultStore = (*ServiceResultStore)(nil)

// CreateResult records a new draft result for the lot, seeded from the
// placeholder row's specification snapshot.
func (s *ServiceResultStore) CreateResult(ctx context.Context, lotID string, fields grid.ResultFields) (domain.TestResult, error) {
	created, _, err := s.svc.CreateTestResult(ctx, lotID, domain.TestResult{
		TestName:      fields.TestName,
		Unit:          fields.Unit,
		Method:        fields.Method,
		Specification: fields.Specification,
		Value:         fields.Value,
		Notes:         fields.Notes,
	})
	return created, err
}

// UpdateResult applies a sparse update to an existing result.
func (s *ServiceResultStore) UpdateResult(ctx context.Context, resultID string, fields grid.PartialFields) (domain.TestResult, error) {
	updated, _, err := s.svc.UpdateTestResult(ctx, resultID, func(r *domain.TestResult) error {
		if fields.Value != nil {
			r.Value = *fields.Value
		}
		if fields.Notes != nil {
			r.Notes = *fields.Notes
		}
		return nil
	})
	return updated, err
}
