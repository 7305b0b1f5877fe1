package core

import (
	"context"
	"fmt"

	"qctrack/pkg/domain"
)

// ApprovedResultImmutableRule blocks updates and deletes of approved results.
// Approval is a one-way door; corrections require a new draft result.
func ApprovedResultImmutableRule() domain.Rule {
	return approvedResultImmutableRule{}
}

type approvedResultImmutableRule struct{}

func (approvedResultImmutableRule) Name() string { return "approved_result_immutable" }

func (approvedResultImmutableRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityTestResult {
			continue
		}
		if change.Action != ActionUpdate && change.Action != ActionDelete {
			continue
		}
		before, ok := domain.Decode[TestResult](change.Before)
		if !ok || before.Status != ResultStatusApproved {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     "approved_result_immutable",
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("result %s is approved and cannot be modified", before.ID),
			Entity:   EntityTestResult,
			EntityID: before.ID,
		})
	}
	return res, nil
}
