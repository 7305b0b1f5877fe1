package core

import (
	"context"
	"fmt"

	"qctrack/pkg/domain"
)

// ResultRequiresOpenLotRule ties results to an existing lot and blocks new
// recordings once the lot has left its editable statuses.
func ResultRequiresOpenLotRule() domain.Rule {
	return resultRequiresOpenLotRule{}
}

type resultRequiresOpenLotRule struct{}

func (resultRequiresOpenLotRule) Name() string { return "result_requires_open_lot" }

func (resultRequiresOpenLotRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityTestResult {
			continue
		}
		if change.Action != ActionCreate && change.Action != ActionUpdate {
			continue
		}
		after, ok := domain.Decode[TestResult](change.After)
		if !ok {
			continue
		}
		lot, found := view.FindLot(after.LotID)
		if !found {
			res.Violations = append(res.Violations, Violation{
				Rule:     "result_requires_open_lot",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("result %s references missing lot %s", after.ID, after.LotID),
				Entity:   EntityTestResult,
				EntityID: after.ID,
			})
			continue
		}
		if change.Action == ActionCreate && !lot.Status.Editable() {
			res.Violations = append(res.Violations, Violation{
				Rule:     "result_requires_open_lot",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("lot %s is %s; results can no longer be recorded", lot.ID, lot.Status),
				Entity:   EntityTestResult,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
