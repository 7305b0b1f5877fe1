package core

import (
	"context"
	"fmt"

	"qctrack/pkg/domain"
)

// LotStatusTransitionRule blocks illegal moves through the lot pipeline.
// Lots advance received -> in_testing -> in_review and close as approved or
// rejected; in_review may also return to in_testing for retests. Terminal
// statuses admit no further transitions.
func LotStatusTransitionRule() domain.Rule {
	return lotStatusTransitionRule{}
}

type lotStatusTransitionRule struct{}

var lotStatusTransitions = map[LotStatus]map[LotStatus]struct{}{
	LotStatusReceived:  toStatusSet(LotStatusInTesting),
	LotStatusInTesting: toStatusSet(LotStatusInReview),
	LotStatusInReview:  toStatusSet(LotStatusApproved, LotStatusRejected, LotStatusInTesting),
	LotStatusApproved:  {},
	LotStatusRejected:  {},
}

func (lotStatusTransitionRule) Name() string { return "lot_status_transition" }

func (lotStatusTransitionRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityLot {
			continue
		}
		after, ok := domain.Decode[Lot](change.After)
		if !ok {
			continue
		}
		if _, valid := lotStatusTransitions[after.Status]; !valid {
			res.Violations = append(res.Violations, Violation{
				Rule:     "lot_status_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("lot %s is set to invalid status %s", after.ID, after.Status),
				Entity:   EntityLot,
				EntityID: after.ID,
			})
			continue
		}
		before, ok := domain.Decode[Lot](change.Before)
		if !ok || before.Status == after.Status {
			continue
		}
		if _, allowed := lotStatusTransitions[before.Status][after.Status]; !allowed {
			res.Violations = append(res.Violations, Violation{
				Rule:     "lot_status_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("cannot move lot %s from %s to %s", after.ID, before.Status, after.Status),
				Entity:   EntityLot,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func toStatusSet(statuses ...LotStatus) map[LotStatus]struct{} {
	set := make(map[LotStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}
