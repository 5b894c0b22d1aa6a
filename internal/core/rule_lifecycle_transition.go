package core

import (
	"context"
	"fmt"

	"housingcore/pkg/domain"
)

// LifecycleTransitionRule blocks illegal application state transitions.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

var applicationStates = toSet(
	string(domain.StatusPending),
	string(domain.StatusSuccess),
	string(domain.StatusRejected),
	string(domain.StatusBooked),
	string(domain.StatusWithdrawalPending),
	string(domain.StatusWithdrawalApproved),
)

// applicationTransitions lists the permitted successor states per state. A
// withdrawal rejection may restore any of the states a withdrawal can be
// requested from.
var applicationTransitions = map[domain.ApplicationStatus]map[string]struct{}{
	domain.StatusPending: toSet(
		string(domain.StatusSuccess),
		string(domain.StatusRejected),
		string(domain.StatusWithdrawalPending),
	),
	domain.StatusSuccess: toSet(
		string(domain.StatusBooked),
		string(domain.StatusWithdrawalPending),
	),
	domain.StatusBooked: toSet(
		string(domain.StatusWithdrawalPending),
	),
	domain.StatusWithdrawalPending: toSet(
		string(domain.StatusWithdrawalApproved),
		string(domain.StatusPending),
		string(domain.StatusSuccess),
		string(domain.StatusBooked),
	),
	domain.StatusRejected:           {},
	domain.StatusWithdrawalApproved: {},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityApplication {
			continue
		}

		after, ok := decodeChange[domain.Application](change.After)
		if ok {
			if _, valid := applicationStates[string(after.Status)]; !valid {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("application %s is set to invalid state %s", after.ID, after.Status),
					Entity:   domain.EntityApplication,
					EntityID: after.ID,
				})
				continue
			}
		}

		before, ok := decodeChange[domain.Application](change.Before)
		if !ok {
			continue
		}
		after, ok = decodeChange[domain.Application](change.After)
		if !ok {
			continue
		}
		if after.Status == before.Status {
			continue
		}
		if _, allowed := applicationTransitions[before.Status][string(after.Status)]; !allowed {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move application %s from %s to %s", before.ID, before.Status, after.Status),
				Entity:   domain.EntityApplication,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
