package core

import (
	"context"
	"fmt"

	"housingcore/pkg/domain"
)

// NewApplicantExclusivityRule returns the in-transaction rule enforcing that a
// person never holds more than one live application.
func NewApplicantExclusivityRule() domain.Rule {
	return applicantExclusivityRule{}
}

type applicantExclusivityRule struct{}

func (applicantExclusivityRule) Name() string { return "applicant_exclusivity" }

func (applicantExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	live := make(map[string][]string)
	for _, application := range view.ListApplications() {
		if application.Status.IsTerminal() {
			continue
		}
		live[application.ApplicantID] = append(live[application.ApplicantID], application.ID)
	}

	res := domain.Result{}
	for applicantID, applicationIDs := range live {
		if len(applicationIDs) <= 1 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "applicant_exclusivity",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("applicant %s holds %d live applications", applicantID, len(applicationIDs)),
			Entity:   domain.EntityPerson,
			EntityID: applicantID,
		})
	}
	return res, nil
}
