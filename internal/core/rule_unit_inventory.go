package core

import (
	"context"
	"fmt"

	"housingcore/pkg/domain"
)

// NewUnitInventoryRule returns the in-transaction rule enforcing unit
// inventory bounds on every project offer.
func NewUnitInventoryRule() domain.Rule {
	return unitInventoryRule{}
}

type unitInventoryRule struct{}

func (unitInventoryRule) Name() string { return "unit_inventory" }

func (unitInventoryRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		for _, offer := range project.Offers {
			if offer.Remaining < 0 || offer.Remaining > offer.Total {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "unit_inventory",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("project %s offer %s inventory out of bounds: %d/%d", project.ID, offer.Type, offer.Remaining, offer.Total),
					Entity:   domain.EntityProject,
					EntityID: project.ID,
				})
			}
		}
	}
	return res, nil
}
