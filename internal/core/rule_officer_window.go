package core

import (
	"context"
	"fmt"
	"sort"

	"housingcore/pkg/domain"
)

// NewOfficerWindowRule returns the in-transaction rule blocking officers from
// holding approved assignments with overlapping project windows.
func NewOfficerWindowRule() domain.Rule {
	return officerWindowRule{}
}

type officerWindowRule struct{}

func (officerWindowRule) Name() string { return "officer_window" }

func (officerWindowRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	projects := make(map[string]domain.Project)
	for _, project := range view.ListProjects() {
		projects[project.ID] = project
	}

	res := domain.Result{}
	for _, person := range view.ListPersons() {
		if person.Officer == nil {
			continue
		}
		var active []domain.Project
		for _, reg := range person.Officer.Registrations {
			if reg.Status != domain.RegistrationApproved {
				continue
			}
			project, ok := projects[reg.ProjectID]
			if !ok {
				continue
			}
			active = append(active, project)
		}
		sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				a, b := active[i], active[j]
				if WindowsOverlap(a.OpenDate, a.CloseDate, b.OpenDate, b.CloseDate) {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "officer_window",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("officer %s registered for projects %s and %s with overlapping windows", person.ID, a.ID, b.ID),
						Entity:   domain.EntityPerson,
						EntityID: person.ID,
					})
				}
			}
		}
	}
	return res, nil
}
