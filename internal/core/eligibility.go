package core

import (
	"time"

	"housingcore/pkg/domain"
)

// Minimum ages for unit eligibility.
const (
	minAgeSingle  = 35
	minAgeMarried = 21
)

var unitRank = map[UnitType]int{
	domain.UnitTwoRoom:   1,
	domain.UnitThreeRoom: 2,
}

// SmallestUnitType returns the lowest-ranked type in the unit catalogue.
// Single applicants qualify for this type only, whether or not a given
// project offers it.
func SmallestUnitType() UnitType {
	smallest := domain.UnitTwoRoom
	for unit, rank := range unitRank {
		if rank < unitRank[smallest] {
			smallest = unit
		}
	}
	return smallest
}

// EligibilityPolicy decides which unit types a person may apply for.
// Single applicants qualify only for the smallest catalogue unit type from
// age 35; married applicants qualify for any offered type from age 21.
type EligibilityPolicy struct{}

// UnitEligibility reports whether the person may apply for the given unit type
// within the project's offer list at the given instant.
func (EligibilityPolicy) UnitEligibility(person Person, project Project, unit UnitType, asOf time.Time) bool {
	if _, offered := project.Offer(unit); !offered {
		return false
	}
	age := person.AgeAt(asOf)
	switch person.MaritalStatus {
	case domain.MaritalSingle:
		return unit == SmallestUnitType() && age >= minAgeSingle
	case domain.MaritalMarried:
		return age >= minAgeMarried
	default:
		return false
	}
}

// EligibleUnitTypes lists the offered unit types the person qualifies for.
func (p EligibilityPolicy) EligibleUnitTypes(person Person, project Project, asOf time.Time) []UnitType {
	var out []UnitType
	for _, offer := range project.Offers {
		if p.UnitEligibility(person, project, offer.Type, asOf) {
			out = append(out, offer.Type)
		}
	}
	return out
}

// ProjectEligibility reports whether the person may submit an application to
// the project: at least one offered type must be eligible and the person must
// not hold a live application.
func (p EligibilityPolicy) ProjectEligibility(person Person, project Project, applications []Application, asOf time.Time) bool {
	if !person.CanApply() {
		return false
	}
	for _, application := range applications {
		if application.ApplicantID == person.ID && !application.Status.IsTerminal() {
			return false
		}
	}
	return len(p.EligibleUnitTypes(person, project, asOf)) > 0
}
