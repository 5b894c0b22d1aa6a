package core

import (
	"time"

	"housingcore/pkg/domain"
)

// WindowsOverlap reports whether two inclusive date windows intersect.
// Windows sharing a single boundary day overlap.
func WindowsOverlap(aOpen, aClose, bOpen, bClose time.Time) bool {
	return !aOpen.After(bClose) && !bOpen.After(aClose)
}

// OfficerAssignmentPolicy decides whether an officer may register for and be
// assigned to a project.
type OfficerAssignmentPolicy struct{}

// CanRegister reports whether the officer may request registration for the
// project. Registration is refused when the officer holds a live application
// for the same project, or when an already approved assignment's project
// window overlaps the candidate's window. Pending registrations block only a
// duplicate request for the same project.
func (OfficerAssignmentPolicy) CanRegister(officer Person, candidate Project, projects map[string]Project, applications []Application) error {
	if officer.Role != domain.RoleOfficer {
		return domain.NewDomainError(domain.ErrAuthorization, domain.EntityPerson, officer.ID, "only officers may register for projects")
	}
	for _, application := range applications {
		if application.ApplicantID == officer.ID && application.ProjectID == candidate.ID && !application.Status.IsTerminal() {
			return domain.NewDomainError(domain.ErrStateConflict, domain.EntityProject, candidate.ID, "officer %s holds a live application for this project", officer.ID)
		}
	}
	if officer.Officer == nil {
		return nil
	}
	for _, reg := range officer.Officer.Registrations {
		if reg.Status == domain.RegistrationRejected {
			continue
		}
		if reg.ProjectID == candidate.ID {
			return domain.NewDomainError(domain.ErrStateConflict, domain.EntityProject, candidate.ID, "officer %s already registered for this project", officer.ID)
		}
		if reg.Status != domain.RegistrationApproved {
			continue
		}
		other, ok := projects[reg.ProjectID]
		if !ok {
			continue
		}
		if WindowsOverlap(other.OpenDate, other.CloseDate, candidate.OpenDate, candidate.CloseDate) {
			return domain.NewDomainError(domain.ErrStateConflict, domain.EntityProject, candidate.ID, "application window overlaps project %s", other.ID)
		}
	}
	return nil
}

// CanApprove reports whether the project has an open officer slot.
func (OfficerAssignmentPolicy) CanApprove(project Project) error {
	if len(project.OfficerIDs) >= project.OfficerSlots {
		return domain.NewDomainError(domain.ErrStateConflict, domain.EntityProject, project.ID, "all %d officer slots filled", project.OfficerSlots)
	}
	return nil
}
