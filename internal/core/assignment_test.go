package core

import (
	"errors"
	"testing"

	"housingcore/pkg/domain"
)

func TestWindowsOverlapInclusiveBoundary(t *testing.T) {
	aOpen := mustDate(t, "01 03 2025")
	aClose := mustDate(t, "31 03 2025")

	cases := []struct {
		name   string
		bOpen  string
		bClose string
		want   bool
	}{
		{"disjoint after", "01 04 2025", "30 04 2025", false},
		{"disjoint before", "01 01 2025", "28 02 2025", false},
		{"shared close day", "31 03 2025", "30 04 2025", true},
		{"shared open day", "01 01 2025", "01 03 2025", true},
		{"contained", "10 03 2025", "20 03 2025", true},
		{"identical", "01 03 2025", "31 03 2025", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WindowsOverlap(aOpen, aClose, mustDate(t, tc.bOpen), mustDate(t, tc.bClose))
			if got != tc.want {
				t.Errorf("WindowsOverlap = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanRegisterRejectsOverlapAndOwnApplication(t *testing.T) {
	policy := OfficerAssignmentPolicy{}
	current := Project{
		Base:      Base{ID: "proj-1"},
		OpenDate:  mustDate(t, "01 03 2025"),
		CloseDate: mustDate(t, "31 03 2025"),
	}
	overlapping := Project{
		Base:      Base{ID: "proj-2"},
		OpenDate:  mustDate(t, "31 03 2025"),
		CloseDate: mustDate(t, "30 04 2025"),
	}
	disjoint := Project{
		Base:      Base{ID: "proj-3"},
		OpenDate:  mustDate(t, "01 06 2025"),
		CloseDate: mustDate(t, "30 06 2025"),
	}
	projects := map[string]Project{
		current.ID:     current,
		overlapping.ID: overlapping,
		disjoint.ID:    disjoint,
	}
	officer := Person{
		Base: Base{ID: "T2222222B"},
		Role: RoleOfficer,
		Officer: &domain.OfficerProfile{
			Registrations: []domain.OfficerRegistration{
				{ProjectID: current.ID, Status: RegistrationApproved},
			},
		},
	}

	if err := policy.CanRegister(officer, overlapping, projects, nil); !domain.IsKind(err, domain.ErrStateConflict) {
		t.Errorf("overlapping window: got %v, want state_conflict", err)
	}
	if err := policy.CanRegister(officer, disjoint, projects, nil); err != nil {
		t.Errorf("disjoint window: unexpected error %v", err)
	}
	if err := policy.CanRegister(officer, current, projects, nil); !domain.IsKind(err, domain.ErrStateConflict) {
		t.Errorf("duplicate registration: got %v, want state_conflict", err)
	}

	// A pending registration reserves nothing yet; only the approved
	// assignment's window is exclusive.
	pendingOnly := officer
	pendingOnly.Officer = &domain.OfficerProfile{
		Registrations: []domain.OfficerRegistration{
			{ProjectID: current.ID, Status: RegistrationPending},
		},
	}
	if err := policy.CanRegister(pendingOnly, overlapping, projects, nil); err != nil {
		t.Errorf("pending overlapping registration: unexpected error %v", err)
	}
	if err := policy.CanRegister(pendingOnly, current, projects, nil); !domain.IsKind(err, domain.ErrStateConflict) {
		t.Errorf("duplicate pending registration: got %v, want state_conflict", err)
	}

	apps := []Application{{Base: Base{ID: "app-1"}, ApplicantID: officer.ID, ProjectID: disjoint.ID, Status: StatusPending}}
	if err := policy.CanRegister(officer, disjoint, projects, apps); !domain.IsKind(err, domain.ErrStateConflict) {
		t.Errorf("own live application: got %v, want state_conflict", err)
	}

	applicant := Person{Base: Base{ID: "S1234567A"}, Role: RoleApplicant}
	if err := policy.CanRegister(applicant, disjoint, projects, nil); !domain.IsKind(err, domain.ErrAuthorization) {
		t.Errorf("non-officer: got %v, want authorization", err)
	}
}

func TestCanApproveRespectsSlots(t *testing.T) {
	policy := OfficerAssignmentPolicy{}
	project := Project{
		Base:         Base{ID: "proj-1"},
		OfficerSlots: 1,
	}
	if err := policy.CanApprove(project); err != nil {
		t.Fatalf("open slot: unexpected error %v", err)
	}
	project.OfficerIDs = []string{"T2222222B"}
	err := policy.CanApprove(project)
	if !domain.IsKind(err, domain.ErrStateConflict) {
		t.Fatalf("full slots: got %v, want state_conflict", err)
	}
	var de DomainError
	if !errors.As(err, &de) {
		t.Fatal("expected DomainError")
	}
}
