package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"housingcore/pkg/domain"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore(nil)
	s.SetNowFunc(func() time.Time { return fixedNow })
	return s
}

func seedPerson(t *testing.T, s *Store, id string, role domain.Role) Person {
	t.Helper()
	var created Person
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreatePerson(Person{
			Base:          domain.Base{ID: id},
			Name:          "Person " + id,
			DateOfBirth:   time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC),
			MaritalStatus: domain.MaritalMarried,
			Password:      "pw",
			Role:          role,
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("seed person %s: %v", id, err)
	}
	return created
}

func seedProject(t *testing.T, s *Store, id, managerID string) Project {
	t.Helper()
	var created Project
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreateProject(Project{
			Base:          domain.Base{ID: id},
			Name:          "Project " + id,
			Visible:       true,
			Neighbourhood: "Yishun",
			OpenDate:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			CloseDate:     time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
			ManagerID:     managerID,
			OfficerSlots:  2,
			Offers:        []domain.UnitOffer{{Type: domain.UnitTwoRoom, Total: 2, Remaining: 2, Price: 300000}},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("seed project %s: %v", id, err)
	}
	return created
}

func seedApplication(t *testing.T, s *Store, id, applicantID, projectID string, status domain.ApplicationStatus) Application {
	t.Helper()
	var created Application
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreateApplication(Application{
			Base:        domain.Base{ID: id},
			Status:      status,
			ApplicantID: applicantID,
			ProjectID:   projectID,
			UnitType:    domain.UnitTwoRoom,
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("seed application %s: %v", id, err)
	}
	return created
}

func TestCreatePersonInitializesProfiles(t *testing.T) {
	s := newTestStore()
	applicant := seedPerson(t, s, "S1000001A", domain.RoleApplicant)
	officer := seedPerson(t, s, "T2000002B", domain.RoleOfficer)
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)

	if applicant.Applicant == nil || applicant.Officer != nil || applicant.Manager != nil {
		t.Errorf("applicant profiles wrong: %+v", applicant)
	}
	if officer.Applicant == nil || officer.Officer == nil {
		t.Errorf("officer must carry applicant and officer profiles: %+v", officer)
	}
	if manager.Manager == nil || manager.Applicant != nil {
		t.Errorf("manager profiles wrong: %+v", manager)
	}
	if !applicant.CreatedAt.Equal(fixedNow) || !applicant.UpdatedAt.Equal(fixedNow) {
		t.Errorf("timestamps = %v / %v, want %v", applicant.CreatedAt, applicant.UpdatedAt, fixedNow)
	}
}

func TestCreatePersonRejectsUnknownRole(t *testing.T) {
	s := newTestStore()
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreatePerson(Person{Base: domain.Base{ID: "S1000001A"}, Role: domain.Role("auditor")})
		return txErr
	})
	if err == nil {
		t.Fatal("unknown role should fail")
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	s := newTestStore()
	sentinel := errors.New("boom")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, txErr := tx.CreatePerson(Person{Base: domain.Base{ID: "S1000001A"}, Role: domain.RoleApplicant}); txErr != nil {
			return txErr
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if _, ok := s.GetPerson("S1000001A"); ok {
		t.Fatal("failed transaction must not commit")
	}
}

type stubRule struct {
	severity domain.Severity
}

func (r stubRule) Name() string { return "stub_application_rule" }

func (r stubRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	for _, c := range changes {
		if c.Entity == domain.EntityApplication && c.Action == domain.ActionCreate {
			return domain.Result{Violations: []domain.Violation{{
				Rule:     r.Name(),
				Severity: r.severity,
				Message:  "application create flagged",
			}}}, nil
		}
	}
	return domain.Result{}, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(stubRule{severity: domain.SeverityBlock})
	s := NewStore(engine)
	s.SetNowFunc(func() time.Time { return fixedNow })
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)
	applicant := seedPerson(t, s, "S1000001A", domain.RoleApplicant)
	project := seedProject(t, s, "proj-1", manager.ID)

	res, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateApplication(Application{
			Base:        domain.Base{ID: "app-1"},
			Status:      domain.StatusPending,
			ApplicantID: applicant.ID,
			ProjectID:   project.ID,
			UnitType:    domain.UnitTwoRoom,
		})
		return txErr
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("err = %v, want RuleViolationError", err)
	}
	if !res.HasBlocking() {
		t.Fatal("result should carry the blocking violation")
	}
	if _, ok := s.GetApplication("app-1"); ok {
		t.Fatal("blocked transaction must not commit")
	}
}

func TestWarnRuleCommitsWithViolation(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(stubRule{severity: domain.SeverityWarn})
	s := NewStore(engine)
	s.SetNowFunc(func() time.Time { return fixedNow })
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)
	applicant := seedPerson(t, s, "S1000001A", domain.RoleApplicant)
	project := seedProject(t, s, "proj-1", manager.ID)

	res, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateApplication(Application{
			Base:        domain.Base{ID: "app-1"},
			Status:      domain.StatusPending,
			ApplicantID: applicant.ID,
			ProjectID:   project.ID,
			UnitType:    domain.UnitTwoRoom,
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("warn severity should not block: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(res.Violations))
	}
	if _, ok := s.GetApplication("app-1"); !ok {
		t.Fatal("warned transaction should commit")
	}
}

func TestReferentialIntegrityGuards(t *testing.T) {
	s := newTestStore()
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)
	applicant := seedPerson(t, s, "S1000001A", domain.RoleApplicant)
	project := seedProject(t, s, "proj-1", manager.ID)
	seedApplication(t, s, "app-1", applicant.ID, project.ID, domain.StatusPending)

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateProject(Project{
			Base:         domain.Base{ID: "proj-x"},
			ManagerID:    "S9999999Z",
			OfficerSlots: 1,
			OpenDate:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			CloseDate:    time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		})
		return txErr
	}); err == nil {
		t.Error("project with unknown manager should fail")
	}

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeletePerson(applicant.ID)
	}); err == nil {
		t.Error("deleting a person with applications should fail")
	}

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteProject(project.ID)
	}); err == nil {
		t.Error("deleting a project with live applications should fail")
	}
}

func TestDeleteProjectCascadesEnquiries(t *testing.T) {
	s := newTestStore()
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)
	applicant := seedPerson(t, s, "S1000001A", domain.RoleApplicant)
	project := seedProject(t, s, "proj-1", manager.ID)

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateEnquiry(Enquiry{
			Base:        domain.Base{ID: "enq-1"},
			ApplicantID: applicant.ID,
			ProjectID:   project.ID,
			Message:     "any updates?",
		})
		return txErr
	}); err != nil {
		t.Fatalf("create enquiry: %v", err)
	}

	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteProject(project.ID)
	}); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if enquiries := s.ListEnquiries(); len(enquiries) != 0 {
		t.Fatalf("enquiries should cascade, found %d", len(enquiries))
	}
}

func TestImportStateReconciliation(t *testing.T) {
	prior := domain.StatusBooked
	appID := "app-live"
	snapshot := Snapshot{
		Persons: map[string]Person{
			"S3000003C": {Base: domain.Base{ID: "S3000003C"}, Role: domain.RoleManager},
			"S1000001A": {Base: domain.Base{ID: "S1000001A"}, Role: domain.RoleApplicant},
			"T2000002B": {
				Base: domain.Base{ID: "T2000002B"},
				Role: domain.RoleOfficer,
				Officer: &domain.OfficerProfile{Registrations: []domain.OfficerRegistration{
					{ProjectID: "proj-1", Status: domain.RegistrationApproved},
					{ProjectID: "proj-gone", Status: domain.RegistrationApproved},
				}},
			},
		},
		Projects: map[string]Project{
			"proj-1": {
				Base:      domain.Base{ID: "proj-1"},
				ManagerID: "S3000003C",
				// remaining above total must be clamped on load
				Offers: []domain.UnitOffer{{Type: domain.UnitTwoRoom, Total: 2, Remaining: 5}},
			},
			"proj-orphan": {Base: domain.Base{ID: "proj-orphan"}, ManagerID: "S9999999Z"},
		},
		Applications: map[string]Application{
			appID: {
				Base:        domain.Base{ID: appID},
				Status:      domain.StatusPending,
				PriorStatus: &prior, // stale; only withdrawal_pending keeps it
				ApplicantID: "S1000001A",
				ProjectID:   "proj-1",
				UnitType:    domain.UnitTwoRoom,
			},
			"app-dangling": {
				Base:        domain.Base{ID: "app-dangling"},
				Status:      domain.StatusPending,
				ApplicantID: "S1000001A",
				ProjectID:   "proj-gone",
			},
		},
		Enquiries: map[string]Enquiry{
			"enq-dangling": {Base: domain.Base{ID: "enq-dangling"}, ApplicantID: "S1000001A", ProjectID: "proj-gone"},
		},
		Receipts: map[string]Receipt{
			"rcpt-dangling": {Base: domain.Base{ID: "rcpt-dangling"}, ApplicationID: "app-gone"},
		},
	}

	s := newTestStore()
	s.ImportState(snapshot)

	if _, ok := s.GetProject("proj-orphan"); ok {
		t.Error("project without a manager should be dropped")
	}
	if _, ok := s.GetApplication("app-dangling"); ok {
		t.Error("application referencing a missing project should be dropped")
	}
	if enquiries := s.ListEnquiries(); len(enquiries) != 0 {
		t.Errorf("dangling enquiries should be dropped, found %d", len(enquiries))
	}
	if receipts := s.ListReceipts(); len(receipts) != 0 {
		t.Errorf("dangling receipts should be dropped, found %d", len(receipts))
	}

	project, ok := s.GetProject("proj-1")
	if !ok {
		t.Fatal("proj-1 should survive")
	}
	if project.Offers[0].Remaining != 2 {
		t.Errorf("remaining = %d, want clamped to 2", project.Offers[0].Remaining)
	}
	if len(project.OfficerIDs) != 1 || project.OfficerIDs[0] != "T2000002B" {
		t.Errorf("officer list not rebuilt: %v", project.OfficerIDs)
	}

	applicant, _ := s.GetPerson("S1000001A")
	if applicant.Applicant == nil || applicant.Applicant.ApplicationID == nil || *applicant.Applicant.ApplicationID != appID {
		t.Error("applicant live application link not rebuilt")
	}
	application, _ := s.GetApplication(appID)
	if application.PriorStatus != nil {
		t.Error("stale prior status should be cleared outside withdrawal_pending")
	}

	officer, _ := s.GetPerson("T2000002B")
	if len(officer.Officer.Registrations) != 1 {
		t.Errorf("registrations for missing projects should be dropped: %v", officer.Officer.Registrations)
	}

	manager, _ := s.GetPerson("S3000003C")
	if manager.Manager == nil || len(manager.Manager.ProjectIDs) != 1 || manager.Manager.ProjectIDs[0] != "proj-1" {
		t.Error("manager project list not rebuilt")
	}
}

func TestExportStateIsDeepCopy(t *testing.T) {
	s := newTestStore()
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)
	seedProject(t, s, "proj-1", manager.ID)

	snapshot := s.ExportState()
	snapshot.Projects["proj-1"].Offers[0].Remaining = 0

	project, _ := s.GetProject("proj-1")
	if project.Offers[0].Remaining != 2 {
		t.Fatal("mutating an exported snapshot must not touch committed state")
	}
}

func TestViewSeesCommittedState(t *testing.T) {
	s := newTestStore()
	manager := seedPerson(t, s, "S3000003C", domain.RoleManager)
	seedProject(t, s, "proj-1", manager.ID)

	err := s.View(context.Background(), func(view TransactionView) error {
		if _, ok := view.FindProject("proj-1"); !ok {
			t.Error("view should expose committed projects")
		}
		if got := len(view.ListPersons()); got != 1 {
			t.Errorf("persons = %d, want 1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
