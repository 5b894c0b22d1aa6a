package flatfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"housingcore/pkg/domain"
)

type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *captureLogger) Warn(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func seedState(t *testing.T, s *Store) (domain.Application, domain.Receipt) {
	t.Helper()
	prior := domain.StatusBooked
	var application domain.Application
	var receipt domain.Receipt
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreatePerson(domain.Person{
			Base:          domain.Base{ID: "S4000004D"},
			Name:          "Mei Lin",
			DateOfBirth:   time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC),
			MaritalStatus: domain.MaritalMarried,
			Password:      "pw",
			Role:          domain.RoleManager,
		}); err != nil {
			return err
		}
		if _, err := tx.CreatePerson(domain.Person{
			Base:          domain.Base{ID: "S1000001A"},
			Name:          "Tan | Wei; Jie",
			DateOfBirth:   time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			MaritalStatus: domain.MaritalMarried,
			Password:      "pw",
			Role:          domain.RoleApplicant,
		}); err != nil {
			return err
		}
		if _, err := tx.CreatePerson(domain.Person{
			Base:          domain.Base{ID: "T3000003C"},
			Name:          "Daniel",
			DateOfBirth:   time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC),
			MaritalStatus: domain.MaritalMarried,
			Password:      "pw",
			Role:          domain.RoleOfficer,
			Officer: &domain.OfficerProfile{Registrations: []domain.OfficerRegistration{
				{ProjectID: "proj-1", Status: domain.RegistrationApproved},
			}},
		}); err != nil {
			return err
		}
		if _, err := tx.CreateProject(domain.Project{
			Base:          domain.Base{ID: "proj-1"},
			Name:          "Acacia Breeze",
			Visible:       true,
			Neighbourhood: "Yishun",
			OpenDate:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			CloseDate:     time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
			ManagerID:     "S4000004D",
			OfficerSlots:  2,
			Offers:        []domain.UnitOffer{{Type: domain.UnitThreeRoom, Total: 5, Remaining: 4, Price: 450000}},
		}); err != nil {
			return err
		}
		var err error
		application, err = tx.CreateApplication(domain.Application{
			Base:        domain.Base{ID: "app-1"},
			Status:      domain.StatusWithdrawalPending,
			PriorStatus: &prior,
			ApplicantID: "S1000001A",
			ProjectID:   "proj-1",
			UnitType:    domain.UnitThreeRoom,
		})
		if err != nil {
			return err
		}
		if _, err := tx.CreateEnquiry(domain.Enquiry{
			Base:        domain.Base{ID: "enq-1"},
			ApplicantID: "S1000001A",
			ProjectID:   "proj-1",
			Message:     "Is the view blocked?\nAsking | seriously; really, truly",
		}); err != nil {
			return err
		}
		receipt, err = tx.CreateReceipt(domain.Receipt{
			Base:          domain.Base{ID: "rcpt-1"},
			ApplicationID: "app-1",
			ApplicantID:   "S1000001A",
			ApplicantName: "Tan | Wei; Jie",
			ProjectID:     "proj-1",
			ProjectName:   "Acacia Breeze",
			UnitType:      domain.UnitThreeRoom,
			Price:         450000,
			IssuedAt:      time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return application, receipt
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	first, err := NewStore(dir, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	application, receipt := seedState(t, first)

	for _, name := range []string{personsFile, projectsFile, applicationsFile, enquiriesFile, receiptsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("table %s not written: %v", name, err)
		}
	}

	second, err := NewStore(dir, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	person, ok := second.GetPerson("S1000001A")
	if !ok || person.Name != "Tan | Wei; Jie" {
		t.Fatalf("person lost on reload: %+v", person)
	}
	if person.Applicant == nil || person.Applicant.ApplicationID == nil || *person.Applicant.ApplicationID != application.ID {
		t.Fatal("live application link not rebuilt on reload")
	}

	project, ok := second.GetProject("proj-1")
	if !ok {
		t.Fatal("project lost on reload")
	}
	if len(project.OfficerIDs) != 1 || project.OfficerIDs[0] != "T3000003C" {
		t.Fatalf("officer assignment not rebuilt: %v", project.OfficerIDs)
	}
	if project.Offers[0].Remaining != 4 {
		t.Fatalf("remaining = %d, want 4", project.Offers[0].Remaining)
	}

	app, ok := second.GetApplication(application.ID)
	if !ok {
		t.Fatal("application lost on reload")
	}
	if app.Status != domain.StatusWithdrawalPending || app.PriorStatus == nil || *app.PriorStatus != domain.StatusBooked {
		t.Fatalf("withdrawal state lost: %+v", app)
	}

	enquiries := second.ListEnquiries()
	if len(enquiries) != 1 || !strings.Contains(enquiries[0].Message, "Asking | seriously") {
		t.Fatalf("enquiry lost or mangled: %+v", enquiries)
	}

	receipts := second.ListReceipts()
	if len(receipts) != 1 || receipts[0].ID != receipt.ID || !receipts[0].IssuedAt.Equal(receipt.IssuedAt) {
		t.Fatalf("receipt lost: %+v", receipts)
	}
}

func TestFailedTransactionDoesNotRewriteTables(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedState(t, s)

	before, err := os.ReadFile(filepath.Join(dir, personsFile))
	if err != nil {
		t.Fatalf("read persons: %v", err)
	}

	if _, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, txErr := tx.CreatePerson(domain.Person{Base: domain.Base{ID: "S9000009Z"}, Role: domain.RoleApplicant}); txErr != nil {
			return txErr
		}
		return os.ErrInvalid
	}); err == nil {
		t.Fatal("transaction should fail")
	}

	after, err := os.ReadFile(filepath.Join(dir, personsFile))
	if err != nil {
		t.Fatalf("read persons: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("failed transaction must not touch the table files")
	}
}

func TestMalformedRowSkippedWithWarning(t *testing.T) {
	dir := t.TempDir()
	good := encodePerson(domain.Person{
		Base:          domain.Base{ID: "S1000001A"},
		Name:          "Tan",
		DateOfBirth:   time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		MaritalStatus: domain.MaritalMarried,
		Password:      "pw",
		Role:          domain.RoleApplicant,
	})
	content := personColumns + "\n" + good + "\n" + "too|few|fields\n"
	if err := os.WriteFile(filepath.Join(dir, personsFile), []byte(content), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}

	logger := &captureLogger{}
	s, err := NewStore(dir, nil, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if persons := s.ListPersons(); len(persons) != 1 || persons[0].ID != "S1000001A" {
		t.Fatalf("persons = %+v", persons)
	}
	if logger.count() != 1 {
		t.Fatalf("warnings = %d, want 1", logger.count())
	}
}

func TestOpenEmptyDirectory(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if persons := s.ListPersons(); len(persons) != 0 {
		t.Fatalf("expected empty store, got %d persons", len(persons))
	}
}
