package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"housingcore/internal/blob"
	"housingcore/pkg/domain"
)

// personIDPattern matches the national ID format: one letter, seven digits,
// one letter.
var personIDPattern = regexp.MustCompile(`^[A-Z][0-9]{7}[A-Z]$`)

// Service exposes the transactional workflow operations of the housing core.
// Every multi-effect operation executes inside a single store transaction so
// its effects commit together or not at all.
type Service struct {
	store       domain.PersistentStore
	eligibility EligibilityPolicy
	assignment  OfficerAssignmentPolicy
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	archive     blob.Store
	nowFn       func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder invoked once per operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer wrapping every operation in a span.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithReceiptArchive installs a blob store that receives a rendered copy of
// every issued booking receipt.
func WithReceiptArchive(store blob.Store) Option {
	return func(s *Service) { s.archive = store }
}

// WithClock overrides the service time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  NopLogger(),
		metrics: nopMetricsRecorder{},
		tracer:  nopTracer{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("operation failed", "operation", operation, "error", err)
	}
	return err
}

// wrapStoreErr converts raw store failures into persistence errors while
// passing typed domain errors and rule violations through untouched.
func wrapStoreErr(entity EntityType, id string, err error) error {
	if err == nil {
		return nil
	}
	var de DomainError
	if errors.As(err, &de) {
		return err
	}
	var rve RuleViolationError
	if errors.As(err, &rve) {
		return err
	}
	return domain.WrapPersistence(entity, id, err)
}

// RegisterPerson validates and persists a new participant record.
func (s *Service) RegisterPerson(ctx context.Context, person Person) (Person, Result, error) {
	var created Person
	var res Result
	err := s.instrument(ctx, "register_person", func(ctx context.Context) error {
		person.ID = strings.ToUpper(strings.TrimSpace(person.ID))
		if !personIDPattern.MatchString(person.ID) {
			return domain.NewDomainError(domain.ErrValidation, EntityPerson, person.ID, "id must be one letter, seven digits, one letter")
		}
		if strings.TrimSpace(person.Name) == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityPerson, person.ID, "name is required")
		}
		if person.DateOfBirth.IsZero() {
			return domain.NewDomainError(domain.ErrValidation, EntityPerson, person.ID, "date of birth is required")
		}
		switch person.MaritalStatus {
		case domain.MaritalSingle, domain.MaritalMarried:
		default:
			return domain.NewDomainError(domain.ErrValidation, EntityPerson, person.ID, "unknown marital status %q", person.MaritalStatus)
		}
		if person.Password == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityPerson, person.ID, "password is required")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, exists := tx.FindPerson(person.ID); exists {
				return domain.NewDomainError(domain.ErrStateConflict, EntityPerson, person.ID, "person already registered")
			}
			var txErr error
			created, txErr = tx.CreatePerson(person)
			return wrapStoreErr(EntityPerson, person.ID, txErr)
		})
		return wrapStoreErr(EntityPerson, person.ID, err)
	})
	return created, res, err
}

// CreateProject persists a new project owned by the acting manager. A manager
// may not own two projects with overlapping application windows.
func (s *Service) CreateProject(ctx context.Context, managerID string, project Project) (Project, Result, error) {
	var created Project
	var res Result
	err := s.instrument(ctx, "create_project", func(ctx context.Context) error {
		if strings.TrimSpace(project.Name) == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "project name is required")
		}
		if strings.TrimSpace(project.Neighbourhood) == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "neighbourhood is required")
		}
		if project.OpenDate.IsZero() || project.CloseDate.IsZero() {
			return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "application window is required")
		}
		if project.CloseDate.Before(project.OpenDate) {
			return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "close date precedes open date")
		}
		if project.OfficerSlots <= 0 || project.OfficerSlots > 10 {
			return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "officer slots must be between 1 and 10")
		}
		if len(project.Offers) == 0 {
			return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "at least one unit offer is required")
		}
		seen := map[UnitType]bool{}
		for _, offer := range project.Offers {
			if _, known := unitRank[offer.Type]; !known {
				return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "unknown unit type %q", offer.Type)
			}
			if seen[offer.Type] {
				return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "duplicate offer for unit type %s", offer.Type)
			}
			seen[offer.Type] = true
			if offer.Total < 0 || offer.Price < 0 {
				return domain.NewDomainError(domain.ErrValidation, EntityProject, "", "offer %s has negative total or price", offer.Type)
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			manager, ok := tx.FindPerson(managerID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, managerID, "manager not found")
			}
			if manager.Role != RoleManager {
				return domain.NewDomainError(domain.ErrAuthorization, EntityPerson, managerID, "only managers may create projects")
			}
			for _, other := range tx.Snapshot().ListProjects() {
				if other.ManagerID != managerID {
					continue
				}
				if WindowsOverlap(other.OpenDate, other.CloseDate, project.OpenDate, project.CloseDate) {
					return domain.NewDomainError(domain.ErrStateConflict, EntityProject, other.ID, "manager already owns a project with an overlapping window")
				}
			}
			project.ManagerID = managerID
			project.OfficerIDs = nil
			project.PendingOfficerIDs = nil
			for i := range project.Offers {
				project.Offers[i].Remaining = project.Offers[i].Total
			}
			var txErr error
			created, txErr = tx.CreateProject(project)
			if txErr != nil {
				return wrapStoreErr(EntityProject, project.ID, txErr)
			}
			_, txErr = tx.UpdatePerson(managerID, func(p *Person) error {
				p.Manager.ProjectIDs = appendUnique(p.Manager.ProjectIDs, created.ID)
				return nil
			})
			return wrapStoreErr(EntityPerson, managerID, txErr)
		})
		return wrapStoreErr(EntityProject, project.ID, err)
	})
	return created, res, err
}

// UpdateProjectDetails lets the owning manager edit descriptive fields and the
// application window. Inventory, officers, and ownership are not editable here.
func (s *Service) UpdateProjectDetails(ctx context.Context, managerID, projectID string, mutator func(*Project) error) (Project, Result, error) {
	var updated Project
	var res Result
	err := s.instrument(ctx, "update_project", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			project, ok := tx.FindProject(projectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			if project.ManagerID != managerID {
				return domain.NewDomainError(domain.ErrAuthorization, EntityProject, projectID, "only the owning manager may edit the project")
			}
			var txErr error
			updated, txErr = tx.UpdateProject(projectID, func(p *Project) error {
				before := *p
				if err := mutator(p); err != nil {
					return err
				}
				p.ManagerID = before.ManagerID
				p.OfficerIDs = before.OfficerIDs
				p.PendingOfficerIDs = before.PendingOfficerIDs
				p.Offers = before.Offers
				return nil
			})
			return wrapStoreErr(EntityProject, projectID, txErr)
		})
		return wrapStoreErr(EntityProject, projectID, err)
	})
	return updated, res, err
}

// SetProjectVisibility toggles whether applicants can see and apply to the project.
func (s *Service) SetProjectVisibility(ctx context.Context, managerID, projectID string, visible bool) (Project, Result, error) {
	return s.UpdateProjectDetails(ctx, managerID, projectID, func(p *Project) error {
		p.Visible = visible
		return nil
	})
}

// DeleteProject removes a project without live applications.
func (s *Service) DeleteProject(ctx context.Context, managerID, projectID string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_project", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			project, ok := tx.FindProject(projectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			if project.ManagerID != managerID {
				return domain.NewDomainError(domain.ErrAuthorization, EntityProject, projectID, "only the owning manager may delete the project")
			}
			for _, application := range tx.Snapshot().ListApplications() {
				if application.ProjectID == projectID && !application.Status.IsTerminal() {
					return domain.NewDomainError(domain.ErrStateConflict, EntityProject, projectID, "project has live applications")
				}
			}
			if txErr := tx.DeleteProject(projectID); txErr != nil {
				return wrapStoreErr(EntityProject, projectID, txErr)
			}
			_, txErr := tx.UpdatePerson(managerID, func(p *Person) error {
				p.Manager.ProjectIDs = removeString(p.Manager.ProjectIDs, projectID)
				return nil
			})
			return wrapStoreErr(EntityPerson, managerID, txErr)
		})
		return wrapStoreErr(EntityProject, projectID, err)
	})
	return res, err
}

// VisibleProjects lists the projects the person may act on right now. Managers
// see every project they own; applicants and officers see visible projects
// with an open window offering at least one unit type they qualify for.
func (s *Service) VisibleProjects(ctx context.Context, personID string) ([]Project, error) {
	var out []Project
	err := s.instrument(ctx, "visible_projects", func(ctx context.Context) error {
		now := s.nowFn()
		return s.store.View(ctx, func(view domain.TransactionView) error {
			person, ok := view.FindPerson(personID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, personID, "person not found")
			}
			for _, project := range view.ListProjects() {
				if person.Role == RoleManager {
					if project.ManagerID == personID {
						out = append(out, project)
					}
					continue
				}
				if !project.Visible || !project.WindowContains(now) {
					continue
				}
				if len(s.eligibility.EligibleUnitTypes(person, project, now)) == 0 {
					continue
				}
				out = append(out, project)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}

// SubmitApplication creates a pending application after all submission guards pass.
func (s *Service) SubmitApplication(ctx context.Context, applicantID, projectID string, unit UnitType) (Application, Result, error) {
	var created Application
	var res Result
	err := s.instrument(ctx, "submit_application", func(ctx context.Context) error {
		now := s.nowFn()
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			person, ok := tx.FindPerson(applicantID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, applicantID, "person not found")
			}
			if !person.CanApply() {
				return domain.NewDomainError(domain.ErrAuthorization, EntityPerson, applicantID, "managers cannot submit applications")
			}
			project, ok := tx.FindProject(projectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			if !project.Visible {
				return domain.NewDomainError(domain.ErrEligibility, EntityProject, projectID, "project is not visible")
			}
			if !project.WindowContains(now) {
				return domain.NewDomainError(domain.ErrEligibility, EntityProject, projectID, "application window is closed")
			}
			if person.Officer != nil {
				for _, reg := range person.Officer.Registrations {
					if reg.ProjectID == projectID && reg.Status != RegistrationRejected {
						return domain.NewDomainError(domain.ErrStateConflict, EntityProject, projectID, "officers cannot apply to a project they registered for")
					}
				}
			}
			if person.Applicant != nil && person.Applicant.ApplicationID != nil {
				return domain.NewDomainError(domain.ErrStateConflict, EntityPerson, applicantID, "a live application already exists")
			}
			if !s.eligibility.UnitEligibility(person, project, unit, now) {
				return domain.NewDomainError(domain.ErrEligibility, EntityPerson, applicantID, "not eligible for unit type %s", unit)
			}
			var txErr error
			created, txErr = tx.CreateApplication(Application{
				Status:      StatusPending,
				ApplicantID: applicantID,
				ProjectID:   projectID,
				UnitType:    unit,
			})
			if txErr != nil {
				return wrapStoreErr(EntityApplication, "", txErr)
			}
			_, txErr = tx.UpdatePerson(applicantID, func(p *Person) error {
				id := created.ID
				p.Applicant.ApplicationID = &id
				return nil
			})
			return wrapStoreErr(EntityPerson, applicantID, txErr)
		})
		return wrapStoreErr(EntityApplication, "", err)
	})
	return created, res, err
}

// DecideApplication records the owning manager's approval or rejection of a
// pending application.
func (s *Service) DecideApplication(ctx context.Context, managerID, applicationID string, approve bool) (Application, Result, error) {
	var updated Application
	var res Result
	err := s.instrument(ctx, "decide_application", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			application, ok := tx.FindApplication(applicationID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityApplication, applicationID, "application not found")
			}
			if err := s.authorizeManager(tx, managerID, application.ProjectID); err != nil {
				return err
			}
			if application.Status != StatusPending {
				return domain.NewDomainError(domain.ErrStateConflict, EntityApplication, applicationID, "application is %s, not pending", application.Status)
			}
			next := StatusRejected
			if approve {
				next = StatusSuccess
			}
			var txErr error
			updated, txErr = tx.UpdateApplication(applicationID, func(a *Application) error {
				a.Status = next
				return nil
			})
			if txErr != nil {
				return wrapStoreErr(EntityApplication, applicationID, txErr)
			}
			if next == StatusRejected {
				_, txErr = tx.UpdatePerson(application.ApplicantID, func(p *Person) error {
					p.Applicant.ApplicationID = nil
					return nil
				})
			}
			return wrapStoreErr(EntityPerson, application.ApplicantID, txErr)
		})
		return wrapStoreErr(EntityApplication, applicationID, err)
	})
	return updated, res, err
}

// BookUnit reserves one unit for a successful application, marks it booked,
// and issues a receipt. All three effects commit together or not at all.
func (s *Service) BookUnit(ctx context.Context, officerID, applicationID string) (Receipt, Result, error) {
	var receipt Receipt
	var res Result
	err := s.instrument(ctx, "book_unit", func(ctx context.Context) error {
		now := s.nowFn()
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			application, ok := tx.FindApplication(applicationID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityApplication, applicationID, "application not found")
			}
			project, ok := tx.FindProject(application.ProjectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, application.ProjectID, "project not found")
			}
			if !containsString(project.OfficerIDs, officerID) {
				return domain.NewDomainError(domain.ErrAuthorization, EntityProject, project.ID, "officer %s is not assigned to this project", officerID)
			}
			if application.Status != StatusSuccess {
				return domain.NewDomainError(domain.ErrStateConflict, EntityApplication, applicationID, "application is %s, not success", application.Status)
			}
			offer, ok := project.Offer(application.UnitType)
			if !ok {
				return domain.NewDomainError(domain.ErrStateConflict, EntityProject, project.ID, "project no longer offers %s", application.UnitType)
			}
			if offer.Remaining <= 0 {
				return domain.NewDomainError(domain.ErrStateConflict, EntityProject, project.ID, "no %s units remaining", application.UnitType)
			}
			applicant, ok := tx.FindPerson(application.ApplicantID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, application.ApplicantID, "applicant not found")
			}
			if _, txErr := tx.UpdateProject(project.ID, func(p *Project) error {
				return adjustRemaining(p, application.UnitType, -1)
			}); txErr != nil {
				return wrapStoreErr(EntityProject, project.ID, txErr)
			}
			if _, txErr := tx.UpdateApplication(applicationID, func(a *Application) error {
				a.Status = StatusBooked
				return nil
			}); txErr != nil {
				return wrapStoreErr(EntityApplication, applicationID, txErr)
			}
			var txErr error
			receipt, txErr = tx.CreateReceipt(Receipt{
				ApplicationID: applicationID,
				ApplicantID:   applicant.ID,
				ApplicantName: applicant.Name,
				ProjectID:     project.ID,
				ProjectName:   project.Name,
				UnitType:      application.UnitType,
				Price:         offer.Price,
				IssuedAt:      now,
			})
			return wrapStoreErr(EntityReceipt, "", txErr)
		})
		if err != nil {
			return wrapStoreErr(EntityApplication, applicationID, err)
		}
		s.archiveReceipt(ctx, receipt)
		return nil
	})
	return receipt, res, err
}

// RequestWithdrawal moves a live application into withdrawal_pending,
// remembering the state it came from.
func (s *Service) RequestWithdrawal(ctx context.Context, applicantID, applicationID string) (Application, Result, error) {
	var updated Application
	var res Result
	err := s.instrument(ctx, "request_withdrawal", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			application, ok := tx.FindApplication(applicationID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityApplication, applicationID, "application not found")
			}
			if application.ApplicantID != applicantID {
				return domain.NewDomainError(domain.ErrAuthorization, EntityApplication, applicationID, "only the applicant may request withdrawal")
			}
			switch application.Status {
			case StatusPending, StatusSuccess, StatusBooked:
			default:
				return domain.NewDomainError(domain.ErrStateConflict, EntityApplication, applicationID, "cannot withdraw from state %s", application.Status)
			}
			var txErr error
			updated, txErr = tx.UpdateApplication(applicationID, func(a *Application) error {
				prior := a.Status
				a.PriorStatus = &prior
				a.Status = StatusWithdrawalPending
				return nil
			})
			return wrapStoreErr(EntityApplication, applicationID, txErr)
		})
		return wrapStoreErr(EntityApplication, applicationID, err)
	})
	return updated, res, err
}

// DecideWithdrawal resolves a pending withdrawal. Approval releases a booked
// unit back into inventory; rejection restores the exact prior state.
func (s *Service) DecideWithdrawal(ctx context.Context, managerID, applicationID string, approve bool) (Application, Result, error) {
	var updated Application
	var res Result
	err := s.instrument(ctx, "decide_withdrawal", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			application, ok := tx.FindApplication(applicationID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityApplication, applicationID, "application not found")
			}
			if err := s.authorizeManager(tx, managerID, application.ProjectID); err != nil {
				return err
			}
			if application.Status != StatusWithdrawalPending {
				return domain.NewDomainError(domain.ErrStateConflict, EntityApplication, applicationID, "application is %s, not withdrawal_pending", application.Status)
			}
			if application.PriorStatus == nil {
				return domain.NewDomainError(domain.ErrStateConflict, EntityApplication, applicationID, "withdrawal has no recorded prior state")
			}
			prior := *application.PriorStatus
			if approve {
				if prior == StatusBooked {
					if _, txErr := tx.UpdateProject(application.ProjectID, func(p *Project) error {
						return adjustRemaining(p, application.UnitType, +1)
					}); txErr != nil {
						return wrapStoreErr(EntityProject, application.ProjectID, txErr)
					}
				}
				var txErr error
				updated, txErr = tx.UpdateApplication(applicationID, func(a *Application) error {
					a.Status = StatusWithdrawalApproved
					a.PriorStatus = nil
					return nil
				})
				if txErr != nil {
					return wrapStoreErr(EntityApplication, applicationID, txErr)
				}
				_, txErr = tx.UpdatePerson(application.ApplicantID, func(p *Person) error {
					p.Applicant.ApplicationID = nil
					return nil
				})
				return wrapStoreErr(EntityPerson, application.ApplicantID, txErr)
			}
			var txErr error
			updated, txErr = tx.UpdateApplication(applicationID, func(a *Application) error {
				a.Status = prior
				a.PriorStatus = nil
				return nil
			})
			return wrapStoreErr(EntityApplication, applicationID, txErr)
		})
		return wrapStoreErr(EntityApplication, applicationID, err)
	})
	return updated, res, err
}

// RegisterOfficer records an officer's pending registration for a project.
func (s *Service) RegisterOfficer(ctx context.Context, officerID, projectID string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "register_officer", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			officer, ok := tx.FindPerson(officerID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, officerID, "officer not found")
			}
			project, ok := tx.FindProject(projectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			view := tx.Snapshot()
			projects := make(map[string]Project)
			for _, p := range view.ListProjects() {
				projects[p.ID] = p
			}
			if err := s.assignment.CanRegister(officer, project, projects, view.ListApplications()); err != nil {
				return err
			}
			if _, txErr := tx.UpdatePerson(officerID, func(p *Person) error {
				p.Officer.Registrations = append(p.Officer.Registrations, domain.OfficerRegistration{
					ProjectID: projectID,
					Status:    RegistrationPending,
				})
				return nil
			}); txErr != nil {
				return wrapStoreErr(EntityPerson, officerID, txErr)
			}
			_, txErr := tx.UpdateProject(projectID, func(p *Project) error {
				p.PendingOfficerIDs = appendUnique(p.PendingOfficerIDs, officerID)
				return nil
			})
			return wrapStoreErr(EntityProject, projectID, txErr)
		})
		return wrapStoreErr(EntityProject, projectID, err)
	})
	return res, err
}

// DecideOfficerRegistration resolves a pending officer registration. Approval
// consumes an officer slot and links the officer to the project.
func (s *Service) DecideOfficerRegistration(ctx context.Context, managerID, officerID, projectID string, approve bool) (Result, error) {
	var res Result
	err := s.instrument(ctx, "decide_officer_registration", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if err := s.authorizeManager(tx, managerID, projectID); err != nil {
				return err
			}
			officer, ok := tx.FindPerson(officerID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, officerID, "officer not found")
			}
			pendingIdx := -1
			if officer.Officer != nil {
				for i, reg := range officer.Officer.Registrations {
					if reg.ProjectID == projectID && reg.Status == RegistrationPending {
						pendingIdx = i
						break
					}
				}
			}
			if pendingIdx < 0 {
				return domain.NewDomainError(domain.ErrStateConflict, EntityPerson, officerID, "no pending registration for project %s", projectID)
			}
			project, ok := tx.FindProject(projectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			next := RegistrationRejected
			if approve {
				if err := s.assignment.CanApprove(project); err != nil {
					return err
				}
				next = RegistrationApproved
			}
			if _, txErr := tx.UpdatePerson(officerID, func(p *Person) error {
				p.Officer.Registrations[pendingIdx].Status = next
				return nil
			}); txErr != nil {
				return wrapStoreErr(EntityPerson, officerID, txErr)
			}
			_, txErr := tx.UpdateProject(projectID, func(p *Project) error {
				p.PendingOfficerIDs = removeString(p.PendingOfficerIDs, officerID)
				if next == RegistrationApproved {
					p.OfficerIDs = appendUnique(p.OfficerIDs, officerID)
				}
				return nil
			})
			return wrapStoreErr(EntityProject, projectID, txErr)
		})
		return wrapStoreErr(EntityProject, projectID, err)
	})
	return res, err
}

// SubmitEnquiry records an applicant question about a visible project.
func (s *Service) SubmitEnquiry(ctx context.Context, applicantID, projectID, message string) (Enquiry, Result, error) {
	var created Enquiry
	var res Result
	err := s.instrument(ctx, "submit_enquiry", func(ctx context.Context) error {
		if strings.TrimSpace(message) == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityEnquiry, "", "message is required")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			person, ok := tx.FindPerson(applicantID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityPerson, applicantID, "person not found")
			}
			if !person.CanApply() {
				return domain.NewDomainError(domain.ErrAuthorization, EntityPerson, applicantID, "managers cannot submit enquiries")
			}
			project, ok := tx.FindProject(projectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			if !project.Visible {
				return domain.NewDomainError(domain.ErrEligibility, EntityProject, projectID, "project is not visible")
			}
			var txErr error
			created, txErr = tx.CreateEnquiry(Enquiry{
				ApplicantID: applicantID,
				ProjectID:   projectID,
				Message:     message,
			})
			if txErr != nil {
				return wrapStoreErr(EntityEnquiry, "", txErr)
			}
			_, txErr = tx.UpdatePerson(applicantID, func(p *Person) error {
				p.Applicant.EnquiryIDs = appendUnique(p.Applicant.EnquiryIDs, created.ID)
				return nil
			})
			return wrapStoreErr(EntityPerson, applicantID, txErr)
		})
		return wrapStoreErr(EntityEnquiry, "", err)
	})
	return created, res, err
}

// EditEnquiry lets the author revise an unanswered enquiry.
func (s *Service) EditEnquiry(ctx context.Context, applicantID, enquiryID, message string) (Enquiry, Result, error) {
	var updated Enquiry
	var res Result
	err := s.instrument(ctx, "edit_enquiry", func(ctx context.Context) error {
		if strings.TrimSpace(message) == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityEnquiry, enquiryID, "message is required")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			enquiry, ok := tx.FindEnquiry(enquiryID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityEnquiry, enquiryID, "enquiry not found")
			}
			if enquiry.ApplicantID != applicantID {
				return domain.NewDomainError(domain.ErrAuthorization, EntityEnquiry, enquiryID, "only the author may edit the enquiry")
			}
			if enquiry.Replied() {
				return domain.NewDomainError(domain.ErrStateConflict, EntityEnquiry, enquiryID, "enquiry already replied")
			}
			var txErr error
			updated, txErr = tx.UpdateEnquiry(enquiryID, func(e *Enquiry) error {
				e.Message = message
				return nil
			})
			return wrapStoreErr(EntityEnquiry, enquiryID, txErr)
		})
		return wrapStoreErr(EntityEnquiry, enquiryID, err)
	})
	return updated, res, err
}

// DeleteEnquiry lets the author remove an unanswered enquiry.
func (s *Service) DeleteEnquiry(ctx context.Context, applicantID, enquiryID string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_enquiry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			enquiry, ok := tx.FindEnquiry(enquiryID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityEnquiry, enquiryID, "enquiry not found")
			}
			if enquiry.ApplicantID != applicantID {
				return domain.NewDomainError(domain.ErrAuthorization, EntityEnquiry, enquiryID, "only the author may delete the enquiry")
			}
			if enquiry.Replied() {
				return domain.NewDomainError(domain.ErrStateConflict, EntityEnquiry, enquiryID, "enquiry already replied")
			}
			if txErr := tx.DeleteEnquiry(enquiryID); txErr != nil {
				return wrapStoreErr(EntityEnquiry, enquiryID, txErr)
			}
			_, txErr := tx.UpdatePerson(applicantID, func(p *Person) error {
				p.Applicant.EnquiryIDs = removeString(p.Applicant.EnquiryIDs, enquiryID)
				return nil
			})
			return wrapStoreErr(EntityPerson, applicantID, txErr)
		})
		return wrapStoreErr(EntityEnquiry, enquiryID, err)
	})
	return res, err
}

// ReplyEnquiry records the single reply to an enquiry. Replies may come from
// the project's manager or an officer assigned to the project.
func (s *Service) ReplyEnquiry(ctx context.Context, responderID, enquiryID, reply string) (Enquiry, Result, error) {
	var updated Enquiry
	var res Result
	err := s.instrument(ctx, "reply_enquiry", func(ctx context.Context) error {
		if strings.TrimSpace(reply) == "" {
			return domain.NewDomainError(domain.ErrValidation, EntityEnquiry, enquiryID, "reply is required")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			enquiry, ok := tx.FindEnquiry(enquiryID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityEnquiry, enquiryID, "enquiry not found")
			}
			if enquiry.Replied() {
				return domain.NewDomainError(domain.ErrStateConflict, EntityEnquiry, enquiryID, "enquiry already replied")
			}
			project, ok := tx.FindProject(enquiry.ProjectID)
			if !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, enquiry.ProjectID, "project not found")
			}
			if project.ManagerID != responderID && !containsString(project.OfficerIDs, responderID) {
				return domain.NewDomainError(domain.ErrAuthorization, EntityEnquiry, enquiryID, "only the project manager or an assigned officer may reply")
			}
			var txErr error
			updated, txErr = tx.UpdateEnquiry(enquiryID, func(e *Enquiry) error {
				e.Reply = &reply
				e.RepliedBy = &responderID
				return nil
			})
			return wrapStoreErr(EntityEnquiry, enquiryID, txErr)
		})
		return wrapStoreErr(EntityEnquiry, enquiryID, err)
	})
	return updated, res, err
}

// EnquiriesByProject lists enquiries for a project sorted by ID.
func (s *Service) EnquiriesByProject(ctx context.Context, projectID string) ([]Enquiry, error) {
	var out []Enquiry
	err := s.instrument(ctx, "enquiries_by_project", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			if _, ok := view.FindProject(projectID); !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			for _, enquiry := range view.ListEnquiries() {
				if enquiry.ProjectID == projectID {
					out = append(out, enquiry)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}

// ApplicationsByProject lists applications for a project sorted by ID.
func (s *Service) ApplicationsByProject(ctx context.Context, projectID string) ([]Application, error) {
	var out []Application
	err := s.instrument(ctx, "applications_by_project", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			if _, ok := view.FindProject(projectID); !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			for _, application := range view.ListApplications() {
				if application.ProjectID == projectID {
					out = append(out, application)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}

// ReceiptsByProject lists issued receipts for a project sorted by ID.
func (s *Service) ReceiptsByProject(ctx context.Context, projectID string) ([]Receipt, error) {
	var out []Receipt
	err := s.instrument(ctx, "receipts_by_project", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			if _, ok := view.FindProject(projectID); !ok {
				return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
			}
			for _, receipt := range view.ListReceipts() {
				if receipt.ProjectID == projectID {
					out = append(out, receipt)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}

func (s *Service) authorizeManager(tx domain.Transaction, managerID, projectID string) error {
	project, ok := tx.FindProject(projectID)
	if !ok {
		return domain.NewDomainError(domain.ErrNotFound, EntityProject, projectID, "project not found")
	}
	if project.ManagerID != managerID {
		return domain.NewDomainError(domain.ErrAuthorization, EntityProject, projectID, "only the owning manager may decide")
	}
	return nil
}

// archiveReceipt copies a rendered receipt into the configured blob store.
// Archival is best-effort; the booking has already committed.
func (s *Service) archiveReceipt(ctx context.Context, receipt Receipt) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("receipts/%s.txt", receipt.ID)
	body := strings.NewReader(RenderReceipt(receipt))
	if _, err := s.archive.Put(ctx, key, body, blob.PutOptions{ContentType: "text/plain; charset=utf-8"}); err != nil {
		s.logger.Warn("receipt archive failed", "receipt_id", receipt.ID, "error", err)
		return
	}
	s.logger.Info("receipt archived", "receipt_id", receipt.ID, "key", key)
}

// RenderReceipt formats a receipt for archival and display.
func RenderReceipt(r Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Booking Receipt %s\n", r.ID)
	fmt.Fprintf(&b, "Issued: %s\n", r.IssuedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Applicant: %s (%s)\n", r.ApplicantName, r.ApplicantID)
	fmt.Fprintf(&b, "Project: %s (%s)\n", r.ProjectName, r.ProjectID)
	fmt.Fprintf(&b, "Unit type: %s\n", r.UnitType)
	fmt.Fprintf(&b, "Price: %.2f\n", r.Price)
	return b.String()
}

func adjustRemaining(p *Project, unit UnitType, delta int) error {
	for i, offer := range p.Offers {
		if offer.Type != unit {
			continue
		}
		next := offer.Remaining + delta
		if next < 0 || next > offer.Total {
			return fmt.Errorf("offer %s inventory out of bounds: %d/%d", unit, next, offer.Total)
		}
		p.Offers[i].Remaining = next
		return nil
	}
	return fmt.Errorf("offer %s not found", unit)
}

func containsString(values []string, id string) bool {
	for _, existing := range values {
		if existing == id {
			return true
		}
	}
	return false
}

func appendUnique(values []string, id string) []string {
	if containsString(values, id) {
		return values
	}
	return append(values, id)
}

func removeString(values []string, id string) []string {
	out := values[:0]
	for _, existing := range values {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
