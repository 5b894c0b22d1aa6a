// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"housingcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Person aliases domain.Person for in-memory persistence operations.
	Person = domain.Person
	// Project aliases domain.Project.
	Project = domain.Project
	// Application aliases domain.Application.
	Application = domain.Application
	// Enquiry aliases domain.Enquiry.
	Enquiry = domain.Enquiry
	// Receipt aliases domain.Receipt.
	Receipt = domain.Receipt
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	persons      map[string]Person
	projects     map[string]Project
	applications map[string]Application
	enquiries    map[string]Enquiry
	receipts     map[string]Receipt
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Persons      map[string]Person      `json:"persons"`
	Projects     map[string]Project     `json:"projects"`
	Applications map[string]Application `json:"applications"`
	Enquiries    map[string]Enquiry     `json:"enquiries"`
	Receipts     map[string]Receipt     `json:"receipts"`
}

func newMemoryState() memoryState {
	return memoryState{
		persons:      make(map[string]Person),
		projects:     make(map[string]Project),
		applications: make(map[string]Application),
		enquiries:    make(map[string]Enquiry),
		receipts:     make(map[string]Receipt),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Persons:      make(map[string]Person, len(state.persons)),
		Projects:     make(map[string]Project, len(state.projects)),
		Applications: make(map[string]Application, len(state.applications)),
		Enquiries:    make(map[string]Enquiry, len(state.enquiries)),
		Receipts:     make(map[string]Receipt, len(state.receipts)),
	}
	for k, v := range state.persons {
		s.Persons[k] = clonePerson(v)
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range state.applications {
		s.Applications[k] = cloneApplication(v)
	}
	for k, v := range state.enquiries {
		s.Enquiries[k] = cloneEnquiry(v)
	}
	for k, v := range state.receipts {
		s.Receipts[k] = cloneReceipt(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Persons {
		state.persons[k] = clonePerson(v)
	}
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range s.Applications {
		state.applications[k] = cloneApplication(v)
	}
	for k, v := range s.Enquiries {
		state.enquiries[k] = cloneEnquiry(v)
	}
	for k, v := range s.Receipts {
		state.receipts[k] = cloneReceipt(v)
	}
	return state
}

// migrateSnapshot drops dangling references and rebuilds derived cross-links so
// tables may be loaded in any order from any backend.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Persons == nil {
		snapshot.Persons = map[string]Person{}
	}
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Applications == nil {
		snapshot.Applications = map[string]Application{}
	}
	if snapshot.Enquiries == nil {
		snapshot.Enquiries = map[string]Enquiry{}
	}
	if snapshot.Receipts == nil {
		snapshot.Receipts = map[string]Receipt{}
	}

	personExists := func(id string) bool {
		_, ok := snapshot.Persons[id]
		return ok
	}
	projectExists := func(id string) bool {
		_, ok := snapshot.Projects[id]
		return ok
	}

	for id, project := range snapshot.Projects {
		manager, ok := snapshot.Persons[project.ManagerID]
		if !ok || manager.Role != domain.RoleManager {
			delete(snapshot.Projects, id)
			continue
		}
		for i, offer := range project.Offers {
			if offer.Total < 0 {
				offer.Total = 0
			}
			if offer.Remaining < 0 {
				offer.Remaining = 0
			}
			if offer.Remaining > offer.Total {
				offer.Remaining = offer.Total
			}
			project.Offers[i] = offer
		}
		snapshot.Projects[id] = project
	}

	for id, application := range snapshot.Applications {
		if !personExists(application.ApplicantID) || !projectExists(application.ProjectID) {
			delete(snapshot.Applications, id)
			continue
		}
		if application.Status != domain.StatusWithdrawalPending {
			application.PriorStatus = nil
		}
		snapshot.Applications[id] = application
	}

	for id, enquiry := range snapshot.Enquiries {
		if !personExists(enquiry.ApplicantID) || !projectExists(enquiry.ProjectID) {
			delete(snapshot.Enquiries, id)
			continue
		}
		snapshot.Enquiries[id] = enquiry
	}

	for id, receipt := range snapshot.Receipts {
		if _, ok := snapshot.Applications[receipt.ApplicationID]; !ok {
			delete(snapshot.Receipts, id)
			continue
		}
		snapshot.Receipts[id] = receipt
	}

	// Officer registrations are authoritative; project officer lists are
	// rebuilt from them below.
	for id, person := range snapshot.Persons {
		switch person.Role {
		case domain.RoleApplicant:
			person.Officer = nil
			person.Manager = nil
		case domain.RoleOfficer:
			person.Manager = nil
			if person.Officer == nil {
				person.Officer = &domain.OfficerProfile{}
			}
			kept := person.Officer.Registrations[:0]
			for _, reg := range person.Officer.Registrations {
				if projectExists(reg.ProjectID) {
					kept = append(kept, reg)
				}
			}
			person.Officer.Registrations = kept
		case domain.RoleManager:
			person.Applicant = nil
			person.Officer = nil
			if person.Manager == nil {
				person.Manager = &domain.ManagerProfile{}
			}
		}
		if person.CanApply() {
			if person.Applicant == nil {
				person.Applicant = &domain.ApplicantProfile{}
			}
			person.Applicant.ApplicationID = nil
			var enquiryIDs []string
			for _, enquiry := range snapshot.Enquiries {
				if enquiry.ApplicantID == id {
					enquiryIDs = append(enquiryIDs, enquiry.ID)
				}
			}
			sort.Strings(enquiryIDs)
			person.Applicant.EnquiryIDs = enquiryIDs
			for _, application := range snapshot.Applications {
				if application.ApplicantID == id && !application.Status.IsTerminal() {
					appID := application.ID
					person.Applicant.ApplicationID = &appID
					break
				}
			}
		}
		snapshot.Persons[id] = person
	}

	for id, project := range snapshot.Projects {
		var approved, pending []string
		for personID, person := range snapshot.Persons {
			if person.Officer == nil {
				continue
			}
			for _, reg := range person.Officer.Registrations {
				if reg.ProjectID != id {
					continue
				}
				switch reg.Status {
				case domain.RegistrationApproved:
					approved = append(approved, personID)
				case domain.RegistrationPending:
					pending = append(pending, personID)
				}
			}
		}
		sort.Strings(approved)
		sort.Strings(pending)
		project.OfficerIDs = approved
		project.PendingOfficerIDs = pending
		snapshot.Projects[id] = project
	}

	for id, person := range snapshot.Persons {
		if person.Manager == nil {
			continue
		}
		var projectIDs []string
		for _, project := range snapshot.Projects {
			if project.ManagerID == id {
				projectIDs = append(projectIDs, project.ID)
			}
		}
		sort.Strings(projectIDs)
		person.Manager.ProjectIDs = projectIDs
		snapshot.Persons[id] = person
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.persons {
		cloned.persons[k] = clonePerson(v)
	}
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.applications {
		cloned.applications[k] = cloneApplication(v)
	}
	for k, v := range s.enquiries {
		cloned.enquiries[k] = cloneEnquiry(v)
	}
	for k, v := range s.receipts {
		cloned.receipts[k] = cloneReceipt(v)
	}
	return cloned
}

func clonePerson(p Person) Person {
	cp := p
	if p.Applicant != nil {
		applicant := *p.Applicant
		if p.Applicant.ApplicationID != nil {
			id := *p.Applicant.ApplicationID
			applicant.ApplicationID = &id
		}
		applicant.EnquiryIDs = append([]string(nil), p.Applicant.EnquiryIDs...)
		cp.Applicant = &applicant
	}
	if p.Officer != nil {
		officer := domain.OfficerProfile{
			Registrations: append([]domain.OfficerRegistration(nil), p.Officer.Registrations...),
		}
		cp.Officer = &officer
	}
	if p.Manager != nil {
		manager := domain.ManagerProfile{
			ProjectIDs: append([]string(nil), p.Manager.ProjectIDs...),
		}
		cp.Manager = &manager
	}
	return cp
}

func cloneProject(p Project) Project {
	cp := p
	cp.OfficerIDs = append([]string(nil), p.OfficerIDs...)
	cp.PendingOfficerIDs = append([]string(nil), p.PendingOfficerIDs...)
	cp.Offers = append([]domain.UnitOffer(nil), p.Offers...)
	return cp
}

func cloneApplication(a Application) Application {
	cp := a
	if a.PriorStatus != nil {
		prior := *a.PriorStatus
		cp.PriorStatus = &prior
	}
	return cp
}

func cloneEnquiry(e Enquiry) Enquiry {
	cp := e
	if e.Reply != nil {
		reply := *e.Reply
		cp.Reply = &reply
	}
	if e.RepliedBy != nil {
		by := *e.RepliedBy
		cp.RepliedBy = &by
	}
	return cp
}

func cloneReceipt(r Receipt) Receipt { return r }

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider, primarily for tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListPersons returns all persons within the transaction snapshot.
func (v transactionView) ListPersons() []Person {
	out := make([]Person, 0, len(v.state.persons))
	for _, p := range v.state.persons {
		out = append(out, clonePerson(p))
	}
	return out
}

// ListProjects returns all projects in the snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// ListApplications returns all applications in the snapshot.
func (v transactionView) ListApplications() []Application {
	out := make([]Application, 0, len(v.state.applications))
	for _, a := range v.state.applications {
		out = append(out, cloneApplication(a))
	}
	return out
}

// ListEnquiries returns all enquiries in the snapshot.
func (v transactionView) ListEnquiries() []Enquiry {
	out := make([]Enquiry, 0, len(v.state.enquiries))
	for _, e := range v.state.enquiries {
		out = append(out, cloneEnquiry(e))
	}
	return out
}

// ListReceipts returns all receipts in the snapshot.
func (v transactionView) ListReceipts() []Receipt {
	out := make([]Receipt, 0, len(v.state.receipts))
	for _, r := range v.state.receipts {
		out = append(out, cloneReceipt(r))
	}
	return out
}

// FindPerson retrieves a person by ID from the snapshot.
func (v transactionView) FindPerson(id string) (Person, bool) {
	p, ok := v.state.persons[id]
	if !ok {
		return Person{}, false
	}
	return clonePerson(p), true
}

// FindProject retrieves a project by ID from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindApplication retrieves an application by ID from the snapshot.
func (v transactionView) FindApplication(id string) (Application, bool) {
	a, ok := v.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return cloneApplication(a), true
}

// FindEnquiry retrieves an enquiry by ID from the snapshot.
func (v transactionView) FindEnquiry(id string) (Enquiry, bool) {
	e, ok := v.state.enquiries[id]
	if !ok {
		return Enquiry{}, false
	}
	return cloneEnquiry(e), true
}

// FindReceipt retrieves a receipt by ID from the snapshot.
func (v transactionView) FindReceipt(id string) (Receipt, bool) {
	r, ok := v.state.receipts[id]
	if !ok {
		return Receipt{}, false
	}
	return cloneReceipt(r), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindPerson exposes person lookup within the transaction scope.
func (tx *transaction) FindPerson(id string) (Person, bool) {
	p, ok := tx.state.persons[id]
	if !ok {
		return Person{}, false
	}
	return clonePerson(p), true
}

// FindProject exposes project lookup within the transaction scope.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindApplication exposes application lookup within the transaction scope.
func (tx *transaction) FindApplication(id string) (Application, bool) {
	a, ok := tx.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return cloneApplication(a), true
}

// FindEnquiry exposes enquiry lookup within the transaction scope.
func (tx *transaction) FindEnquiry(id string) (Enquiry, bool) {
	e, ok := tx.state.enquiries[id]
	if !ok {
		return Enquiry{}, false
	}
	return cloneEnquiry(e), true
}

// CreatePerson stores a new person within the transaction.
func (tx *transaction) CreatePerson(p Person) (Person, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.persons[p.ID]; exists {
		return Person{}, fmt.Errorf("person %q already exists", p.ID)
	}
	switch p.Role {
	case domain.RoleApplicant, domain.RoleOfficer, domain.RoleManager:
	default:
		return Person{}, fmt.Errorf("person %q has unknown role %q", p.ID, p.Role)
	}
	if p.CanApply() && p.Applicant == nil {
		p.Applicant = &domain.ApplicantProfile{}
	}
	if p.Role == domain.RoleOfficer && p.Officer == nil {
		p.Officer = &domain.OfficerProfile{}
	}
	if p.Role == domain.RoleManager && p.Manager == nil {
		p.Manager = &domain.ManagerProfile{}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.persons[p.ID] = clonePerson(p)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionCreate, After: clonePerson(p)})
	return clonePerson(p), nil
}

// UpdatePerson mutates a person using the provided mutator function.
func (tx *transaction) UpdatePerson(id string, mutator func(*Person) error) (Person, error) {
	current, ok := tx.state.persons[id]
	if !ok {
		return Person{}, fmt.Errorf("person %q not found", id)
	}
	before := clonePerson(current)
	if err := mutator(&current); err != nil {
		return Person{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.persons[id] = clonePerson(current)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionUpdate, Before: before, After: clonePerson(current)})
	return clonePerson(current), nil
}

// DeletePerson removes a person from the transaction state.
func (tx *transaction) DeletePerson(id string) error {
	current, ok := tx.state.persons[id]
	if !ok {
		return fmt.Errorf("person %q not found", id)
	}
	for _, application := range tx.state.applications {
		if application.ApplicantID == id {
			return fmt.Errorf("person %q still referenced by application %q", id, application.ID)
		}
	}
	for _, enquiry := range tx.state.enquiries {
		if enquiry.ApplicantID == id {
			return fmt.Errorf("person %q still referenced by enquiry %q", id, enquiry.ID)
		}
	}
	for _, project := range tx.state.projects {
		if project.ManagerID == id {
			return fmt.Errorf("person %q still manages project %q", id, project.ID)
		}
	}
	delete(tx.state.persons, id)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionDelete, Before: clonePerson(current)})
	return nil
}

// CreateProject stores a new project.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	manager, ok := tx.state.persons[p.ManagerID]
	if !ok {
		return Project{}, fmt.Errorf("manager %q not found", p.ManagerID)
	}
	if manager.Role != domain.RoleManager {
		return Project{}, fmt.Errorf("person %q is not a manager", p.ManagerID)
	}
	if p.CloseDate.Before(p.OpenDate) {
		return Project{}, errors.New("project close date precedes open date")
	}
	if p.OfficerSlots <= 0 {
		return Project{}, errors.New("project officer slots must be positive")
	}
	for _, offer := range p.Offers {
		if offer.Total < 0 || offer.Remaining < 0 || offer.Remaining > offer.Total {
			return Project{}, fmt.Errorf("offer %s inventory out of bounds: %d/%d", offer.Type, offer.Remaining, offer.Total)
		}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %q not found", id)
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	if current.CloseDate.Before(current.OpenDate) {
		return Project{}, errors.New("project close date precedes open date")
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project and its enquiries from state. Projects with
// live applications cannot be removed.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return fmt.Errorf("project %q not found", id)
	}
	for _, application := range tx.state.applications {
		if application.ProjectID == id && !application.Status.IsTerminal() {
			return fmt.Errorf("project %q still referenced by application %q", id, application.ID)
		}
	}
	for enquiryID, enquiry := range tx.state.enquiries {
		if enquiry.ProjectID != id {
			continue
		}
		delete(tx.state.enquiries, enquiryID)
		tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionDelete, Before: cloneEnquiry(enquiry)})
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	return nil
}

// CreateApplication stores a new application.
func (tx *transaction) CreateApplication(a Application) (Application, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.applications[a.ID]; exists {
		return Application{}, fmt.Errorf("application %q already exists", a.ID)
	}
	if _, ok := tx.state.persons[a.ApplicantID]; !ok {
		return Application{}, fmt.Errorf("applicant %q not found", a.ApplicantID)
	}
	if _, ok := tx.state.projects[a.ProjectID]; !ok {
		return Application{}, fmt.Errorf("project %q not found", a.ProjectID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.applications[a.ID] = cloneApplication(a)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionCreate, After: cloneApplication(a)})
	return cloneApplication(a), nil
}

// UpdateApplication mutates an existing application.
func (tx *transaction) UpdateApplication(id string, mutator func(*Application) error) (Application, error) {
	current, ok := tx.state.applications[id]
	if !ok {
		return Application{}, fmt.Errorf("application %q not found", id)
	}
	before := cloneApplication(current)
	if err := mutator(&current); err != nil {
		return Application{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.applications[id] = cloneApplication(current)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionUpdate, Before: before, After: cloneApplication(current)})
	return cloneApplication(current), nil
}

// DeleteApplication removes an application from state.
func (tx *transaction) DeleteApplication(id string) error {
	current, ok := tx.state.applications[id]
	if !ok {
		return fmt.Errorf("application %q not found", id)
	}
	for _, receipt := range tx.state.receipts {
		if receipt.ApplicationID == id {
			return fmt.Errorf("application %q still referenced by receipt %q", id, receipt.ID)
		}
	}
	delete(tx.state.applications, id)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionDelete, Before: cloneApplication(current)})
	return nil
}

// CreateEnquiry stores a new enquiry.
func (tx *transaction) CreateEnquiry(e Enquiry) (Enquiry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.enquiries[e.ID]; exists {
		return Enquiry{}, fmt.Errorf("enquiry %q already exists", e.ID)
	}
	if _, ok := tx.state.persons[e.ApplicantID]; !ok {
		return Enquiry{}, fmt.Errorf("applicant %q not found", e.ApplicantID)
	}
	if _, ok := tx.state.projects[e.ProjectID]; !ok {
		return Enquiry{}, fmt.Errorf("project %q not found", e.ProjectID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.enquiries[e.ID] = cloneEnquiry(e)
	tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionCreate, After: cloneEnquiry(e)})
	return cloneEnquiry(e), nil
}

// UpdateEnquiry mutates an existing enquiry.
func (tx *transaction) UpdateEnquiry(id string, mutator func(*Enquiry) error) (Enquiry, error) {
	current, ok := tx.state.enquiries[id]
	if !ok {
		return Enquiry{}, fmt.Errorf("enquiry %q not found", id)
	}
	before := cloneEnquiry(current)
	if err := mutator(&current); err != nil {
		return Enquiry{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.enquiries[id] = cloneEnquiry(current)
	tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionUpdate, Before: before, After: cloneEnquiry(current)})
	return cloneEnquiry(current), nil
}

// DeleteEnquiry removes an enquiry from state.
func (tx *transaction) DeleteEnquiry(id string) error {
	current, ok := tx.state.enquiries[id]
	if !ok {
		return fmt.Errorf("enquiry %q not found", id)
	}
	delete(tx.state.enquiries, id)
	tx.recordChange(Change{Entity: domain.EntityEnquiry, Action: domain.ActionDelete, Before: cloneEnquiry(current)})
	return nil
}

// CreateReceipt stores a booking receipt.
func (tx *transaction) CreateReceipt(r Receipt) (Receipt, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.receipts[r.ID]; exists {
		return Receipt{}, fmt.Errorf("receipt %q already exists", r.ID)
	}
	if _, ok := tx.state.applications[r.ApplicationID]; !ok {
		return Receipt{}, fmt.Errorf("application %q not found", r.ApplicationID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.receipts[r.ID] = cloneReceipt(r)
	tx.recordChange(Change{Entity: domain.EntityReceipt, Action: domain.ActionCreate, After: cloneReceipt(r)})
	return cloneReceipt(r), nil
}

// GetPerson retrieves a person from committed state.
func (s *Store) GetPerson(id string) (Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.persons[id]
	if !ok {
		return Person{}, false
	}
	return clonePerson(p), true
}

// ListPersons returns all committed persons sorted by ID.
func (s *Store) ListPersons() []Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Person, 0, len(s.state.persons))
	for _, p := range s.state.persons {
		out = append(out, clonePerson(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetProject retrieves a project from committed state.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all committed projects sorted by ID.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetApplication retrieves an application from committed state.
func (s *Store) GetApplication(id string) (Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return cloneApplication(a), true
}

// ListApplications returns all committed applications sorted by ID.
func (s *Store) ListApplications() []Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Application, 0, len(s.state.applications))
	for _, a := range s.state.applications {
		out = append(out, cloneApplication(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEnquiries returns all committed enquiries sorted by ID.
func (s *Store) ListEnquiries() []Enquiry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Enquiry, 0, len(s.state.enquiries))
	for _, e := range s.state.enquiries {
		out = append(out, cloneEnquiry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListReceipts returns all committed receipts sorted by ID.
func (s *Store) ListReceipts() []Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Receipt, 0, len(s.state.receipts))
	for _, r := range s.state.receipts {
		out = append(out, cloneReceipt(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
