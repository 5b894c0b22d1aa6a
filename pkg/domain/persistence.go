package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreatePerson(Person) (Person, error)
	UpdatePerson(id string, mutator func(*Person) error) (Person, error)
	DeletePerson(id string) error
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateApplication(Application) (Application, error)
	UpdateApplication(id string, mutator func(*Application) error) (Application, error)
	DeleteApplication(id string) error
	CreateEnquiry(Enquiry) (Enquiry, error)
	UpdateEnquiry(id string, mutator func(*Enquiry) error) (Enquiry, error)
	DeleteEnquiry(id string) error
	CreateReceipt(Receipt) (Receipt, error)
	FindPerson(id string) (Person, bool)
	FindProject(id string) (Project, bool)
	FindApplication(id string) (Application, bool)
	FindEnquiry(id string) (Enquiry, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListPersons() []Person
	ListProjects() []Project
	ListApplications() []Application
	ListEnquiries() []Enquiry
	ListReceipts() []Receipt
	FindPerson(id string) (Person, bool)
	FindProject(id string) (Project, bool)
	FindApplication(id string) (Application, bool)
	FindEnquiry(id string) (Enquiry, bool)
	FindReceipt(id string) (Receipt, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPerson(id string) (Person, bool)
	ListPersons() []Person
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetApplication(id string) (Application, bool)
	ListApplications() []Application
	ListEnquiries() []Enquiry
	ListReceipts() []Receipt
}
