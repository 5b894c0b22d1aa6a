// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by housingcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPerson identifies an applicant, officer, or manager record.
	EntityPerson EntityType = "person"
	// EntityProject identifies a housing project record.
	EntityProject EntityType = "project"
	// EntityApplication identifies a housing application record.
	EntityApplication EntityType = "application"
	// EntityEnquiry identifies an enquiry record.
	EntityEnquiry EntityType = "enquiry"
	// EntityReceipt identifies a booking receipt record.
	EntityReceipt EntityType = "receipt"
)

// DateLayout is the day-month-year format used for dates of birth and
// project application windows in external representations.
const DateLayout = "02 01 2006"

// Role tags a person record with its workflow capabilities.
type Role string

// Person roles. Officers retain applicant capabilities; managers do not.
const (
	RoleApplicant Role = "applicant"
	RoleOfficer   Role = "officer"
	RoleManager   Role = "manager"
)

// MaritalStatus drives unit eligibility together with age.
type MaritalStatus string

// Recognised marital statuses.
const (
	MaritalSingle  MaritalStatus = "single"
	MaritalMarried MaritalStatus = "married"
)

// UnitType enumerates the flat types a project may offer.
type UnitType string

// Offered unit types, ordered from smallest upward.
const (
	UnitTwoRoom   UnitType = "two_room"
	UnitThreeRoom UnitType = "three_room"
)

// ApplicationStatus represents the canonical application lifecycle states.
type ApplicationStatus string

// Canonical application statuses.
const (
	// StatusPending indicates a submitted application awaiting a manager decision.
	StatusPending ApplicationStatus = "pending"
	// StatusSuccess indicates manager approval; the applicant may book a unit.
	StatusSuccess ApplicationStatus = "success"
	// StatusRejected indicates manager rejection. Terminal.
	StatusRejected ApplicationStatus = "rejected"
	// StatusBooked indicates an officer booked a unit against the application.
	StatusBooked ApplicationStatus = "booked"
	// StatusWithdrawalPending indicates a withdrawal request awaiting decision.
	StatusWithdrawalPending ApplicationStatus = "withdrawal_pending"
	// StatusWithdrawalApproved indicates an approved withdrawal. Terminal.
	StatusWithdrawalApproved ApplicationStatus = "withdrawal_approved"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusWithdrawalApproved
}

// RegistrationStatus represents an officer's registration state for a project.
type RegistrationStatus string

// Officer registration statuses.
const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Person represents a system participant. The Role tag determines which
// profile payloads are populated: applicants and officers carry an
// ApplicantProfile, officers additionally carry an OfficerProfile, and
// managers carry only a ManagerProfile.
type Person struct {
	Base
	Name          string            `json:"name"`
	DateOfBirth   time.Time         `json:"date_of_birth"`
	MaritalStatus MaritalStatus     `json:"marital_status"`
	Password      string            `json:"password"`
	Role          Role              `json:"role"`
	Applicant     *ApplicantProfile `json:"applicant,omitempty"`
	Officer       *OfficerProfile   `json:"officer,omitempty"`
	Manager       *ManagerProfile   `json:"manager,omitempty"`
}

// ApplicantProfile holds applicant-side references.
type ApplicantProfile struct {
	ApplicationID *string  `json:"application_id"`
	EnquiryIDs    []string `json:"enquiry_ids"`
}

// OfficerProfile holds per-project registration state for an officer.
type OfficerProfile struct {
	Registrations []OfficerRegistration `json:"registrations"`
}

// OfficerRegistration links an officer to a project with a workflow status.
type OfficerRegistration struct {
	ProjectID string             `json:"project_id"`
	Status    RegistrationStatus `json:"status"`
}

// ManagerProfile lists projects owned by a manager.
type ManagerProfile struct {
	ProjectIDs []string `json:"project_ids"`
}

// AgeAt returns the person's age in whole years at the given instant.
func (p Person) AgeAt(asOf time.Time) int {
	years := asOf.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(asOf) {
		years--
	}
	return years
}

// CanApply reports whether the person's role admits applicant workflows.
func (p Person) CanApply() bool {
	return p.Role == RoleApplicant || p.Role == RoleOfficer
}

// UnitOffer describes one unit type offered by a project with its inventory.
type UnitOffer struct {
	Type      UnitType `json:"type"`
	Total     int      `json:"total"`
	Remaining int      `json:"remaining"`
	Price     float64  `json:"price"`
}

// Project represents a housing project with a finite application window,
// officer slots, and per-unit-type inventory.
type Project struct {
	Base
	Name              string      `json:"name"`
	Visible           bool        `json:"visible"`
	Neighbourhood     string      `json:"neighbourhood"`
	OpenDate          time.Time   `json:"open_date"`
	CloseDate         time.Time   `json:"close_date"`
	ManagerID         string      `json:"manager_id"`
	OfficerSlots      int         `json:"officer_slots"`
	OfficerIDs        []string    `json:"officer_ids"`
	PendingOfficerIDs []string    `json:"pending_officer_ids"`
	Offers            []UnitOffer `json:"offers"`
}

// Offer returns the offer for the given unit type, if the project carries one.
func (p Project) Offer(unit UnitType) (UnitOffer, bool) {
	for _, offer := range p.Offers {
		if offer.Type == unit {
			return offer, true
		}
	}
	return UnitOffer{}, false
}

// WindowContains reports whether the instant falls inside the inclusive
// [OpenDate, CloseDate] application window.
func (p Project) WindowContains(at time.Time) bool {
	return !at.Before(p.OpenDate) && !at.After(p.CloseDate)
}

// Application tracks one applicant's progress against one project. PriorStatus
// is recorded when a withdrawal is requested so that a rejected withdrawal can
// restore the exact preceding state.
type Application struct {
	Base
	Status      ApplicationStatus  `json:"status"`
	PriorStatus *ApplicationStatus `json:"prior_status,omitempty"`
	ApplicantID string             `json:"applicant_id"`
	ProjectID   string             `json:"project_id"`
	UnitType    UnitType           `json:"unit_type"`
}

// Enquiry records an applicant question about a project and its single reply.
type Enquiry struct {
	Base
	ApplicantID string  `json:"applicant_id"`
	ProjectID   string  `json:"project_id"`
	Message     string  `json:"message"`
	Reply       *string `json:"reply,omitempty"`
	RepliedBy   *string `json:"replied_by,omitempty"`
}

// Replied reports whether the enquiry has already been answered.
func (e Enquiry) Replied() bool { return e.Reply != nil }

// Receipt captures the details of a successful unit booking.
type Receipt struct {
	Base
	ApplicationID string    `json:"application_id"`
	ApplicantID   string    `json:"applicant_id"`
	ApplicantName string    `json:"applicant_name"`
	ProjectID     string    `json:"project_id"`
	ProjectName   string    `json:"project_name"`
	UnitType      UnitType  `json:"unit_type"`
	Price         float64   `json:"price"`
	IssuedAt      time.Time `json:"issued_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
