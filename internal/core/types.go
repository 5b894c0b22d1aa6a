package core

import "housingcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Role               = domain.Role
	MaritalStatus      = domain.MaritalStatus
	UnitType           = domain.UnitType
	ApplicationStatus  = domain.ApplicationStatus
	RegistrationStatus = domain.RegistrationStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Person             = domain.Person
	Project            = domain.Project
	UnitOffer          = domain.UnitOffer
	Application        = domain.Application
	Enquiry            = domain.Enquiry
	Receipt            = domain.Receipt
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	DomainError        = domain.DomainError
)

const (
	EntityPerson      = domain.EntityPerson
	EntityProject     = domain.EntityProject
	EntityApplication = domain.EntityApplication
	EntityEnquiry     = domain.EntityEnquiry
	EntityReceipt     = domain.EntityReceipt
)

const (
	RoleApplicant = domain.RoleApplicant
	RoleOfficer   = domain.RoleOfficer
	RoleManager   = domain.RoleManager
)

const (
	StatusPending            = domain.StatusPending
	StatusSuccess            = domain.StatusSuccess
	StatusRejected           = domain.StatusRejected
	StatusBooked             = domain.StatusBooked
	StatusWithdrawalPending  = domain.StatusWithdrawalPending
	StatusWithdrawalApproved = domain.StatusWithdrawalApproved
)

const (
	RegistrationPending  = domain.RegistrationPending
	RegistrationApproved = domain.RegistrationApproved
	RegistrationRejected = domain.RegistrationRejected
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
