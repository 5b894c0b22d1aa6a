package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors for controllers and tests.
type ErrorKind string

// Error kinds surfaced by service operations.
const (
	// ErrValidation indicates malformed or missing input.
	ErrValidation ErrorKind = "validation"
	// ErrEligibility indicates a business-policy rejection.
	ErrEligibility ErrorKind = "eligibility"
	// ErrNotFound indicates a missing record.
	ErrNotFound ErrorKind = "not_found"
	// ErrAuthorization indicates the actor lacks the required role or ownership.
	ErrAuthorization ErrorKind = "authorization"
	// ErrStateConflict indicates an operation illegal in the current state.
	ErrStateConflict ErrorKind = "state_conflict"
	// ErrPersistence indicates a storage failure.
	ErrPersistence ErrorKind = "persistence"
)

// DomainError carries a kind plus the entity context in which it occurred.
type DomainError struct {
	Kind     ErrorKind
	Entity   EntityType
	EntityID string
	Message  string
	wrapped  error
}

func (e DomainError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Entity, e.EntityID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e DomainError) Unwrap() error { return e.wrapped }

// Is matches another DomainError by kind, ignoring message and entity context.
func (e DomainError) Is(target error) bool {
	var other DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// NewDomainError constructs a DomainError with formatted message.
func NewDomainError(kind ErrorKind, entity EntityType, id, format string, args ...any) DomainError {
	return DomainError{Kind: kind, Entity: entity, EntityID: id, Message: fmt.Sprintf(format, args...)}
}

// WrapPersistence wraps a storage failure so it surfaces with its cause intact.
func WrapPersistence(entity EntityType, id string, err error) DomainError {
	return DomainError{Kind: ErrPersistence, Entity: entity, EntityID: id, Message: err.Error(), wrapped: err}
}

// KindOf returns the kind of err when it is (or wraps) a DomainError.
func KindOf(err error) (ErrorKind, bool) {
	var de DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsKind reports whether err is (or wraps) a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
