package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrorKindMatching(t *testing.T) {
	err := NewDomainError(ErrEligibility, EntityApplication, "app-1", "single applicants require age >= %d", 35)
	if !IsKind(err, ErrEligibility) {
		t.Fatal("expected eligibility kind")
	}
	if IsKind(err, ErrValidation) {
		t.Fatal("kind should not match validation")
	}
	wrapped := fmt.Errorf("submit: %w", err)
	kind, ok := KindOf(wrapped)
	if !ok || kind != ErrEligibility {
		t.Fatalf("KindOf(wrapped) = %q, %v", kind, ok)
	}
	if !errors.Is(wrapped, DomainError{Kind: ErrEligibility}) {
		t.Fatal("errors.Is should match by kind")
	}
}

func TestWrapPersistenceRetainsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapPersistence(EntityProject, "proj-1", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should satisfy errors.Is")
	}
	if !IsKind(err, ErrPersistence) {
		t.Fatal("expected persistence kind")
	}
}
