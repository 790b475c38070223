package combat

import (
	"errors"
	"fmt"
)

// Sentinel kinds matched with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// ValidationError reports malformed or missing required input.
type ValidationError struct {
	Field  string
	Reason string
	// Err is an optional underlying cause, e.g. a NotFoundError for a missing target.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Unwrap exposes the underlying cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports that an encounter or combatant id does not exist.
type NotFoundError struct {
	// Kind is "encounter" or "combatant".
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a request that contradicts current state, such as a
// second live encounter.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// EncounterNotFound returns a NotFoundError for an encounter id.
func EncounterNotFound(id string) error { return &NotFoundError{Kind: "encounter", ID: id} }

// CombatantNotFound returns a NotFoundError for a combatant id.
func CombatantNotFound(id string) error { return &NotFoundError{Kind: "combatant", ID: id} }

// Invalid returns a ValidationError for field.
func Invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }
