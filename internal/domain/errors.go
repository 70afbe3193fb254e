package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrCollectionNotFound signals a missing collection.
	ErrCollectionNotFound = fmt.Errorf("collection %w", ErrNotFound)
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)
	// ErrIndexNotFound signals a missing index.
	ErrIndexNotFound = fmt.Errorf("index %w", ErrNotFound)

	// ErrValidation signals a document rejected by the collection validator.
	ErrValidation = errors.New("document failed validation")
	// ErrDuplicateKey signals a unique index or identifier collision.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidSpec signals a malformed index, filter, update or collection definition.
	ErrInvalidSpec = errors.New("invalid spec")
	// ErrInvalidStageSpec signals a malformed pipeline stage.
	ErrInvalidStageSpec = errors.New("invalid stage spec")
	// ErrUnknownStage signals a pipeline stage name the engine does not know.
	// It is also an ErrInvalidStageSpec.
	ErrUnknownStage = fmt.Errorf("unknown stage: %w", ErrInvalidStageSpec)
	// ErrMissingIndex signals a geo or text operation without the required index.
	ErrMissingIndex = errors.New("missing index")
	// ErrTypeMismatch signals an operator applied to a value of the wrong kind.
	ErrTypeMismatch = errors.New("type mismatch")
)

// DuplicateKeyError wraps ErrDuplicateKey with the colliding key and document ids.
type DuplicateKeyError struct {
	Collection string
	Index      string
	Key        string
	ExistingID string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	msg := fmt.Sprintf("%s: collection %q index %q key %s", ErrDuplicateKey.Error(), e.Collection, e.Index, e.Key)
	if e.ExistingID != "" {
		msg += fmt.Sprintf(" (existing _id %s", e.ExistingID)
		if e.ID != "" {
			msg += ", offending _id " + e.ID
		}
		msg += ")"
	}
	return msg
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Violation describes one failed validator constraint.
type Violation struct {
	Constraint  string
	Field       string
	Value       string
	Description string
}

func (v Violation) String() string {
	var b strings.Builder
	b.WriteString(v.Constraint)
	if v.Field != "" {
		b.WriteString(" on ")
		b.WriteString(v.Field)
	}
	if v.Value != "" {
		b.WriteString(" (value ")
		b.WriteString(v.Value)
		b.WriteString(")")
	}
	if v.Description != "" {
		b.WriteString(": ")
		b.WriteString(v.Description)
	}
	return b.String()
}

// ValidationError wraps ErrValidation with every violated constraint.
type ValidationError struct {
	Collection string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: collection %q: %s", ErrValidation.Error(), e.Collection, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// HasConstraint reports whether any violation has the given constraint kind.
func (e *ValidationError) HasConstraint(kind string) bool {
	for _, v := range e.Violations {
		if v.Constraint == kind {
			return true
		}
	}
	return false
}

// StageError wraps a pipeline decoding or execution error with the stage position.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TypeMismatchError wraps ErrTypeMismatch with the operator and offending value.
type TypeMismatchError struct {
	Operator string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s expects %s, got %s", ErrTypeMismatch.Error(), e.Operator, e.Expected, e.Actual)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// NewTypeMismatch creates a type mismatch error.
func NewTypeMismatch(operator, expected, actual string) error {
	return &TypeMismatchError{Operator: operator, Expected: expected, Actual: actual}
}
