package docdex

import "github.com/kailas-cloud/docdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound           = domain.ErrNotFound
	ErrCollectionNotFound = domain.ErrCollectionNotFound
	ErrDocumentNotFound   = domain.ErrDocumentNotFound
	ErrIndexNotFound      = domain.ErrIndexNotFound
	ErrAlreadyExists      = domain.ErrAlreadyExists
	ErrValidation         = domain.ErrValidation
	ErrDuplicateKey       = domain.ErrDuplicateKey
	ErrInvalidSpec        = domain.ErrInvalidSpec
	ErrInvalidStageSpec   = domain.ErrInvalidStageSpec
	ErrUnknownStage       = domain.ErrUnknownStage
	ErrMissingIndex       = domain.ErrMissingIndex
	ErrTypeMismatch       = domain.ErrTypeMismatch
)

// Typed errors carrying details. Use errors.As() to extract them.
type (
	DuplicateKeyError = domain.DuplicateKeyError
	ValidationError   = domain.ValidationError
	Violation         = domain.Violation
	StageError        = domain.StageError
	TypeMismatchError = domain.TypeMismatchError
)
