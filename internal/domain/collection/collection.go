package collection

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// MaxNameLength is the longest allowed collection name in bytes.
const MaxNameLength = 120

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Action decides what happens to a document that fails validation.
type Action string

const (
	// ActionError rejects the write.
	ActionError Action = "error"
	// ActionWarn logs the violation and accepts the write.
	ActionWarn Action = "warn"
)

// Level decides which writes are validated.
type Level string

const (
	// LevelStrict validates every insert and update.
	LevelStrict Level = "strict"
	// LevelModerate skips updates to documents that were already invalid.
	LevelModerate Level = "moderate"
)

// Validator is the schema attached to a collection.
type Validator struct {
	Rules  *document.Document
	Action Action
	Level  Level
}

// Capped bounds a collection by total size in bytes and optionally by count.
type Capped struct {
	Size int64
	Max  int64
}

// Options configure a new collection.
type Options struct {
	Capped    *Capped
	Validator *Validator
}

// Collection is the collection aggregate (immutable value object).
type Collection struct {
	name      string
	capped    *Capped
	validator *Validator
	createdAt int64
	revision  int
}

// ValidateName checks the collection naming rules.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("collection name is required: %w", domain.ErrInvalidSpec)
	case len(name) > MaxNameLength:
		return fmt.Errorf("collection name too long (max %d): %w", MaxNameLength, domain.ErrInvalidSpec)
	case !nameRegex.MatchString(name):
		return fmt.Errorf("collection name %q must contain only letters, digits, '_', '.' and '-': %w", name, domain.ErrInvalidSpec)
	case strings.HasPrefix(name, "system."):
		return fmt.Errorf("collection name %q uses the reserved system. prefix: %w", name, domain.ErrInvalidSpec)
	}
	return nil
}

func validateCapped(c *Capped) error {
	if c == nil {
		return nil
	}
	if c.Size <= 0 {
		return fmt.Errorf("capped size must be positive: %w", domain.ErrInvalidSpec)
	}
	if c.Max < 0 {
		return fmt.Errorf("capped max must not be negative: %w", domain.ErrInvalidSpec)
	}
	return nil
}

// NormalizeValidator fills default action and level and checks them.
func NormalizeValidator(v *Validator) (*Validator, error) {
	if v == nil {
		return nil, nil
	}
	out := *v
	if out.Rules == nil {
		return nil, fmt.Errorf("validator rules are required: %w", domain.ErrInvalidSpec)
	}
	if out.Action == "" {
		out.Action = ActionError
	}
	if out.Level == "" {
		out.Level = LevelStrict
	}
	if out.Action != ActionError && out.Action != ActionWarn {
		return nil, fmt.Errorf("invalid validationAction %q: %w", out.Action, domain.ErrInvalidSpec)
	}
	if out.Level != LevelStrict && out.Level != LevelModerate {
		return nil, fmt.Errorf("invalid validationLevel %q: %w", out.Level, domain.ErrInvalidSpec)
	}
	return &out, nil
}

// New validates and creates a Collection.
func New(name string, opts Options) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return Collection{}, err
	}
	if err := validateCapped(opts.Capped); err != nil {
		return Collection{}, err
	}
	v, err := NormalizeValidator(opts.Validator)
	if err != nil {
		return Collection{}, err
	}
	return Collection{
		name:      name,
		capped:    opts.Capped,
		validator: v,
		createdAt: time.Now().UnixMilli(),
		revision:  1,
	}, nil
}

// Reconstruct creates a Collection without validation (storage hydration).
func Reconstruct(name string, capped *Capped, validator *Validator, createdAt int64, revision int) Collection {
	return Collection{
		name:      name,
		capped:    capped,
		validator: validator,
		createdAt: createdAt,
		revision:  revision,
	}
}

// WithValidator returns a copy with the validator replaced (nil removes it).
func (c Collection) WithValidator(v *Validator) (Collection, error) {
	nv, err := NormalizeValidator(v)
	if err != nil {
		return Collection{}, err
	}
	c.validator = nv
	c.revision++
	return c, nil
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Capped returns the capped policy, or nil.
func (c Collection) Capped() *Capped { return c.capped }

// IsCapped reports whether the collection evicts old documents.
func (c Collection) IsCapped() bool { return c.capped != nil }

// Validator returns the attached validator, or nil.
func (c Collection) Validator() *Validator { return c.validator }

// CreatedAt returns the creation timestamp (unix millis).
func (c Collection) CreatedAt() int64 { return c.createdAt }

// Revision returns the metadata version.
func (c Collection) Revision() int { return c.revision }
