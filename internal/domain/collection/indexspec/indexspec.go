// Package indexspec describes secondary index definitions.
package indexspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// IDIndexName is the name of the default unique index on _id.
const IDIndexName = "_id_"

// Kind is the indexing kind of one key.
type Kind string

// Key kinds.
const (
	Asc      Kind = "1"
	Desc     Kind = "-1"
	Sphere2D Kind = "2dsphere"
	Text     Kind = "text"
)

// Key is one indexed path.
type Key struct {
	Path string
	Kind Kind
}

// Direction returns +1 or -1 for ordered keys and 0 otherwise.
func (k Key) Direction() int {
	switch k.Kind {
	case Asc:
		return 1
	case Desc:
		return -1
	}
	return 0
}

// Spec is an immutable index definition.
type Spec struct {
	name    string
	keys    []Key
	unique  bool
	sparse  bool
	partial *document.Document
}

// Options are the index modifiers.
type Options struct {
	Name    string
	Unique  bool
	Sparse  bool
	Partial *document.Document
}

// ParseKeys reads a key document such as {name: 1, age: -1} or {loc: "2dsphere"}.
func ParseKeys(d *document.Document) ([]Key, error) {
	if d == nil || d.Len() == 0 {
		return nil, fmt.Errorf("index needs at least one key: %w", domain.ErrInvalidSpec)
	}
	keys := make([]Key, 0, d.Len())
	for _, f := range d.Fields() {
		k := Key{Path: f.Key}
		switch {
		case f.Value.IsNumber() && f.Value.FloatValue() == 1:
			k.Kind = Asc
		case f.Value.IsNumber() && f.Value.FloatValue() == -1:
			k.Kind = Desc
		case f.Value.Kind() == document.KindString && f.Value.StringValue() == string(Sphere2D):
			k.Kind = Sphere2D
		case f.Value.Kind() == document.KindString && f.Value.StringValue() == string(Text):
			k.Kind = Text
		default:
			return nil, fmt.Errorf("invalid index direction for %q: %w", f.Key, domain.ErrInvalidSpec)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// New validates and creates a Spec. An empty name is replaced by DefaultName.
func New(keys []Key, opts Options) (Spec, error) {
	if len(keys) == 0 {
		return Spec{}, fmt.Errorf("index needs at least one key: %w", domain.ErrInvalidSpec)
	}
	seen := make(map[string]bool, len(keys))
	ordered, special := 0, 0
	for _, k := range keys {
		if err := document.ValidatePath(k.Path); err != nil {
			return Spec{}, err
		}
		if seen[k.Path] {
			return Spec{}, fmt.Errorf("field %q appears twice in the index: %w", k.Path, domain.ErrInvalidSpec)
		}
		seen[k.Path] = true
		switch k.Kind {
		case Asc, Desc:
			ordered++
		case Sphere2D, Text:
			special++
		default:
			return Spec{}, fmt.Errorf("unknown index kind %q: %w", k.Kind, domain.ErrInvalidSpec)
		}
	}
	if special > 0 && ordered > 0 {
		return Spec{}, fmt.Errorf("geo and text keys cannot be mixed with ordered keys: %w", domain.ErrInvalidSpec)
	}
	if special > 1 && keys[0].Kind != keys[1].Kind {
		return Spec{}, fmt.Errorf("geo and text keys cannot be mixed: %w", domain.ErrInvalidSpec)
	}
	if special > 0 && keys[0].Kind == Sphere2D && len(keys) > 1 {
		return Spec{}, fmt.Errorf("a 2dsphere index covers exactly one field: %w", domain.ErrInvalidSpec)
	}
	if special > 0 && opts.Unique {
		return Spec{}, fmt.Errorf("%s indexes cannot be unique: %w", keys[0].Kind, domain.ErrInvalidSpec)
	}
	if opts.Partial != nil && opts.Sparse {
		return Spec{}, fmt.Errorf("sparse and partialFilterExpression are exclusive: %w", domain.ErrInvalidSpec)
	}
	name := opts.Name
	if name == "" {
		name = DefaultName(keys)
	}
	if name == IDIndexName && !(len(keys) == 1 && keys[0].Path == document.IDField) {
		return Spec{}, fmt.Errorf("index name %q is reserved: %w", IDIndexName, domain.ErrInvalidSpec)
	}
	return Spec{
		name:    name,
		keys:    append([]Key(nil), keys...),
		unique:  opts.Unique,
		sparse:  opts.Sparse,
		partial: opts.Partial,
	}, nil
}

// ID returns the default _id index spec.
func ID() Spec {
	return Spec{name: IDIndexName, keys: []Key{{Path: document.IDField, Kind: Asc}}, unique: true}
}

// DefaultName joins path and kind pairs with underscores, e.g. name_1_age_-1.
func DefaultName(keys []Key) string {
	parts := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		parts = append(parts, k.Path, string(k.Kind))
	}
	return strings.Join(parts, "_")
}

// Name returns the index name.
func (s Spec) Name() string { return s.name }

// Keys returns the indexed keys in order.
func (s Spec) Keys() []Key { return s.keys }

// Paths returns the indexed paths in order.
func (s Spec) Paths() []string {
	out := make([]string, len(s.keys))
	for i, k := range s.keys {
		out[i] = k.Path
	}
	return out
}

// Unique reports whether key tuples must be unique.
func (s Spec) Unique() bool { return s.unique }

// Sparse reports whether documents missing every key are skipped.
func (s Spec) Sparse() bool { return s.sparse }

// Partial returns the partial filter document, or nil.
func (s Spec) Partial() *document.Document { return s.partial }

// IsID reports whether this is the default _id index.
func (s Spec) IsID() bool { return s.name == IDIndexName }

// IsGeo reports whether this is a 2dsphere index.
func (s Spec) IsGeo() bool { return s.keys[0].Kind == Sphere2D }

// IsText reports whether this is a text index.
func (s Spec) IsText() bool { return s.keys[0].Kind == Text }

// IsOrdered reports whether this is a B-tree style index.
func (s Spec) IsOrdered() bool { return !s.IsGeo() && !s.IsText() }

// SameKeys reports whether two specs index the same keys in the same order.
func (s Spec) SameKeys(o Spec) bool {
	if len(s.keys) != len(o.keys) {
		return false
	}
	for i := range s.keys {
		if s.keys[i] != o.keys[i] {
			return false
		}
	}
	return true
}

// SameOptions reports whether two specs carry identical modifiers.
func (s Spec) SameOptions(o Spec) bool {
	if s.unique != o.unique || s.sparse != o.sparse {
		return false
	}
	switch {
	case s.partial == nil && o.partial == nil:
		return true
	case s.partial == nil || o.partial == nil:
		return false
	}
	return s.partial.Equal(o.partial)
}

// Equivalent reports whether two specs are the same index.
func (s Spec) Equivalent(o Spec) bool {
	return s.name == o.name && s.SameKeys(o) && s.SameOptions(o)
}

// KeyDocument renders the keys as {path: direction|kind}.
func (s Spec) KeyDocument() *document.Document {
	d := document.New()
	for _, k := range s.keys {
		switch k.Kind {
		case Asc, Desc:
			n, _ := strconv.Atoi(string(k.Kind))
			d.Set(k.Path, document.Int(int64(n)))
		default:
			d.Set(k.Path, document.String(string(k.Kind)))
		}
	}
	return d
}
