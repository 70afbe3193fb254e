package document

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// IDField is the reserved identifier field.
const IDField = "_id"

// Field is one key/value pair of a Document.
type Field struct {
	Key   string
	Value Value
}

// Document is an ordered mapping from field names to values.
// Stored documents are never mutated; writers work on a Clone.
type Document struct {
	fields []Field

	textScore    float64
	hasTextScore bool
}

// New creates an empty document.
func New() *Document {
	return &Document{}
}

// FromFields creates a document from fields in order. Later duplicates overwrite earlier ones.
func FromFields(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}
	return d
}

// Len returns the number of top-level fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Keys returns top-level field names in order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the top-level fields in order. Callers must not modify the slice.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	return d.fields
}

func (d *Document) indexOf(key string) int {
	for i := range d.fields {
		if d.fields[i].Key == key {
			return i
		}
	}
	return -1
}

// Get returns a top-level field.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	if i := d.indexOf(key); i >= 0 {
		return d.fields[i].Value, true
	}
	return Value{}, false
}

// Has reports whether a top-level field exists.
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set writes a top-level field, keeping its position when it already exists.
func (d *Document) Set(key string, v Value) {
	if i := d.indexOf(key); i >= 0 {
		d.fields[i].Value = v
		return
	}
	d.fields = append(d.fields, Field{Key: key, Value: v})
}

// Prepend writes a field at the first position, removing any previous occurrence.
func (d *Document) Prepend(key string, v Value) {
	d.Delete(key)
	d.fields = append([]Field{{Key: key, Value: v}}, d.fields...)
}

// Delete removes a top-level field and reports whether it existed.
func (d *Document) Delete(key string) bool {
	i := d.indexOf(key)
	if i < 0 {
		return false
	}
	d.fields = append(d.fields[:i], d.fields[i+1:]...)
	return true
}

// ID returns the identifier value.
func (d *Document) ID() (Value, bool) {
	return d.Get(IDField)
}

// IDKey returns the canonical key of the identifier, used for lookups by id.
func (d *Document) IDKey() string {
	id, ok := d.ID()
	if !ok {
		return ""
	}
	return KeyString(id)
}

// Clone returns a deep copy, including metadata.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		fields:       make([]Field, len(d.fields)),
		textScore:    d.textScore,
		hasTextScore: d.hasTextScore,
	}
	for i, f := range d.fields {
		out.fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
	}
	return out
}

// TextScore returns the relevance score attached by a text search.
func (d *Document) TextScore() (float64, bool) {
	if d == nil {
		return 0, false
	}
	return d.textScore, d.hasTextScore
}

// WithTextScore returns a shallow copy carrying a text score.
func (d *Document) WithTextScore(score float64) *Document {
	out := &Document{fields: d.fields, textScore: score, hasTextScore: true}
	return out
}

// InheritMeta copies the metadata of src (the text score) onto d and returns d.
func (d *Document) InheritMeta(src *Document) *Document {
	if src != nil {
		d.textScore, d.hasTextScore = src.textScore, src.hasTextScore
	}
	return d
}

// Equal reports whether two documents have the same fields in the same order.
func (d *Document) Equal(o *Document) bool {
	return CompareDocuments(d, o) == 0 && sameOrder(d, o)
}

func sameOrder(a, b *Document) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.fields {
		if a.fields[i].Key != b.fields[i].Key {
			return false
		}
		av, bv := a.fields[i].Value, b.fields[i].Value
		if av.kind == KindDocument && bv.kind == KindDocument && !sameOrder(av.doc, bv.doc) {
			return false
		}
	}
	return true
}

// ValidateKeys rejects empty field names and top-level operator names.
func ValidateKeys(d *Document) error {
	for _, f := range d.fields {
		if f.Key == "" {
			return fmt.Errorf("empty field name: %w", domain.ErrInvalidSpec)
		}
		if f.Key[0] == '$' {
			return fmt.Errorf("field name %q must not start with '$': %w", f.Key, domain.ErrInvalidSpec)
		}
	}
	return nil
}

func (d *Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid document: %v>", err)
	}
	return string(b)
}
