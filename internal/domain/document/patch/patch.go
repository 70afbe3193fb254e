// Package patch parses and applies document updates: full replacements and
// update-operator documents.
package patch

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// Patch is a parsed update.
type Patch struct {
	replacement *document.Document
	ops         []op
}

type op struct {
	name  string
	path  string
	value document.Value

	to      string         // $rename target
	each    []document.Value
	pos     *int
	slice   *int
	pull    *filter.Filter
	pullDoc bool
}

// Replace creates a replacement patch.
func Replace(d *document.Document) (Patch, error) {
	if err := document.ValidateKeys(d); err != nil {
		return Patch{}, err
	}
	return Patch{replacement: d}, nil
}

// Parse creates a Patch from an update document. A document whose keys are
// all operators is an operator update; a document without operators is a
// replacement. Mixing the two is rejected.
func Parse(d *document.Document) (Patch, error) {
	if d == nil || d.Len() == 0 {
		return Patch{}, fmt.Errorf("update must not be empty: %w", domain.ErrInvalidSpec)
	}
	ops := 0
	for _, k := range d.Keys() {
		if strings.HasPrefix(k, "$") {
			ops++
		}
	}
	switch ops {
	case 0:
		return Replace(d)
	case d.Len():
	default:
		return Patch{}, fmt.Errorf("update mixes operators and fields: %w", domain.ErrInvalidSpec)
	}

	var p Patch
	for _, f := range d.Fields() {
		if f.Value.Kind() != document.KindDocument {
			return Patch{}, fmt.Errorf("%s requires an object: %w", f.Key, domain.ErrInvalidSpec)
		}
		for _, arg := range f.Value.DocumentValue().Fields() {
			o, err := parseOp(f.Key, arg.Key, arg.Value)
			if err != nil {
				return Patch{}, err
			}
			p.ops = append(p.ops, o)
		}
	}
	if len(p.ops) == 0 {
		return Patch{}, fmt.Errorf("update has no fields: %w", domain.ErrInvalidSpec)
	}
	if err := checkConflicts(p.ops); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// IsReplacement reports whether the patch replaces the whole document.
func (p Patch) IsReplacement() bool { return p.replacement != nil }

// Paths returns every field path the patch writes. Replacements return nil.
func (p Patch) Paths() []string {
	var out []string
	for _, o := range p.ops {
		out = append(out, o.path)
		if o.to != "" {
			out = append(out, o.to)
		}
	}
	return out
}

func parseOp(name, path string, v document.Value) (op, error) {
	if err := document.ValidatePath(path); err != nil {
		return op{}, fmt.Errorf("%s: %w", name, err)
	}
	o := op{name: name, path: path, value: v}
	switch name {
	case "$set", "$unset", "$min", "$max":
	case "$inc", "$mul":
		if !v.IsNumber() {
			return op{}, domain.NewTypeMismatch(name, "number", v.Kind().String())
		}
	case "$rename":
		if v.Kind() != document.KindString {
			return op{}, fmt.Errorf("$rename target must be a string: %w", domain.ErrInvalidSpec)
		}
		if err := document.ValidatePath(v.StringValue()); err != nil {
			return op{}, fmt.Errorf("$rename: %w", err)
		}
		o.to = v.StringValue()
		if o.to == path {
			return op{}, fmt.Errorf("$rename source and target are equal: %w", domain.ErrInvalidSpec)
		}
	case "$push", "$addToSet":
		if err := o.parseEach(v); err != nil {
			return op{}, err
		}
	case "$pull":
		if err := o.parsePull(v); err != nil {
			return op{}, err
		}
	case "$pop":
		if !v.IsNumber() || (v.IntValue() != 1 && v.IntValue() != -1) {
			return op{}, fmt.Errorf("$pop takes 1 or -1: %w", domain.ErrInvalidSpec)
		}
	case "$currentDate":
		if err := checkCurrentDate(v); err != nil {
			return op{}, err
		}
	default:
		return op{}, fmt.Errorf("unknown update operator %s: %w", name, domain.ErrInvalidSpec)
	}
	return o, nil
}

func (o *op) parseEach(v document.Value) error {
	if v.Kind() != document.KindDocument || !v.DocumentValue().Has("$each") {
		o.each = []document.Value{v}
		return nil
	}
	d := v.DocumentValue()
	for _, f := range d.Fields() {
		switch f.Key {
		case "$each":
			if f.Value.Kind() != document.KindArray {
				return fmt.Errorf("%s $each requires an array: %w", o.name, domain.ErrInvalidSpec)
			}
			o.each = f.Value.ArrayValue()
		case "$position", "$slice":
			if o.name != "$push" || !f.Value.IsNumber() {
				return fmt.Errorf("%s %s is not supported here: %w", o.name, f.Key, domain.ErrInvalidSpec)
			}
			n := int(f.Value.IntValue())
			if f.Key == "$position" {
				o.pos = &n
			} else {
				o.slice = &n
			}
		default:
			return fmt.Errorf("unknown %s modifier %s: %w", o.name, f.Key, domain.ErrInvalidSpec)
		}
	}
	return nil
}

const pullField = "v"

func (o *op) parsePull(v document.Value) error {
	var cond *document.Document
	if v.Kind() == document.KindDocument && v.DocumentValue().Len() > 0 &&
		!strings.HasPrefix(v.DocumentValue().Fields()[0].Key, "$") {
		// a plain object is a query over array elements that are documents
		cond = v.DocumentValue()
		o.pullDoc = true
	} else {
		cond = document.FromFields(document.Field{Key: pullField, Value: v})
	}
	f, err := filter.Parse(cond)
	if err != nil {
		return fmt.Errorf("$pull: %w", err)
	}
	o.pull = f
	return nil
}

func checkCurrentDate(v document.Value) error {
	if v.Kind() == document.KindBool && v.BoolValue() {
		return nil
	}
	if v.Kind() == document.KindDocument {
		t, ok := v.DocumentValue().Get("$type")
		if ok && t.Kind() == document.KindString && (t.StringValue() == "date" || t.StringValue() == "timestamp") {
			return nil
		}
	}
	return fmt.Errorf("$currentDate takes true or {$type: \"date\"}: %w", domain.ErrInvalidSpec)
}

func checkConflicts(ops []op) error {
	var paths []string
	for _, o := range ops {
		paths = append(paths, o.path)
		if o.to != "" {
			paths = append(paths, o.to)
		}
	}
	for i, a := range paths {
		for _, b := range paths[i+1:] {
			if a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".") {
				return fmt.Errorf("conflicting update paths %q and %q: %w", a, b, domain.ErrInvalidSpec)
			}
		}
	}
	return nil
}

// Apply returns the updated copy of old. The identifier can never change.
func (p Patch) Apply(old *document.Document, now time.Time) (*document.Document, error) {
	id, hasID := old.ID()
	if p.replacement != nil {
		out := p.replacement.Clone()
		if newID, ok := out.ID(); ok {
			if hasID && !document.Equal(newID, id) {
				return nil, fmt.Errorf("replacement changes _id: %w", domain.ErrInvalidSpec)
			}
			out.Delete(document.IDField)
		}
		if hasID {
			out.Prepend(document.IDField, id)
		}
		return out, nil
	}

	out := old.Clone()
	for _, o := range p.ops {
		if err := o.apply(out, now); err != nil {
			return nil, err
		}
	}
	newID, ok := out.ID()
	if ok != hasID || (ok && !document.Equal(newID, id)) {
		return nil, fmt.Errorf("update changes _id: %w", domain.ErrInvalidSpec)
	}
	return out, nil
}

func (o op) apply(d *document.Document, now time.Time) error {
	cur, exists := d.GetPath(o.path)
	switch o.name {
	case "$set":
		return d.SetPath(o.path, o.value.Clone())
	case "$unset":
		d.UnsetPath(o.path)
		return nil
	case "$inc", "$mul":
		return o.arith(d, cur, exists)
	case "$min", "$max":
		if exists {
			c := document.Compare(o.value, cur)
			if (o.name == "$min" && c >= 0) || (o.name == "$max" && c <= 0) {
				return nil
			}
		}
		return d.SetPath(o.path, o.value.Clone())
	case "$rename":
		if !exists {
			return nil
		}
		d.UnsetPath(o.path)
		return d.SetPath(o.to, cur)
	case "$push":
		arr, err := arrayAt(o.name, cur, exists)
		if err != nil {
			return err
		}
		return d.SetPath(o.path, document.Array(o.push(arr)...))
	case "$addToSet":
		arr, err := arrayAt(o.name, cur, exists)
		if err != nil {
			return err
		}
		for _, v := range o.each {
			if !slices.ContainsFunc(arr, func(e document.Value) bool { return document.Equal(e, v) }) {
				arr = append(arr, v.Clone())
			}
		}
		return d.SetPath(o.path, document.Array(arr...))
	case "$pull":
		if !exists {
			return nil
		}
		arr, err := arrayAt(o.name, cur, exists)
		if err != nil {
			return err
		}
		kept := make([]document.Value, 0, len(arr))
		for _, e := range arr {
			drop, err := o.pulls(e)
			if err != nil {
				return err
			}
			if !drop {
				kept = append(kept, e)
			}
		}
		return d.SetPath(o.path, document.Array(kept...))
	case "$pop":
		if !exists {
			return nil
		}
		arr, err := arrayAt(o.name, cur, exists)
		if err != nil || len(arr) == 0 {
			return err
		}
		if o.value.IntValue() == 1 {
			arr = arr[:len(arr)-1]
		} else {
			arr = arr[1:]
		}
		return d.SetPath(o.path, document.Array(slices.Clone(arr)...))
	case "$currentDate":
		return d.SetPath(o.path, document.Date(now))
	}
	return nil
}

func (o op) arith(d *document.Document, cur document.Value, exists bool) error {
	if !exists {
		if o.name == "$inc" {
			return d.SetPath(o.path, o.value)
		}
		zero := document.Int(0)
		if o.value.Kind() == document.KindFloat {
			zero = document.Float(0)
		}
		return d.SetPath(o.path, zero)
	}
	if !cur.IsNumber() {
		return domain.NewTypeMismatch(o.name, "number", cur.Kind().String())
	}
	if o.name == "$inc" {
		return d.SetPath(o.path, expr.AddNumbers(cur, o.value))
	}
	return d.SetPath(o.path, expr.MultiplyNumbers(cur, o.value))
}

func arrayAt(name string, cur document.Value, exists bool) ([]document.Value, error) {
	if !exists {
		return nil, nil
	}
	if cur.Kind() != document.KindArray {
		return nil, domain.NewTypeMismatch(name, "array", cur.Kind().String())
	}
	return slices.Clone(cur.ArrayValue()), nil
}

func (o op) push(arr []document.Value) []document.Value {
	add := make([]document.Value, len(o.each))
	for i, v := range o.each {
		add[i] = v.Clone()
	}
	pos := len(arr)
	if o.pos != nil {
		pos = *o.pos
		if pos < 0 {
			pos = max(len(arr)+pos, 0)
		}
		pos = min(pos, len(arr))
	}
	arr = slices.Insert(arr, pos, add...)
	if o.slice != nil {
		n := *o.slice
		switch {
		case n >= 0 && n < len(arr):
			arr = arr[:n]
		case n < 0 && -n < len(arr):
			arr = arr[len(arr)+n:]
		}
	}
	return arr
}

func (o op) pulls(e document.Value) (bool, error) {
	if o.pullDoc {
		if e.Kind() != document.KindDocument {
			return false, nil
		}
		return o.pull.Match(e.DocumentValue())
	}
	return o.pull.Match(document.FromFields(document.Field{Key: pullField, Value: e}))
}
