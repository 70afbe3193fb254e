package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// SplitPath splits a dotted path into segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// ValidatePath rejects empty paths and empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty field path: %w", domain.ErrInvalidSpec)
	}
	for _, seg := range SplitPath(path) {
		if seg == "" {
			return fmt.Errorf("field path %q has an empty segment: %w", path, domain.ErrInvalidSpec)
		}
	}
	return nil
}

func arrayIndex(seg string) (int, bool) {
	if seg == "" || seg[0] == '-' || seg[0] == '+' {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Resolve returns every leaf value reached by a dotted path, descending into
// arrays of documents along the way. Leaf arrays are returned as-is.
// A nil result means the path is missing.
func (d *Document) Resolve(path string) []Value {
	return resolve(Doc(d), SplitPath(path))
}

func resolve(v Value, segs []string) []Value {
	if len(segs) == 0 {
		return []Value{v}
	}
	switch v.kind {
	case KindDocument:
		child, ok := v.doc.Get(segs[0])
		if !ok {
			return nil
		}
		return resolve(child, segs[1:])
	case KindArray:
		var out []Value
		if idx, ok := arrayIndex(segs[0]); ok {
			if idx < len(v.arr) {
				out = append(out, resolve(v.arr[idx], segs[1:])...)
			}
			return out
		}
		for _, e := range v.arr {
			if e.kind == KindDocument {
				out = append(out, resolve(e, segs)...)
			}
		}
		return out
	default:
		return nil
	}
}

// Lookup returns the value at a dotted path using expression semantics:
// traversing an array of documents yields the array of their field values.
func (d *Document) Lookup(path string) (Value, bool) {
	return lookup(Doc(d), SplitPath(path))
}

func lookup(v Value, segs []string) (Value, bool) {
	if len(segs) == 0 {
		return v, true
	}
	switch v.kind {
	case KindDocument:
		child, ok := v.doc.Get(segs[0])
		if !ok {
			return Value{}, false
		}
		return lookup(child, segs[1:])
	case KindArray:
		out := make([]Value, 0, len(v.arr))
		for _, e := range v.arr {
			if e.kind != KindDocument && e.kind != KindArray {
				continue
			}
			if r, ok := lookup(e, segs); ok {
				out = append(out, r)
			}
		}
		return Array(out...), true
	default:
		return Value{}, false
	}
}

// SetPath writes a value at a dotted path, creating intermediate documents.
// Numeric segments address array elements; arrays are padded with nulls.
func (d *Document) SetPath(path string, v Value) error {
	segs := SplitPath(path)
	cur := d
	for i, seg := range segs {
		last := i == len(segs)-1
		if last {
			cur.Set(seg, v)
			return nil
		}
		child, ok := cur.Get(seg)
		if !ok || child.kind == KindNull {
			next := New()
			cur.Set(seg, Doc(next))
			cur = next
			continue
		}
		switch child.kind {
		case KindDocument:
			cur = child.doc
		case KindArray:
			arr, err := setInArray(child.arr, segs[i+1:], v, path)
			if err != nil {
				return err
			}
			cur.Set(seg, Array(arr...))
			return nil
		default:
			return fmt.Errorf("cannot create field %q in %s at %q: %w",
				segs[i+1], child.kind, path, domain.ErrInvalidSpec)
		}
	}
	return nil
}

func setInArray(arr []Value, segs []string, v Value, path string) ([]Value, error) {
	idx, ok := arrayIndex(segs[0])
	if !ok {
		return nil, fmt.Errorf("cannot create field %q in array at %q: %w", segs[0], path, domain.ErrInvalidSpec)
	}
	for len(arr) <= idx {
		arr = append(arr, Null())
	}
	if len(segs) == 1 {
		arr[idx] = v
		return arr, nil
	}
	elem := arr[idx]
	switch elem.kind {
	case KindNull:
		next := New()
		if err := next.SetPath(strings.Join(segs[1:], "."), v); err != nil {
			return nil, err
		}
		arr[idx] = Doc(next)
	case KindDocument:
		if err := elem.doc.SetPath(strings.Join(segs[1:], "."), v); err != nil {
			return nil, err
		}
	case KindArray:
		inner, err := setInArray(elem.arr, segs[1:], v, path)
		if err != nil {
			return nil, err
		}
		arr[idx] = Array(inner...)
	default:
		return nil, fmt.Errorf("cannot create field %q in %s at %q: %w", segs[1], elem.kind, path, domain.ErrInvalidSpec)
	}
	return arr, nil
}

// GetPath returns the single value at a dotted path without array fan-out,
// following numeric segments into arrays.
func (d *Document) GetPath(path string) (Value, bool) {
	cur := Doc(d)
	for _, seg := range SplitPath(path) {
		switch cur.kind {
		case KindDocument:
			next, ok := cur.doc.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindArray:
			idx, ok := arrayIndex(seg)
			if !ok || idx >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// UnsetPath removes the value at a dotted path and reports whether it existed.
// Array elements are set to null rather than removed.
func (d *Document) UnsetPath(path string) bool {
	segs := SplitPath(path)
	parent, ok := d.GetPath(strings.Join(segs[:len(segs)-1], "."))
	if len(segs) == 1 {
		return d.Delete(segs[0])
	}
	if !ok {
		return false
	}
	leaf := segs[len(segs)-1]
	switch parent.kind {
	case KindDocument:
		return parent.doc.Delete(leaf)
	case KindArray:
		idx, ok := arrayIndex(leaf)
		if !ok || idx >= len(parent.arr) {
			return false
		}
		parent.arr[idx] = Null()
		return true
	default:
		return false
	}
}
