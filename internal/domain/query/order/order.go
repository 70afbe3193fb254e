// Package order parses sort specifications and compares documents by them.
package order

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Key is one sort key. TextScore keys sort by relevance, highest first.
type Key struct {
	Path      string
	Desc      bool
	TextScore bool
}

// Direction returns 1 for ascending and -1 for descending keys.
func (k Key) Direction() int {
	if k.Desc {
		return -1
	}
	return 1
}

// Sort is an ordered list of keys. The zero value means natural order.
type Sort []Key

// Parse reads {field: 1|-1, score: {$meta: "textScore"}}.
func Parse(d *document.Document) (Sort, error) {
	if d == nil {
		return nil, nil
	}
	out := make(Sort, 0, d.Len())
	for _, f := range d.Fields() {
		if err := document.ValidatePath(f.Key); err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		switch {
		case f.Value.IsNumber() && f.Value.FloatValue() == 1:
			out = append(out, Key{Path: f.Key})
		case f.Value.IsNumber() && f.Value.FloatValue() == -1:
			out = append(out, Key{Path: f.Key, Desc: true})
		case isTextScoreMeta(f.Value):
			out = append(out, Key{Path: f.Key, Desc: true, TextScore: true})
		default:
			return nil, fmt.Errorf("sort direction for %q must be 1, -1 or {$meta: \"textScore\"}: %w",
				f.Key, domain.ErrInvalidSpec)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sort needs at least one key: %w", domain.ErrInvalidSpec)
	}
	return out, nil
}

func isTextScoreMeta(v document.Value) bool {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() != 1 {
		return false
	}
	m, ok := v.DocumentValue().Get("$meta")
	return ok && m.Kind() == document.KindString && m.StringValue() == "textScore"
}

// HasTextScore reports whether any key sorts by relevance.
func (s Sort) HasTextScore() bool {
	for _, k := range s {
		if k.TextScore {
			return true
		}
	}
	return false
}

// String renders the sort for cache keys and explain output.
func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, k := range s {
		switch {
		case k.TextScore:
			parts[i] = k.Path + ":textScore"
		default:
			parts[i] = fmt.Sprintf("%s:%d", k.Path, k.Direction())
		}
	}
	return strings.Join(parts, ",")
}

// Compare orders two documents. Arrays sort by their smallest element when
// ascending and by their largest when descending; missing sorts as null.
func (s Sort) Compare(a, b *document.Document) int {
	for _, k := range s {
		var c int
		if k.TextScore {
			sa, _ := a.TextScore()
			sb, _ := b.TextScore()
			switch {
			case sa > sb:
				c = -1
			case sa < sb:
				c = 1
			}
		} else {
			c = document.Compare(sortValue(a, k), sortValue(b, k)) * k.Direction()
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func sortValue(d *document.Document, k Key) document.Value {
	vals := d.Resolve(k.Path)
	if len(vals) == 0 {
		return document.Null()
	}
	var best document.Value
	found := false
	consider := func(v document.Value) {
		if !found {
			best, found = v, true
			return
		}
		c := document.Compare(v, best)
		if (!k.Desc && c < 0) || (k.Desc && c > 0) {
			best = v
		}
	}
	for _, v := range vals {
		if v.Kind() == document.KindArray {
			if len(v.ArrayValue()) == 0 {
				consider(document.Null())
			}
			for _, e := range v.ArrayValue() {
				consider(e)
			}
			continue
		}
		consider(v)
	}
	return best
}
