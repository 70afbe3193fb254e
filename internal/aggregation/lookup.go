package aggregation

import (
	"context"
	"slices"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Lookup joins documents of another collection by field equality.
type Lookup struct {
	from         string
	localField   string
	foreignField string
	as           string
}

func decodeLookup(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$lookup takes an object")
	}
	l := &Lookup{}
	for _, f := range body.DocumentValue().Fields() {
		if f.Value.Kind() != document.KindString {
			return nil, stageErr("$lookup %s must be a string", f.Key)
		}
		s := f.Value.StringValue()
		switch f.Key {
		case "from":
			l.from = s
		case "localField":
			l.localField = s
		case "foreignField":
			l.foreignField = s
		case "as":
			l.as = s
		default:
			return nil, stageErr("$lookup: unknown option %q", f.Key)
		}
	}
	if l.from == "" {
		return nil, stageErr("$lookup requires from")
	}
	for _, p := range []string{l.localField, l.foreignField, l.as} {
		if err := document.ValidatePath(p); err != nil {
			return nil, stageErr("$lookup requires localField, foreignField and as")
		}
	}
	return l, nil
}

// Name implements Stage.
func (*Lookup) Name() string { return "$lookup" }

// joinKeys returns the equality keys of a path: every leaf value, every element
// of leaf arrays, and null when the path is missing.
func joinKeys(d *document.Document, path string) []string {
	vals := d.Resolve(path)
	if len(vals) == 0 {
		return []string{document.KeyString(document.Null())}
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(v document.Value) {
		k := document.KeyString(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for _, v := range vals {
		add(v)
		if v.Kind() == document.KindArray {
			for _, e := range v.ArrayValue() {
				add(e)
			}
		}
	}
	return out
}

// foreignTable hashes the foreign collection on first use.
type foreignTable struct {
	docs []*document.Document
	keys map[string][]int
}

func (l *Lookup) load(ctx context.Context, rt *runtime) (*foreignTable, error) {
	t := &foreignTable{keys: map[string][]int{}}
	tick := rt.every(ctx)
	for d, err := range rt.env.Find(ctx, l.from, nil) {
		if err == nil {
			err = tick()
		}
		if err != nil {
			return nil, err
		}
		i := len(t.docs)
		t.docs = append(t.docs, d)
		for _, k := range joinKeys(d, l.foreignField) {
			t.keys[k] = append(t.keys[k], i)
		}
	}
	return t, nil
}

func (t *foreignTable) match(keys []string) []document.Value {
	hit := map[int]struct{}{}
	var rows []int
	for _, k := range keys {
		for _, i := range t.keys[k] {
			if _, ok := hit[i]; !ok {
				hit[i] = struct{}{}
				rows = append(rows, i)
			}
		}
	}
	// keep foreign collection order
	slices.Sort(rows)
	out := make([]document.Value, len(rows))
	for j, i := range rows {
		out[j] = document.Doc(t.docs[i].Clone())
	}
	return out
}

func (l *Lookup) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		var table *foreignTable
		for d, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			if table == nil {
				if table, err = l.load(ctx, rt); err != nil {
					yield(nil, err)
					return
				}
			}
			out := d.Clone()
			if err := out.SetPath(l.as, document.Array(table.match(joinKeys(d, l.localField))...)); err != nil {
				yield(nil, err)
				return
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}
