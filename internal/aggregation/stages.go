package aggregation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/domain/query/order"
)

// Match keeps documents that satisfy a filter.
type Match struct {
	filter *filter.Filter
}

func decodeMatch(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$match takes an object")
	}
	f, err := filter.Parse(body.DocumentValue())
	if err != nil {
		return nil, err
	}
	return &Match{filter: f}, nil
}

// Name implements Stage.
func (*Match) Name() string { return "$match" }

// Filter returns the parsed filter.
func (m *Match) Filter() *filter.Filter { return m.filter }

func (m *Match) run(_ context.Context, _ *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		for d, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			ok, err := m.filter.Match(d)
			if err != nil {
				yield(nil, err)
				return
			}
			if ok && !yield(d, nil) {
				return
			}
		}
	}
}

// Sort orders documents stably.
type Sort struct {
	order order.Sort
}

func decodeSort(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$sort takes an object")
	}
	s, err := order.Parse(body.DocumentValue())
	if err != nil {
		return nil, err
	}
	return &Sort{order: s}, nil
}

// Name implements Stage.
func (*Sort) Name() string { return "$sort" }

func (s *Sort) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		docs, err := buffer(ctx, rt, in)
		if err != nil {
			yield(nil, err)
			return
		}
		slices.SortStableFunc(docs, s.order.Compare)
		fromSlice(docs)(yield)
	}
}

// Limit passes the first n documents.
type Limit struct{ n int64 }

// Skip drops the first n documents.
type Skip struct{ n int64 }

func positiveInt(name string, body document.Value, allowZero bool) (int64, error) {
	if !body.IsNumber() || body.FloatValue() != float64(body.IntValue()) {
		return 0, stageErr("%s takes an integer", name)
	}
	n := body.IntValue()
	if n < 0 || (n == 0 && !allowZero) {
		return 0, stageErr("%s must be positive, got %d", name, n)
	}
	return n, nil
}

func decodeLimit(body document.Value) (Stage, error) {
	n, err := positiveInt("$limit", body, false)
	if err != nil {
		return nil, err
	}
	return &Limit{n: n}, nil
}

func decodeSkip(body document.Value) (Stage, error) {
	n, err := positiveInt("$skip", body, true)
	if err != nil {
		return nil, err
	}
	return &Skip{n: n}, nil
}

// Name implements Stage.
func (*Limit) Name() string { return "$limit" }

// Name implements Stage.
func (*Skip) Name() string { return "$skip" }

func (l *Limit) run(_ context.Context, _ *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		if l.n == 0 {
			return
		}
		var seen int64
		for d, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(d, nil) {
				return
			}
			seen++
			if seen >= l.n {
				return
			}
		}
	}
}

func (s *Skip) run(_ context.Context, _ *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		var seen int64
		for d, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			seen++
			if seen <= s.n {
				continue
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Count emits {field: n}, or nothing for an empty input.
type Count struct{ field string }

func decodeCount(body document.Value) (Stage, error) {
	if body.Kind() != document.KindString {
		return nil, stageErr("$count takes a field name")
	}
	name := body.StringValue()
	if name == "" || strings.HasPrefix(name, "$") || strings.Contains(name, ".") {
		return nil, stageErr("invalid $count field %q", name)
	}
	return &Count{field: name}, nil
}

// Name implements Stage.
func (*Count) Name() string { return "$count" }

func (c *Count) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		tick := rt.every(ctx)
		var n int64
		for _, err := range in {
			if err == nil {
				err = tick()
			}
			if err != nil {
				yield(nil, err)
				return
			}
			n++
		}
		if n > 0 {
			yield(document.FromFields(document.Field{Key: c.field, Value: document.Int(n)}), nil)
		}
	}
}

// AddFields sets computed fields; $set is an alias.
type AddFields struct {
	name   string
	fields []computed
}

type computed struct {
	path string
	expr expr.Expression
}

func decodeAddFields(name string) decoder {
	return func(body document.Value) (Stage, error) {
		if body.Kind() != document.KindDocument || body.DocumentValue().Len() == 0 {
			return nil, stageErr("%s takes a non-empty object", name)
		}
		st := &AddFields{name: name}
		for _, f := range body.DocumentValue().Fields() {
			if err := document.ValidatePath(f.Key); err != nil || strings.HasPrefix(f.Key, "$") {
				return nil, stageErr("%s: invalid field %q", name, f.Key)
			}
			e, err := expr.Compile(f.Value)
			if err != nil {
				return nil, err
			}
			st.fields = append(st.fields, computed{path: f.Key, expr: e})
		}
		return st, nil
	}
}

// Name implements Stage.
func (a *AddFields) Name() string { return a.name }

func (a *AddFields) run(_ context.Context, _ *runtime, in Stream) Stream {
	return mapDocs(in, func(d *document.Document) (*document.Document, error) {
		s := expr.NewScope(d)
		type result struct {
			v       document.Value
			present bool
		}
		results := make([]result, len(a.fields))
		for i, f := range a.fields {
			v, ok, err := expr.Evaluate(f.expr, s)
			if err != nil {
				return nil, err
			}
			results[i] = result{v, ok}
		}
		out := d.Clone()
		for i, f := range a.fields {
			if !results[i].present {
				out.UnsetPath(f.path)
				continue
			}
			if err := out.SetPath(f.path, results[i].v); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// mapDocs applies fn to every document of a stream.
func mapDocs(in Stream, fn func(*document.Document) (*document.Document, error)) Stream {
	return func(yield func(*document.Document, error) bool) {
		for d, err := range in {
			if err == nil {
				d, err = fn(d)
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if d != nil && !yield(d, nil) {
				return
			}
		}
	}
}

// Unset removes fields.
type Unset struct{ paths []string }

func decodeUnset(body document.Value) (Stage, error) {
	var names []document.Value
	switch body.Kind() {
	case document.KindString:
		names = []document.Value{body}
	case document.KindArray:
		names = body.ArrayValue()
	default:
		return nil, stageErr("$unset takes a field name or an array of names")
	}
	if len(names) == 0 {
		return nil, stageErr("$unset needs at least one field")
	}
	st := &Unset{}
	for _, n := range names {
		if n.Kind() != document.KindString || document.ValidatePath(n.StringValue()) != nil {
			return nil, stageErr("$unset: invalid field")
		}
		st.paths = append(st.paths, n.StringValue())
	}
	return st, nil
}

// Name implements Stage.
func (*Unset) Name() string { return "$unset" }

func (u *Unset) run(_ context.Context, _ *runtime, in Stream) Stream {
	return mapDocs(in, func(d *document.Document) (*document.Document, error) {
		out := d.Clone()
		for _, p := range u.paths {
			out.UnsetPath(p)
		}
		return out, nil
	})
}

// ReplaceRoot promotes an embedded document to the top level.
type ReplaceRoot struct {
	name    string
	newRoot expr.Expression
}

func decodeReplaceRoot(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$replaceRoot takes an object")
	}
	d := body.DocumentValue()
	nr, ok := d.Get("newRoot")
	if !ok || d.Len() != 1 {
		return nil, stageErr("$replaceRoot takes exactly {newRoot: <expression>}")
	}
	e, err := expr.Compile(nr)
	if err != nil {
		return nil, err
	}
	return &ReplaceRoot{name: "$replaceRoot", newRoot: e}, nil
}

func decodeReplaceWith(body document.Value) (Stage, error) {
	e, err := expr.Compile(body)
	if err != nil {
		return nil, err
	}
	return &ReplaceRoot{name: "$replaceWith", newRoot: e}, nil
}

// Name implements Stage.
func (r *ReplaceRoot) Name() string { return r.name }

func (r *ReplaceRoot) run(_ context.Context, _ *runtime, in Stream) Stream {
	return mapDocs(in, func(d *document.Document) (*document.Document, error) {
		v, err := r.newRoot.Eval(expr.NewScope(d))
		if err != nil {
			return nil, err
		}
		if v.Kind() != document.KindDocument {
			return nil, domain.NewTypeMismatch(r.name, "document", v.Kind().String())
		}
		return v.DocumentValue().Clone().InheritMeta(d), nil
	})
}

// Redact keeps or prunes whole documents by an expression.
type Redact struct{ expr expr.Expression }

func decodeRedact(body document.Value) (Stage, error) {
	e, err := expr.Compile(body)
	if err != nil {
		return nil, err
	}
	return &Redact{expr: e}, nil
}

// Name implements Stage.
func (*Redact) Name() string { return "$redact" }

func (r *Redact) run(_ context.Context, _ *runtime, in Stream) Stream {
	return mapDocs(in, func(d *document.Document) (*document.Document, error) {
		v, err := r.expr.Eval(expr.NewScope(d))
		if err != nil {
			return nil, err
		}
		if v.Kind() == document.KindString {
			switch v.StringValue() {
			case expr.VarKeep:
				return d, nil
			case expr.VarPrune:
				return nil, nil
			}
		}
		return nil, fmt.Errorf("$redact must resolve to $$KEEP or $$PRUNE, got %s: %w",
			describe(v), domain.ErrInvalidStageSpec)
	})
}

func describe(v document.Value) string {
	if v.Kind() == document.KindString {
		return v.StringValue()
	}
	return v.Kind().String()
}
