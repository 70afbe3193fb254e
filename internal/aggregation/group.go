package aggregation

import (
	"context"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
)

// Group partitions documents by a key expression and folds accumulators.
type Group struct {
	key     expr.Expression
	outputs []output
}

type output struct {
	field string
	acc   expr.AccumulatorSpec
}

type groupState struct {
	key  document.Value
	accs []expr.Accumulator
}

func decodeGroup(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$group takes an object")
	}
	d := body.DocumentValue()
	idv, ok := d.Get(document.IDField)
	if !ok {
		return nil, stageErr("$group requires an _id expression")
	}
	key, err := expr.Compile(idv)
	if err != nil {
		return nil, err
	}
	g := &Group{key: key}
	for _, f := range d.Fields() {
		if f.Key == document.IDField {
			continue
		}
		if strings.Contains(f.Key, ".") || strings.HasPrefix(f.Key, "$") {
			return nil, stageErr("$group: invalid output field %q", f.Key)
		}
		acc, err := expr.CompileAccumulator(f.Value)
		if err != nil {
			return nil, err
		}
		g.outputs = append(g.outputs, output{field: f.Key, acc: acc})
	}
	return g, nil
}

// Name implements Stage.
func (*Group) Name() string { return "$group" }

func (g *Group) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		tick := rt.every(ctx)
		groups := map[string]*groupState{}
		var order []*groupState
		for d, err := range in {
			if err == nil {
				err = tick()
			}
			if err != nil {
				yield(nil, err)
				return
			}
			s := expr.NewScope(d)
			k, ok, err := expr.Evaluate(g.key, s)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				k = document.Null()
			}
			ks := document.KeyString(k)
			st, seen := groups[ks]
			if !seen {
				st = &groupState{key: k, accs: newAccumulators(g.outputs)}
				groups[ks] = st
				order = append(order, st)
			}
			if err := feed(g.outputs, st.accs, s); err != nil {
				yield(nil, err)
				return
			}
		}
		for _, st := range order {
			out := document.FromFields(document.Field{Key: document.IDField, Value: st.key})
			setResults(out, g.outputs, st.accs)
			if !yield(out, nil) {
				return
			}
		}
	}
}

func newAccumulators(outputs []output) []expr.Accumulator {
	accs := make([]expr.Accumulator, len(outputs))
	for i, o := range outputs {
		accs[i] = o.acc.New()
	}
	return accs
}

func feed(outputs []output, accs []expr.Accumulator, s *expr.Scope) error {
	for i, o := range outputs {
		if err := o.acc.Feed(accs[i], s); err != nil {
			return err
		}
	}
	return nil
}

func setResults(d *document.Document, outputs []output, accs []expr.Accumulator) {
	for i, o := range outputs {
		d.Set(o.field, accs[i].Result())
	}
}
