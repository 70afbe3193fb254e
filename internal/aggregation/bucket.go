package aggregation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
)

// Bucket groups documents into [b_i, b_i+1) ranges of a value.
type Bucket struct {
	groupBy    expr.Expression
	boundaries []document.Value
	def        *document.Value
	outputs    []output
}

func decodeBucket(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$bucket takes an object")
	}
	b := &Bucket{}
	var hasGroupBy, hasBoundaries bool
	for _, f := range body.DocumentValue().Fields() {
		switch f.Key {
		case "groupBy":
			e, err := expr.Compile(f.Value)
			if err != nil {
				return nil, err
			}
			b.groupBy, hasGroupBy = e, true
		case "boundaries":
			if err := b.setBoundaries(f.Value); err != nil {
				return nil, err
			}
			hasBoundaries = true
		case "default":
			v := f.Value
			b.def = &v
		case "output":
			if f.Value.Kind() != document.KindDocument {
				return nil, stageErr("$bucket output must be an object")
			}
			for _, o := range f.Value.DocumentValue().Fields() {
				if strings.Contains(o.Key, ".") || strings.HasPrefix(o.Key, "$") || o.Key == document.IDField {
					return nil, stageErr("$bucket: invalid output field %q", o.Key)
				}
				acc, err := expr.CompileAccumulator(o.Value)
				if err != nil {
					return nil, err
				}
				b.outputs = append(b.outputs, output{field: o.Key, acc: acc})
			}
		default:
			return nil, stageErr("$bucket: unknown option %q", f.Key)
		}
	}
	if !hasGroupBy || !hasBoundaries {
		return nil, stageErr("$bucket requires groupBy and boundaries")
	}
	if b.outputs == nil {
		count, _ := expr.CompileAccumulatorOp("$sum", document.Int(1))
		b.outputs = []output{{field: "count", acc: count}}
	}
	return b, nil
}

func (b *Bucket) setBoundaries(v document.Value) error {
	if v.Kind() != document.KindArray || len(v.ArrayValue()) < 2 {
		return stageErr("$bucket boundaries must be an array of at least two values")
	}
	bounds := v.ArrayValue()
	for i := 1; i < len(bounds); i++ {
		if !document.SameTypeBracket(bounds[0], bounds[i]) {
			return stageErr("$bucket boundaries must share one type")
		}
		if document.Compare(bounds[i-1], bounds[i]) >= 0 {
			return stageErr("$bucket boundaries must be strictly ascending")
		}
	}
	b.boundaries = bounds
	return nil
}

// Name implements Stage.
func (*Bucket) Name() string { return "$bucket" }

// bucketOf returns the range index of v, or -1 when no range holds it.
func (b *Bucket) bucketOf(v document.Value) int {
	if !document.SameTypeBracket(v, b.boundaries[0]) {
		return -1
	}
	// first boundary strictly greater than v
	i := sort.Search(len(b.boundaries), func(i int) bool {
		return document.Compare(b.boundaries[i], v) > 0
	})
	if i == 0 || i == len(b.boundaries) {
		return -1
	}
	return i - 1
}

func (b *Bucket) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		tick := rt.every(ctx)
		ranges := make([][]expr.Accumulator, len(b.boundaries)-1)
		var other []expr.Accumulator
		for d, err := range in {
			if err == nil {
				err = tick()
			}
			if err != nil {
				yield(nil, err)
				return
			}
			s := expr.NewScope(d)
			v, ok, err := expr.Evaluate(b.groupBy, s)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				v = document.Null()
			}
			i := b.bucketOf(v)
			var accs []expr.Accumulator
			switch {
			case i >= 0:
				if ranges[i] == nil {
					ranges[i] = newAccumulators(b.outputs)
				}
				accs = ranges[i]
			case b.def != nil:
				if other == nil {
					other = newAccumulators(b.outputs)
				}
				accs = other
			default:
				yield(nil, fmt.Errorf("$bucket value %s falls outside every boundary and no default is set: %w",
					describe(v), domain.ErrInvalidStageSpec))
				return
			}
			if err := feed(b.outputs, accs, s); err != nil {
				yield(nil, err)
				return
			}
		}
		for i, accs := range ranges {
			if accs == nil {
				continue
			}
			if !yield(b.emit(b.boundaries[i], accs), nil) {
				return
			}
		}
		if other != nil {
			yield(b.emit(*b.def, other), nil)
		}
	}
}

func (b *Bucket) emit(id document.Value, accs []expr.Accumulator) *document.Document {
	out := document.FromFields(document.Field{Key: document.IDField, Value: id})
	setResults(out, b.outputs, accs)
	return out
}
