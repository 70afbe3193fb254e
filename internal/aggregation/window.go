package aggregation

import (
	"context"
	"math"
	"slices"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
	"github.com/kailas-cloud/docdex/internal/domain/query/order"
)

// Rank functions computed from positions rather than accumulators.
const (
	opDocumentNumber = "$documentNumber"
	opRank           = "$rank"
)

// SetWindowFields adds per-row aggregates computed over a partition.
type SetWindowFields struct {
	partitionBy expr.Expression
	sortBy      order.Sort
	outputs     []windowOutput
}

type windowOutput struct {
	field  string
	rank   string
	acc    expr.AccumulatorSpec
	window *window
}

// window is a documents-based frame relative to the current row.
type window struct {
	lo, hi         int
	loOpen, hiOpen bool
}

func decodeSetWindowFields(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$setWindowFields takes an object")
	}
	w := &SetWindowFields{}
	for _, f := range body.DocumentValue().Fields() {
		switch f.Key {
		case "partitionBy":
			e, err := expr.Compile(f.Value)
			if err != nil {
				return nil, err
			}
			w.partitionBy = e
		case "sortBy":
			if f.Value.Kind() != document.KindDocument {
				return nil, stageErr("$setWindowFields sortBy must be an object")
			}
			s, err := order.Parse(f.Value.DocumentValue())
			if err != nil {
				return nil, err
			}
			w.sortBy = s
		case "output":
			if f.Value.Kind() != document.KindDocument || f.Value.DocumentValue().Len() == 0 {
				return nil, stageErr("$setWindowFields output must be a non-empty object")
			}
			for _, o := range f.Value.DocumentValue().Fields() {
				wo, err := decodeWindowOutput(o)
				if err != nil {
					return nil, err
				}
				w.outputs = append(w.outputs, wo)
			}
		default:
			return nil, stageErr("$setWindowFields: unknown option %q", f.Key)
		}
	}
	if w.outputs == nil {
		return nil, stageErr("$setWindowFields requires output")
	}
	for _, o := range w.outputs {
		if o.rank == opRank && w.sortBy == nil {
			return nil, stageErr("$rank requires sortBy")
		}
	}
	return w, nil
}

func decodeWindowOutput(f document.Field) (windowOutput, error) {
	wo := windowOutput{field: f.Key}
	if document.ValidatePath(f.Key) != nil || f.Value.Kind() != document.KindDocument {
		return wo, stageErr("$setWindowFields: invalid output %q", f.Key)
	}
	var op *document.Field
	for _, g := range f.Value.DocumentValue().Fields() {
		if g.Key == "window" {
			win, err := decodeWindow(g.Value)
			if err != nil {
				return wo, err
			}
			wo.window = win
			continue
		}
		if op != nil {
			return wo, stageErr("$setWindowFields output %q takes one operator", f.Key)
		}
		op = &g
	}
	if op == nil {
		return wo, stageErr("$setWindowFields output %q has no operator", f.Key)
	}
	switch op.Key {
	case opDocumentNumber, opRank:
		if op.Value.Kind() != document.KindDocument || op.Value.DocumentValue().Len() != 0 {
			return wo, stageErr("%s takes an empty object", op.Key)
		}
		if wo.window != nil {
			return wo, stageErr("%s does not accept a window", op.Key)
		}
		wo.rank = op.Key
	default:
		acc, err := expr.CompileAccumulatorOp(op.Key, op.Value)
		if err != nil {
			return wo, err
		}
		wo.acc = acc
	}
	return wo, nil
}

func decodeWindow(v document.Value) (*window, error) {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() != 1 {
		return nil, stageErr("window must be {documents: [lower, upper]}")
	}
	docs, ok := v.DocumentValue().Get("documents")
	if !ok || docs.Kind() != document.KindArray || len(docs.ArrayValue()) != 2 {
		return nil, stageErr("window must be {documents: [lower, upper]}")
	}
	w := &window{}
	lo, loOpen, err := windowBound(docs.ArrayValue()[0])
	if err != nil {
		return nil, err
	}
	hi, hiOpen, err := windowBound(docs.ArrayValue()[1])
	if err != nil {
		return nil, err
	}
	if !loOpen && !hiOpen && lo > hi {
		return nil, stageErr("window lower bound exceeds upper bound")
	}
	w.lo, w.loOpen = clampOffset(lo), loOpen
	w.hi, w.hiOpen = clampOffset(hi), hiOpen
	return w, nil
}

// maxWindowOffset bounds stored offsets so that row arithmetic cannot
// overflow. Any larger offset already reaches past every partition.
const maxWindowOffset = math.MaxInt32

func clampOffset(off int64) int {
	return int(min(max(off, -maxWindowOffset), maxWindowOffset))
}

func windowBound(v document.Value) (offset int64, unbounded bool, err error) {
	switch {
	case v.Kind() == document.KindString && v.StringValue() == "unbounded":
		return 0, true, nil
	case v.Kind() == document.KindString && v.StringValue() == "current":
		return 0, false, nil
	case v.Kind() == document.KindInt:
		return v.IntValue(), false, nil
	case v.Kind() == document.KindFloat && !math.IsInf(v.FloatValue(), 0) && v.FloatValue() == math.Trunc(v.FloatValue()):
		f := math.Min(math.Max(v.FloatValue(), -maxWindowOffset), maxWindowOffset)
		return int64(f), false, nil
	}
	return 0, false, stageErr("window bounds must be \"unbounded\", \"current\" or an integer")
}

// frame returns the inclusive row range of the window around row i of n.
// The range is empty when from > to.
func (w *window) frame(i, n int) (from, to int) {
	from, to = 0, n-1
	if !w.loOpen {
		from = max(i+min(max(w.lo, -n), n), 0)
	}
	if !w.hiOpen {
		to = min(i+min(max(w.hi, -n), n), n-1)
	}
	return from, to
}

// Name implements Stage.
func (*SetWindowFields) Name() string { return "$setWindowFields" }

func (w *SetWindowFields) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		docs, err := buffer(ctx, rt, in)
		if err != nil {
			yield(nil, err)
			return
		}
		partitions, err := w.partition(docs)
		if err != nil {
			yield(nil, err)
			return
		}
		out := make([]*document.Document, len(docs))
		for i, d := range docs {
			out[i] = d.Clone()
		}
		tick := rt.every(ctx)
		for _, rows := range partitions {
			if w.sortBy != nil {
				slices.SortStableFunc(rows, func(a, b int) int { return w.sortBy.Compare(docs[a], docs[b]) })
			}
			for _, o := range w.outputs {
				if err := w.compute(o, docs, rows, out, tick); err != nil {
					yield(nil, err)
					return
				}
			}
		}
		fromSlice(out)(yield)
	}
}

// partition groups row numbers by the partition key in first-seen order.
func (w *SetWindowFields) partition(docs []*document.Document) ([][]int, error) {
	if w.partitionBy == nil {
		rows := make([]int, len(docs))
		for i := range rows {
			rows[i] = i
		}
		return [][]int{rows}, nil
	}
	index := map[string]int{}
	var parts [][]int
	for i, d := range docs {
		k, ok, err := expr.Evaluate(w.partitionBy, expr.NewScope(d))
		if err != nil {
			return nil, err
		}
		if !ok {
			k = document.Null()
		}
		ks := document.KeyString(k)
		p, seen := index[ks]
		if !seen {
			p = len(parts)
			index[ks] = p
			parts = append(parts, nil)
		}
		parts[p] = append(parts[p], i)
	}
	return parts, nil
}

func (w *SetWindowFields) compute(o windowOutput, docs []*document.Document, rows []int,
	out []*document.Document, tick func() error) error {
	n := len(rows)
	var whole document.Value
	if o.rank == "" && o.window == nil {
		acc := o.acc.New()
		for _, r := range rows {
			if err := o.acc.Feed(acc, expr.NewScope(docs[r])); err != nil {
				return err
			}
		}
		whole = acc.Result()
	}
	rank := 1
	for pos, r := range rows {
		if err := tick(); err != nil {
			return err
		}
		var v document.Value
		switch {
		case o.rank == opDocumentNumber:
			v = document.Int(int64(pos + 1))
		case o.rank == opRank:
			if pos > 0 && w.sortBy.Compare(docs[rows[pos-1]], docs[r]) != 0 {
				rank = pos + 1
			}
			v = document.Int(int64(rank))
		case o.window == nil:
			v = whole
		default:
			acc := o.acc.New()
			if from, to := o.window.frame(pos, n); from <= to {
				for _, fr := range rows[from : to+1] {
					if err := o.acc.Feed(acc, expr.NewScope(docs[fr])); err != nil {
						return err
					}
				}
			}
			v = acc.Result()
		}
		if err := out[r].SetPath(o.field, v.Clone()); err != nil {
			return err
		}
	}
	return nil
}
