package expr

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// AccumulatorSpec is a compiled accumulator such as {$sum: "$qty"}.
type AccumulatorSpec struct {
	Op  string
	Arg Expression
}

// Accumulator folds values of one group or window.
type Accumulator interface {
	// Add folds one value. present is false for missing fields.
	Add(v document.Value, present bool)
	// Result returns the current aggregate without consuming state.
	Result() document.Value
}

var accumulatorOps = map[string]func() Accumulator{
	"$sum":      func() Accumulator { return &sumAcc{sum: document.Int(0)} },
	"$avg":      func() Accumulator { return &avgAcc{} },
	"$min":      func() Accumulator { return &extremeAcc{sign: -1} },
	"$max":      func() Accumulator { return &extremeAcc{sign: 1} },
	"$push":     func() Accumulator { return &pushAcc{} },
	"$addToSet": func() Accumulator { return &setAcc{seen: map[string]struct{}{}} },
	"$first":    func() Accumulator { return &firstAcc{} },
	"$last":     func() Accumulator { return &lastAcc{} },
	"$count":    func() Accumulator { return &countAcc{} },
}

// IsAccumulator reports whether name is a known accumulator operator.
func IsAccumulator(name string) bool {
	_, ok := accumulatorOps[name]
	return ok
}

// CompileAccumulator parses a single-key accumulator document.
func CompileAccumulator(v document.Value) (AccumulatorSpec, error) {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() != 1 {
		return AccumulatorSpec{}, fmt.Errorf("accumulator must be a single-operator object: %w", domain.ErrInvalidSpec)
	}
	f := v.DocumentValue().Fields()[0]
	return CompileAccumulatorOp(f.Key, f.Value)
}

// CompileAccumulatorOp compiles an accumulator from its operator and argument.
func CompileAccumulatorOp(op string, arg document.Value) (AccumulatorSpec, error) {
	if !strings.HasPrefix(op, "$") || !IsAccumulator(op) {
		return AccumulatorSpec{}, fmt.Errorf("unknown accumulator %s: %w", op, domain.ErrInvalidSpec)
	}
	if op == "$count" {
		if arg.Kind() != document.KindDocument || arg.DocumentValue().Len() != 0 {
			return AccumulatorSpec{}, fmt.Errorf("$count takes an empty object: %w", domain.ErrInvalidSpec)
		}
		return AccumulatorSpec{Op: op, Arg: Const{Value: document.Int(1)}}, nil
	}
	e, err := Compile(arg)
	if err != nil {
		return AccumulatorSpec{}, fmt.Errorf("%s: %w", op, err)
	}
	return AccumulatorSpec{Op: op, Arg: e}, nil
}

// New creates an empty accumulator state.
func (a AccumulatorSpec) New() Accumulator {
	return accumulatorOps[a.Op]()
}

// Feed evaluates the argument in s and folds it into acc.
func (a AccumulatorSpec) Feed(acc Accumulator, s *Scope) error {
	v, ok, err := Evaluate(a.Arg, s)
	if err != nil {
		return err
	}
	acc.Add(v, ok)
	return nil
}

type sumAcc struct {
	sum document.Value
}

func (a *sumAcc) Add(v document.Value, present bool) {
	if present && v.IsNumber() {
		a.sum = AddNumbers(a.sum, v)
	}
}

func (a *sumAcc) Result() document.Value { return a.sum }

type avgAcc struct {
	total float64
	n     int
}

func (a *avgAcc) Add(v document.Value, present bool) {
	if present && v.IsNumber() {
		a.total += v.FloatValue()
		a.n++
	}
}

func (a *avgAcc) Result() document.Value {
	if a.n == 0 {
		return document.Null()
	}
	return document.Float(a.total / float64(a.n))
}

type extremeAcc struct {
	sign int
	best document.Value
	set  bool
}

func (a *extremeAcc) Add(v document.Value, present bool) {
	if !present || v.IsNull() {
		return
	}
	if !a.set || document.Compare(v, a.best)*a.sign > 0 {
		a.best = v
		a.set = true
	}
}

func (a *extremeAcc) Result() document.Value {
	if !a.set {
		return document.Null()
	}
	return a.best
}

type pushAcc struct {
	vals []document.Value
}

func (a *pushAcc) Add(v document.Value, present bool) {
	if present {
		a.vals = append(a.vals, v)
	}
}

func (a *pushAcc) Result() document.Value {
	return document.Array(append([]document.Value(nil), a.vals...)...)
}

type setAcc struct {
	vals []document.Value
	seen map[string]struct{}
}

func (a *setAcc) Add(v document.Value, present bool) {
	if !present {
		return
	}
	k := document.KeyString(v)
	if _, dup := a.seen[k]; dup {
		return
	}
	a.seen[k] = struct{}{}
	a.vals = append(a.vals, v)
}

func (a *setAcc) Result() document.Value {
	return document.Array(append([]document.Value(nil), a.vals...)...)
}

type firstAcc struct {
	v   document.Value
	set bool
}

func (a *firstAcc) Add(v document.Value, present bool) {
	if a.set {
		return
	}
	a.set = true
	if present {
		a.v = v
	}
}

func (a *firstAcc) Result() document.Value { return a.v }

type lastAcc struct {
	v document.Value
}

func (a *lastAcc) Add(v document.Value, present bool) {
	if present {
		a.v = v
		return
	}
	a.v = document.Null()
}

func (a *lastAcc) Result() document.Value { return a.v }

type countAcc struct {
	n int64
}

func (a *countAcc) Add(document.Value, bool) { a.n++ }

func (a *countAcc) Result() document.Value { return document.Int(a.n) }
