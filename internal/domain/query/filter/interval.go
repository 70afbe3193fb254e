package filter

import (
	"slices"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Bound is one end of an Interval.
type Bound struct {
	Value     document.Value
	Inclusive bool
	Unbounded bool
}

// Interval is a contiguous range of values in the canonical order.
// Typed intervals only contain values of the same type bracket as their
// finite bounds, so {$gt: 5} does not reach strings.
type Interval struct {
	Low   Bound
	High  Bound
	Typed bool
}

// Full is the interval containing every value.
func Full() Interval {
	return Interval{Low: Bound{Unbounded: true}, High: Bound{Unbounded: true}}
}

// PointInterval contains exactly v.
func PointInterval(v document.Value) Interval {
	return Interval{
		Low:  Bound{Value: v, Inclusive: true},
		High: Bound{Value: v, Inclusive: true},
	}
}

// IsPoint reports whether the interval holds a single value.
func (i Interval) IsPoint() bool {
	return !i.Low.Unbounded && !i.High.Unbounded && i.Low.Inclusive && i.High.Inclusive &&
		document.Compare(i.Low.Value, i.High.Value) == 0
}

// IsFull reports whether the interval is unbounded on both sides.
func (i Interval) IsFull() bool {
	return i.Low.Unbounded && i.High.Unbounded
}

// Contains reports whether v lies within the interval.
func (i Interval) Contains(v document.Value) bool {
	if !i.Low.Unbounded {
		if i.Typed && !document.SameTypeBracket(v, i.Low.Value) {
			return false
		}
		c := document.Compare(v, i.Low.Value)
		if c < 0 || (c == 0 && !i.Low.Inclusive) {
			return false
		}
	}
	if !i.High.Unbounded {
		if i.Typed && !document.SameTypeBracket(v, i.High.Value) {
			return false
		}
		c := document.Compare(v, i.High.Value)
		if c > 0 || (c == 0 && !i.High.Inclusive) {
			return false
		}
	}
	return true
}

// BelowLow reports whether v sorts before the interval's low bound.
func (i Interval) BelowLow(v document.Value) bool {
	if i.Low.Unbounded {
		return false
	}
	c := document.Compare(v, i.Low.Value)
	return c < 0 || (c == 0 && !i.Low.Inclusive)
}

// AboveHigh reports whether v sorts after the interval's high bound.
func (i Interval) AboveHigh(v document.Value) bool {
	if i.High.Unbounded {
		return false
	}
	c := document.Compare(v, i.High.Value)
	return c > 0 || (c == 0 && !i.High.Inclusive)
}

// Intersect returns the overlap of two intervals and whether it is non-empty.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	out := Interval{Typed: i.Typed || o.Typed}
	out.Low = tighterLow(i.Low, o.Low)
	out.High = tighterHigh(i.High, o.High)
	if out.Typed && !out.Low.Unbounded && !out.High.Unbounded &&
		!document.SameTypeBracket(out.Low.Value, out.High.Value) {
		return Interval{}, false
	}
	if !out.Low.Unbounded && !out.High.Unbounded {
		c := document.Compare(out.Low.Value, out.High.Value)
		if c > 0 || (c == 0 && !(out.Low.Inclusive && out.High.Inclusive)) {
			return Interval{}, false
		}
	}
	return out, true
}

func tighterLow(a, b Bound) Bound {
	switch {
	case a.Unbounded:
		return b
	case b.Unbounded:
		return a
	}
	c := document.Compare(a.Value, b.Value)
	switch {
	case c > 0:
		return a
	case c < 0:
		return b
	case !a.Inclusive:
		return a
	default:
		return b
	}
}

func tighterHigh(a, b Bound) Bound {
	switch {
	case a.Unbounded:
		return b
	case b.Unbounded:
		return a
	}
	c := document.Compare(a.Value, b.Value)
	switch {
	case c < 0:
		return a
	case c > 0:
		return b
	case !a.Inclusive:
		return a
	default:
		return b
	}
}

// Within reports whether every value of i is also in o.
func (i Interval) Within(o Interval) bool {
	if o.Typed && !i.Typed && !i.IsPoint() {
		return false
	}
	if !o.Low.Unbounded {
		if i.Low.Unbounded {
			return false
		}
		if o.Typed && !document.SameTypeBracket(i.Low.Value, o.Low.Value) {
			return false
		}
		c := document.Compare(i.Low.Value, o.Low.Value)
		if c < 0 || (c == 0 && i.Low.Inclusive && !o.Low.Inclusive) {
			return false
		}
	}
	if !o.High.Unbounded {
		if i.High.Unbounded {
			return false
		}
		if o.Typed && !document.SameTypeBracket(i.High.Value, o.High.Value) {
			return false
		}
		c := document.Compare(i.High.Value, o.High.Value)
		if c > 0 || (c == 0 && i.High.Inclusive && !o.High.Inclusive) {
			return false
		}
	}
	return true
}

// IntersectSets intersects two unions of intervals.
func IntersectSets(a, b []Interval) []Interval {
	var out []Interval
	for _, x := range a {
		for _, y := range b {
			if z, ok := x.Intersect(y); ok {
				out = append(out, z)
			}
		}
	}
	return out
}

// pointSet builds sorted, deduplicated point intervals.
func pointSet(vals []document.Value) []Interval {
	sorted := slices.Clone(vals)
	slices.SortFunc(sorted, document.Compare)
	sorted = slices.CompactFunc(sorted, document.Equal)
	out := make([]Interval, len(sorted))
	for i, v := range sorted {
		out[i] = PointInterval(v)
	}
	return out
}
