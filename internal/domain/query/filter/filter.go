// Package filter parses query filter documents into predicate trees and
// evaluates them against documents.
package filter

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
)

// Node is one element of a predicate tree.
type Node interface {
	Match(d *document.Document) (bool, error)
}

// Filter is a parsed filter document.
type Filter struct {
	root Node
	raw  *document.Document
}

// MatchAll is the empty filter.
func MatchAll() *Filter {
	return &Filter{root: And{}, raw: document.New()}
}

// Match evaluates the filter against a document.
func (f *Filter) Match(d *document.Document) (bool, error) {
	if f == nil {
		return true, nil
	}
	return f.root.Match(d)
}

// Root returns the top-level node.
func (f *Filter) Root() Node { return f.root }

// Raw returns the filter document it was parsed from.
func (f *Filter) Raw() *document.Document { return f.raw }

// IsEmpty reports whether the filter matches every document.
func (f *Filter) IsEmpty() bool {
	a, ok := f.root.(And)
	return ok && len(a.Children) == 0
}

// Conjuncts returns the top-level AND-ed nodes, flattening nested $and.
func (f *Filter) Conjuncts() []Node {
	return flattenAnd(f.root)
}

func flattenAnd(n Node) []Node {
	a, ok := n.(And)
	if !ok {
		return []Node{n}
	}
	var out []Node
	for _, c := range a.Children {
		out = append(out, flattenAnd(c)...)
	}
	return out
}

// Near returns the top-level proximity predicate, if any.
func (f *Filter) Near() *Near {
	for _, c := range f.Conjuncts() {
		if n, ok := c.(*Near); ok {
			return n
		}
	}
	return nil
}

// Text returns the top-level text search predicate, if any.
func (f *Filter) Text() *Text {
	for _, c := range f.Conjuncts() {
		if t, ok := c.(*Text); ok {
			return t
		}
	}
	return nil
}

// HasTopLevelOr reports whether any top-level conjunct is an $or or $nor.
func (f *Filter) HasTopLevelOr() bool {
	for _, c := range f.Conjuncts() {
		switch c.(type) {
		case Or, Nor:
			return true
		}
	}
	return false
}

// MatchesMissing reports whether n matches a document lacking every field.
func MatchesMissing(n Node) bool {
	ok, err := n.Match(document.New())
	return err == nil && ok
}

// And matches when every child matches.
type And struct{ Children []Node }

// Match implements Node.
func (a And) Match(d *document.Document) (bool, error) {
	for _, c := range a.Children {
		ok, err := c.Match(d)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Or matches when any child matches.
type Or struct{ Children []Node }

// Match implements Node.
func (o Or) Match(d *document.Document) (bool, error) {
	for _, c := range o.Children {
		ok, err := c.Match(d)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Nor matches when no child matches.
type Nor struct{ Children []Node }

// Match implements Node.
func (n Nor) Match(d *document.Document) (bool, error) {
	ok, err := Or(n).Match(d)
	return !ok && err == nil, err
}

// Not negates a field predicate.
type Not struct {
	Path  string
	Child Node
}

// Match implements Node.
func (n Not) Match(d *document.Document) (bool, error) {
	ok, err := n.Child.Match(d)
	return !ok && err == nil, err
}

// Predicate is one operator applied to the values at a field path.
type Predicate struct {
	Path   string
	Op     string
	Value  document.Value
	Values []document.Value

	re       *regexp.Regexp
	kinds    []document.Kind
	numeric  bool
	interval Interval
	elemDoc  *Filter
	elemOps  []*Predicate
}

// Match implements Node.
func (p *Predicate) Match(d *document.Document) (bool, error) {
	return p.matchValues(d.Resolve(p.Path))
}

func candidates(vals []document.Value) []document.Value {
	out := make([]document.Value, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
		if v.Kind() == document.KindArray {
			out = append(out, v.ArrayValue()...)
		}
	}
	return out
}

func (p *Predicate) matchValues(vals []document.Value) (bool, error) {
	missing := vals == nil
	switch p.Op {
	case "$eq":
		return p.eq(vals, missing), nil
	case "$ne":
		return !p.eq(vals, missing), nil
	case "$gt", "$gte", "$lt", "$lte":
		if missing {
			return p.Value.IsNull() && (p.Op == "$gte" || p.Op == "$lte"), nil
		}
		for _, c := range candidates(vals) {
			if p.interval.Contains(c) {
				return true, nil
			}
		}
		return false, nil
	case "$in":
		return p.in(vals, missing), nil
	case "$nin":
		return !p.in(vals, missing), nil
	case "$exists":
		return !missing == p.Value.Truthy(), nil
	case "$type":
		for _, c := range candidates(vals) {
			if p.kindMatches(c.Kind()) {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		for _, c := range candidates(vals) {
			if c.Kind() == document.KindString && p.re.MatchString(c.StringValue()) {
				return true, nil
			}
		}
		return false, nil
	case "$size":
		for _, v := range vals {
			if v.Kind() == document.KindArray && int64(len(v.ArrayValue())) == p.Value.IntValue() {
				return true, nil
			}
		}
		return false, nil
	case "$all":
		if len(p.Values) == 0 {
			return false, nil
		}
		cs := candidates(vals)
		for _, want := range p.Values {
			if !containsValue(cs, want) {
				return false, nil
			}
		}
		return true, nil
	case "$elemMatch":
		return p.elemMatch(vals)
	case "$mod":
		div, rem := p.Values[0].IntValue(), p.Values[1].IntValue()
		for _, c := range candidates(vals) {
			if c.IsNumber() && !math.IsNaN(c.FloatValue()) && c.IntValue()%div == rem {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (p *Predicate) eq(vals []document.Value, missing bool) bool {
	if missing {
		return p.Value.IsNull()
	}
	return containsValue(candidates(vals), p.Value)
}

func (p *Predicate) in(vals []document.Value, missing bool) bool {
	if missing {
		return containsValue(p.Values, document.Null())
	}
	for _, c := range candidates(vals) {
		if containsValue(p.Values, c) {
			return true
		}
	}
	return false
}

func (p *Predicate) kindMatches(k document.Kind) bool {
	if p.numeric && (k == document.KindInt || k == document.KindFloat) {
		return true
	}
	for _, want := range p.kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (p *Predicate) elemMatch(vals []document.Value) (bool, error) {
	for _, v := range vals {
		if v.Kind() != document.KindArray {
			continue
		}
		for _, e := range v.ArrayValue() {
			ok, err := p.elemMatches(e)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (p *Predicate) elemMatches(e document.Value) (bool, error) {
	if p.elemDoc != nil {
		if e.Kind() != document.KindDocument {
			return false, nil
		}
		return p.elemDoc.Match(e.DocumentValue())
	}
	for _, op := range p.elemOps {
		ok, err := op.matchValues([]document.Value{e})
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func containsValue(vals []document.Value, want document.Value) bool {
	for _, v := range vals {
		if document.Equal(v, want) {
			return true
		}
	}
	return false
}

// Intervals returns the index bounds of the predicate and whether it can be
// answered by an ordered index at all.
func (p *Predicate) Intervals() ([]Interval, bool) {
	switch p.Op {
	case "$eq":
		if p.Value.Kind() == document.KindArray {
			return nil, false
		}
		return []Interval{PointInterval(p.Value)}, true
	case "$in":
		for _, v := range p.Values {
			if v.Kind() == document.KindArray {
				return nil, false
			}
		}
		return pointSet(p.Values), true
	case "$gt", "$gte", "$lt", "$lte":
		if p.Value.IsNull() {
			if p.Op == "$gte" || p.Op == "$lte" {
				return []Interval{PointInterval(p.Value)}, true
			}
			return []Interval{}, true
		}
		return []Interval{p.interval}, true
	}
	return nil, false
}

// Within matches documents whose point (or any of whose points) lies in a region.
type Within struct {
	Path   string
	Region geo.Region
}

// Match implements Node.
func (w *Within) Match(d *document.Document) (bool, error) {
	for _, v := range d.Resolve(w.Path) {
		if pg, ok := document.AsPolygon(v); ok {
			all := true
			for _, vert := range pg.Rings[0] {
				if !w.Region.Contains(vert) {
					all = false
					break
				}
			}
			if all {
				return true, nil
			}
			continue
		}
		for _, pt := range Points(v) {
			if w.Region.Contains(pt) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Near matches documents within a distance band of a point. Distances are meters.
type Near struct {
	Path        string
	Center      geo.Point
	MinDistance float64
	MaxDistance float64
	Spherical   bool
}

// Distance returns the smallest distance in meters from the center to any
// point at the path.
func (n *Near) Distance(d *document.Document) (float64, bool) {
	best, found := math.Inf(1), false
	for _, v := range d.Resolve(n.Path) {
		for _, pt := range Points(v) {
			if dist := geo.DistanceMeters(n.Center, pt); dist < best {
				best, found = dist, true
			}
		}
	}
	return best, found
}

// InBand reports whether a distance falls within the min and max distance.
func (n *Near) InBand(dist float64) bool {
	return dist >= n.MinDistance && dist <= n.MaxDistance
}

// Match implements Node.
func (n *Near) Match(d *document.Document) (bool, error) {
	dist, ok := n.Distance(d)
	return ok && n.InBand(dist), nil
}

// Points extracts every point from a value: a single point in any accepted
// form or an array of them.
func Points(v document.Value) []geo.Point {
	if p, ok := document.AsPoint(v); ok {
		return []geo.Point{p}
	}
	if v.Kind() != document.KindArray {
		return nil
	}
	var out []geo.Point
	for _, e := range v.ArrayValue() {
		if p, ok := document.AsPoint(e); ok {
			out = append(out, p)
		}
	}
	return out
}

// Text is a full-text search predicate. Matching is decided by the text
// index, which attaches a score to every hit.
type Text struct {
	Search string
	Terms  []string
}

// Match implements Node.
func (t *Text) Match(d *document.Document) (bool, error) {
	_, ok := d.TextScore()
	return ok, nil
}

// Tokenize lower-cases text and splits it into alphanumeric terms.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Expr evaluates an aggregation expression against the document.
type Expr struct {
	Expr expr.Expression
}

// Match implements Node.
func (e Expr) Match(d *document.Document) (bool, error) {
	v, err := e.Expr.Eval(expr.NewScope(d))
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Paths returns every field path referenced by the node tree, in order of
// appearance and without duplicates.
func Paths(n Node) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Node)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	walk = func(n Node) {
		switch t := n.(type) {
		case And:
			for _, c := range t.Children {
				walk(c)
			}
		case Or:
			for _, c := range t.Children {
				walk(c)
			}
		case Nor:
			for _, c := range t.Children {
				walk(c)
			}
		case Not:
			add(t.Path)
		case *Predicate:
			add(t.Path)
		case *Within:
			add(t.Path)
		case *Near:
			add(t.Path)
		}
	}
	walk(n)
	return out
}
