// Package planner chooses how a query reads a collection: a full scan, an
// ordered index scan, or a geo or text lookup.
//
// Planning is deterministic and does not depend on the plan cache. Candidate ordered indexes are scored by how many
// leading key fields the top-level AND-ed predicates constrain; the highest
// score wins and ties go to the index created first. Whatever the plan, the
// caller re-applies the whole filter to every fetched document.
package planner

import (
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/domain/query/order"
	"github.com/kailas-cloud/docdex/internal/index"
	"github.com/kailas-cloud/docdex/internal/store"
)

// DefaultCacheSize is the plan cache capacity when none is configured.
const DefaultCacheSize = 256

// Planner plans queries for one collection. It shares the collection lock
// of its caller.
type Planner struct {
	collection string
	indexes    *index.Manager
	cache      *lru.Cache[string, string]
}

// New creates a planner over the collection's indexes.
func New(collection string, indexes *index.Manager, cacheSize int) *Planner {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &Planner{collection: collection, indexes: indexes, cache: cache}
}

// Purge drops every cached plan. Index creation and removal call it.
func (p *Planner) Purge() { p.cache.Purge() }

// CacheLen returns the number of cached plans.
func (p *Planner) CacheLen() int { return p.cache.Len() }

// Plan chooses an access path for the filter, sort and projection.
func (p *Planner) Plan(f *filter.Filter, s order.Sort, projection *document.Document) (*Plan, error) {
	if f == nil {
		f = filter.MatchAll()
	}
	if t := f.Text(); t != nil {
		ti, ok := p.indexes.TextIndex()
		if !ok {
			return nil, fmt.Errorf("$text on %q: %w", p.collection, domain.ErrMissingIndex)
		}
		return &Plan{Kind: KindText, Index: ti.Spec().Name(), Score: 1, text: t}, nil
	}
	if n := f.Near(); n != nil {
		g, ok := p.indexes.GeoIndex(n.Path)
		if !ok {
			return nil, fmt.Errorf("$near on %q path %q: %w", p.collection, n.Path, domain.ErrMissingIndex)
		}
		return &Plan{Kind: KindGeoNear, Index: g.Spec().Name(), Score: 1, near: n}, nil
	}
	if f.IsEmpty() || f.HasTopLevelOr() {
		return &Plan{Kind: KindCollScan}, nil
	}
	for _, c := range f.Conjuncts() {
		if w, ok := c.(*filter.Within); ok {
			if g, ok := p.indexes.GeoIndex(w.Path); ok {
				return &Plan{Kind: KindGeoWithin, Index: g.Spec().Name(), Score: 1, within: w}, nil
			}
		}
	}

	var best *Plan
	for _, e := range p.indexes.Entries() {
		plan, ok := p.indexPlan(e, f, s, projection)
		if !ok {
			continue
		}
		if best == nil || plan.Score > best.Score {
			best = plan
		}
	}
	if best == nil {
		best = &Plan{Kind: KindCollScan}
	}

	// The cached choice for a shape is a hint. It is reported only when
	// fresh scoring agrees with it.
	key := f.Shape() + "|" + s.String()
	if name, ok := p.cache.Get(key); ok && name == best.Index {
		best.Cached = true
		return best, nil
	}
	p.cache.Add(key, best.Index)
	return best, nil
}

// preds groups the indexable top-level predicates by path.
func preds(f *filter.Filter) map[string][]*filter.Predicate {
	out := make(map[string][]*filter.Predicate)
	for _, c := range f.Conjuncts() {
		if pr, ok := c.(*filter.Predicate); ok {
			if _, ok := pr.Intervals(); ok {
				out[pr.Path] = append(out[pr.Path], pr)
			}
		}
	}
	return out
}

// indexPlan builds an IXSCAN plan over e, or reports that e is no candidate.
func (p *Planner) indexPlan(e *index.Entry, f *filter.Filter, s order.Sort, projection *document.Document) (*Plan, bool) {
	o, ok := e.Index.(*index.Ordered)
	if !ok {
		return nil, false
	}
	spec := e.Spec()
	byPath := preds(f)

	var bounds index.Bounds
	for _, path := range spec.Paths() {
		ivs, ok := fieldBounds(byPath[path], o.Multikey())
		if !ok {
			break
		}
		bounds = append(bounds, ivs)
	}
	if len(bounds) == 0 {
		return nil, false
	}
	if spec.Sparse() && !excludesMissing(f, spec.Paths()) {
		return nil, false
	}
	if e.Partial != nil && !implies(f, e.Partial) {
		return nil, false
	}

	plan := &Plan{
		Kind:       KindIndexScan,
		Index:      spec.Name(),
		Score:      len(bounds),
		keyBounds:  bounds,
		boundPaths: spec.Paths()[:len(bounds)],
	}
	plan.Bounds = renderBounds(plan.boundPaths, bounds)
	plan.SortSatisfied, plan.Reverse = satisfiesSort(o, s)
	plan.Covered = covered(o, projection)
	return plan, true
}

// fieldBounds intersects every predicate on one path. Multikey indexes take
// the first predicate only, since different elements may satisfy each bound.
func fieldBounds(ps []*filter.Predicate, multikey bool) ([]filter.Interval, bool) {
	if len(ps) == 0 {
		return nil, false
	}
	out, _ := ps[0].Intervals()
	if multikey {
		return out, true
	}
	for _, pr := range ps[1:] {
		ivs, _ := pr.Intervals()
		out = filter.IntersectSets(out, ivs)
	}
	return out, true
}

// excludesMissing reports whether some conjunct over the index paths rejects
// a document that lacks every indexed field.
func excludesMissing(f *filter.Filter, paths []string) bool {
	for _, c := range f.Conjuncts() {
		cp := filter.Paths(c)
		if len(cp) == 0 {
			continue
		}
		inIndex := true
		for _, path := range cp {
			if !slices.Contains(paths, path) {
				inIndex = false
				break
			}
		}
		if inIndex && !filter.MatchesMissing(c) {
			return true
		}
	}
	return false
}

// implies reports whether every document matching f also matches the partial
// filter. Only interval predicates and $exists: true are reasoned about.
func implies(f *filter.Filter, partial *filter.Filter) bool {
	byPath := preds(f)
	for _, c := range partial.Conjuncts() {
		pc, ok := c.(*filter.Predicate)
		if !ok {
			return false
		}
		if pc.Op == "$exists" {
			if !pc.Value.Truthy() || !excludesMissing(f, []string{pc.Path}) {
				return false
			}
			continue
		}
		want, ok := pc.Intervals()
		if !ok {
			return false
		}
		have, ok := fieldBounds(byPath[pc.Path], false)
		if !ok {
			return false
		}
		for _, iv := range have {
			if !slices.ContainsFunc(want, iv.Within) {
				return false
			}
		}
	}
	return true
}

// satisfiesSort reports whether scanning the index yields the sort order,
// and whether the scan must run backwards.
func satisfiesSort(o *index.Ordered, s order.Sort) (ok, reverse bool) {
	keys := o.Spec().Keys()
	if len(s) == 0 || len(s) > len(keys) || o.Multikey() || s.HasTextScore() {
		return false, false
	}
	same, flipped := true, true
	for i, k := range s {
		if keys[i].Path != k.Path {
			return false, false
		}
		if keys[i].Direction() == k.Direction() {
			flipped = false
		} else {
			same = false
		}
	}
	switch {
	case same:
		return true, false
	case flipped:
		return true, true
	}
	return false, false
}

// covered reports whether an inclusion projection reads only index keys.
func covered(o *index.Ordered, projection *document.Document) bool {
	if projection == nil || projection.Len() == 0 || o.Multikey() {
		return false
	}
	paths := o.Spec().Paths()
	idExcluded := false
	for _, f := range projection.Fields() {
		v := f.Value
		if f.Key == document.IDField && (v.Kind() == document.KindBool || v.IsNumber()) && !v.Truthy() {
			idExcluded = true
			continue
		}
		if !(v.Kind() == document.KindBool || v.IsNumber()) || !v.Truthy() {
			return false
		}
		if !slices.Contains(paths, f.Key) {
			return false
		}
	}
	return idExcluded || slices.Contains(paths, document.IDField)
}

// Candidate is one row produced by a plan, with its distance (GEO_NEAR) or
// relevance score (TEXT).
type Candidate struct {
	Row      store.RowID
	Distance float64
	Score    float64
}

// Candidates lists the rows a plan reads, in plan order: insertion order for
// scans, geo and text lookups, key order for index scans and distance order
// for proximity lookups.
func (p *Planner) Candidates(plan *Plan, st *store.Store) []Candidate {
	switch plan.Kind {
	case KindIndexScan:
		e, ok := p.indexes.Get(plan.Index)
		if !ok {
			break
		}
		rows := e.Index.(*index.Ordered).Scan(plan.keyBounds, plan.Reverse)
		return rowCandidates(rows)
	case KindGeoWithin:
		g, ok := p.indexes.GeoIndex(plan.within.Path)
		if !ok {
			break
		}
		return rowCandidates(g.Within(plan.within.Region).ToArray())
	case KindGeoNear:
		g, ok := p.indexes.GeoIndex(plan.near.Path)
		if !ok {
			break
		}
		hits := g.Near(plan.near.Center, plan.near.MinDistance, plan.near.MaxDistance)
		out := make([]Candidate, len(hits))
		for i, h := range hits {
			out[i] = Candidate{Row: h.Row, Distance: h.Distance}
		}
		return out
	case KindText:
		ti, ok := p.indexes.TextIndex()
		if !ok {
			break
		}
		scores := ti.Search(plan.text.Terms)
		rows := make([]store.RowID, 0, len(scores))
		for r := range scores {
			rows = append(rows, r)
		}
		slices.Sort(rows)
		out := make([]Candidate, len(rows))
		for i, r := range rows {
			out[i] = Candidate{Row: r, Score: scores[r]}
		}
		return out
	}
	return rowCandidates(st.Rows().ToArray())
}

func rowCandidates(rows []store.RowID) []Candidate {
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{Row: r}
	}
	return out
}
