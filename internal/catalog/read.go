package catalog

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/domain/query/order"
	"github.com/kailas-cloud/docdex/internal/planner"
	"github.com/kailas-cloud/docdex/internal/store"
)

// Query is a find request. Zero Skip and Limit mean none.
type Query struct {
	Filter     *filter.Filter
	Sort       order.Sort
	Projection *aggregation.Projection
	Skip       int
	Limit      int
}

func (q Query) projectionDocument() *document.Document {
	if q.Projection == nil {
		return nil
	}
	return q.Projection.Document()
}

// plan chooses the access path. Callers hold mu.
func (c *coll) plan(f *filter.Filter, s order.Sort, projection *document.Document) (*planner.Plan, error) {
	p, err := c.planner.Plan(f, s, projection)
	if err != nil {
		return nil, err
	}
	c.db.opts.Observer.Planned(c.name, p.Kind)
	return p, nil
}

type hit struct {
	doc  *document.Document
	cand planner.Candidate
}

// fetch resolves candidates to documents in batches, holding the read lock
// per batch, and keeps those matching f. Rows deleted after planning are
// skipped. Text candidates carry their score.
func (c *coll) fetch(ctx context.Context, cands []planner.Candidate, text bool, f *filter.Filter) iter.Seq2[hit, error] {
	return func(yield func(hit, error) bool) {
		size := c.db.opts.BatchSize
		buf := make([]hit, 0, min(size, len(cands)))
		for start := 0; start < len(cands); start += size {
			if err := ctx.Err(); err != nil {
				yield(hit{}, err)
				return
			}
			buf = buf[:0]
			c.mu.RLock()
			if c.dropped {
				c.mu.RUnlock()
				return
			}
			for _, cand := range cands[start:min(start+size, len(cands))] {
				d, ok := c.store.Get(cand.Row)
				if !ok {
					continue
				}
				if text {
					d = d.WithTextScore(cand.Score)
				}
				ok, err := f.Match(d)
				if err != nil {
					c.mu.RUnlock()
					yield(hit{}, err)
					return
				}
				if ok {
					buf = append(buf, hit{doc: d, cand: cand})
				}
			}
			c.mu.RUnlock()
			for _, h := range buf {
				if !yield(h, nil) {
					return
				}
			}
		}
	}
}

// matching lists the rows matching f in plan order, at most limit when
// limit is positive. Callers hold mu.
func (c *coll) matching(ctx context.Context, f *filter.Filter, limit int) ([]store.RowID, error) {
	p, err := c.plan(f, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []store.RowID
	for i, cand := range c.planner.Candidates(p, c.store) {
		if i%c.db.opts.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		d, ok := c.store.Get(cand.Row)
		if !ok {
			continue
		}
		if p.Kind == planner.KindText {
			d = d.WithTextScore(cand.Score)
		}
		ok, err := f.Match(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, cand.Row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Find streams the documents matching q. Planning errors are returned
// eagerly; the stream reads the collection batch by batch.
func (db *Database) Find(ctx context.Context, name string, q Query) (aggregation.Stream, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return nil, err
	}
	p, err := c.plan(q.Filter, q.Sort, q.projectionDocument())
	if err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	cands := c.planner.Candidates(p, c.store)
	c.mu.RUnlock()

	matched := c.fetch(ctx, cands, p.Kind == planner.KindText, q.Filter)
	return func(yield func(*document.Document, error) bool) {
		var src iter.Seq2[hit, error] = matched
		if len(q.Sort) > 0 && !p.SortSatisfied {
			var all []hit
			for h, err := range matched {
				if err != nil {
					yield(nil, err)
					return
				}
				all = append(all, h)
			}
			slices.SortStableFunc(all, func(a, b hit) int { return q.Sort.Compare(a.doc, b.doc) })
			src = func(yield func(hit, error) bool) {
				for _, h := range all {
					if !yield(h, nil) {
						return
					}
				}
			}
		}
		skipped, sent := 0, 0
		for h, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if skipped < q.Skip {
				skipped++
				continue
			}
			out := h.doc
			if q.Projection != nil {
				if out, err = q.Projection.Apply(h.doc); err != nil {
					yield(nil, err)
					return
				}
			} else {
				out = out.Clone()
			}
			if !yield(out, nil) {
				return
			}
			sent++
			if q.Limit > 0 && sent == q.Limit {
				return
			}
		}
	}, nil
}

// FindByID returns a copy of the document with the given _id.
func (db *Database) FindByID(_ context.Context, name string, id document.Value) (*document.Document, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()
	_, d, ok := c.byID(id)
	if !ok {
		return nil, fmt.Errorf("%s in %q: %w", describeID(id), name, domain.ErrDocumentNotFound)
	}
	return d.Clone(), nil
}

// Count returns how many documents match f.
func (db *Database) Count(ctx context.Context, name string, f *filter.Filter) (int, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return 0, err
	}
	defer c.mu.RUnlock()
	if f == nil || f.IsEmpty() {
		return c.store.Len(), nil
	}
	rows, err := c.matching(ctx, f, 0)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Explain returns the plan Find would use for q.
func (db *Database) Explain(_ context.Context, name string, q Query) (*planner.Plan, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()
	return c.planner.Plan(q.Filter, q.Sort, q.projectionDocument())
}

// IndexStats describes one index.
type IndexStats struct {
	Spec    indexspec.Spec
	Entries int
}

// Stats describes one collection.
type Stats struct {
	Collection collection.Collection
	Count      int
	Size       int64
	Indexes    []IndexStats
}

// Stats returns the statistics of a collection.
func (db *Database) Stats(name string) (Stats, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return Stats{}, err
	}
	defer c.mu.RUnlock()
	return c.stats(), nil
}

// AllStats returns the statistics of every collection ordered by name.
func (db *Database) AllStats() []Stats {
	names := db.ListCollections()
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		s, err := db.Stats(name)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (c *coll) stats() Stats {
	s := Stats{Collection: c.meta, Count: c.store.Len(), Size: c.store.Size()}
	for _, e := range c.indexes.Entries() {
		s.Indexes = append(s.Indexes, IndexStats{Spec: e.Spec(), Entries: e.Index.Len()})
	}
	return s
}
