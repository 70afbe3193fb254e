package catalog

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/index"
	"github.com/kailas-cloud/docdex/internal/planner"
	"github.com/kailas-cloud/docdex/internal/store"
)

// Aggregate runs a decoded pipeline over a collection. A missing collection
// is read as empty.
func (db *Database) Aggregate(ctx context.Context, name string, p *aggregation.Pipeline) aggregation.Stream {
	return p.Run(ctx, pipelineEnv{db: db}, name, aggregation.Options{BatchSize: db.opts.BatchSize})
}

// pipelineEnv exposes the database to pipeline stages.
type pipelineEnv struct {
	db *Database
}

var _ aggregation.Env = pipelineEnv{}

func empty(func(*document.Document, error) bool) {}

func (e pipelineEnv) Find(ctx context.Context, name string, f *filter.Filter) aggregation.Stream {
	c, err := e.db.lockRead(name)
	if err != nil {
		return empty
	}
	p, err := c.plan(f, nil, nil)
	if err != nil {
		c.mu.RUnlock()
		return func(yield func(*document.Document, error) bool) { yield(nil, err) }
	}
	cands := c.planner.Candidates(p, c.store)
	c.mu.RUnlock()

	hits := c.fetch(ctx, cands, p.Kind == planner.KindText, f)
	return func(yield func(*document.Document, error) bool) {
		for h, err := range hits {
			if !yield(h.doc, err) || err != nil {
				return
			}
		}
	}
}

func (e pipelineEnv) GeoNear(ctx context.Context, name string, q aggregation.GeoNearQuery) iter.Seq2[aggregation.GeoHit, error] {
	return func(yield func(aggregation.GeoHit, error) bool) {
		c, err := e.db.lockRead(name)
		if err != nil {
			return
		}
		g, err := c.geoIndex(q.Key)
		if err != nil {
			c.mu.RUnlock()
			yield(aggregation.GeoHit{}, err)
			return
		}
		near := g.Near(q.Near, q.MinDistance, q.MaxDistance)
		c.mu.RUnlock()

		cands := make([]planner.Candidate, len(near))
		for i, h := range near {
			cands[i] = planner.Candidate{Row: h.Row, Distance: h.Distance}
		}
		for h, err := range c.fetch(ctx, cands, false, q.Query) {
			if err != nil {
				yield(aggregation.GeoHit{}, err)
				return
			}
			if !yield(aggregation.GeoHit{Doc: h.doc, Distance: h.cand.Distance, Key: g.Path()}, nil) {
				return
			}
		}
	}
}

// geoIndex picks the 2dsphere index on key, or the only one when key is
// empty. Callers hold mu.
func (c *coll) geoIndex(key string) (*index.Geo, error) {
	if key != "" {
		g, ok := c.indexes.GeoIndex(key)
		if !ok {
			return nil, fmt.Errorf("$geoNear on %q key %q: %w", c.name, key, domain.ErrMissingIndex)
		}
		return g, nil
	}
	all := c.indexes.GeoIndexes()
	switch len(all) {
	case 0:
		return nil, fmt.Errorf("$geoNear on %q: %w", c.name, domain.ErrMissingIndex)
	case 1:
		return all[0], nil
	}
	return nil, fmt.Errorf("$geoNear on %q needs key with %d 2dsphere indexes: %w",
		c.name, len(all), domain.ErrInvalidStageSpec)
}

// ReplaceAll replaces the contents of a collection in one unit, keeping its
// indexes. A missing collection is created.
func (e pipelineEnv) ReplaceAll(ctx context.Context, name string, docs []*document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := e.db.lockWriteOrCreate(ctx, name)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	var (
		u  undoLog
		cs changeSet
	)
	for _, row := range c.store.Rows().ToArray() {
		c.deleteRow(row, &u, &cs)
	}
	for _, d := range docs {
		prepared, err := prepareInsert(d)
		if err == nil {
			_, err = c.insertDoc(prepared, &u, &cs)
		}
		if err != nil {
			u.rollback()
			return err
		}
	}
	evicted := c.evict(&u, &cs)
	if err := c.commit(ctx, &u, &cs); err != nil {
		return err
	}
	if evicted > 0 {
		e.db.opts.Observer.Evicted(name, evicted)
	}
	return nil
}

// Merge upserts documents into a collection in one unit. A missing
// collection is created.
func (e pipelineEnv) Merge(ctx context.Context, name string, docs []*document.Document, opts aggregation.MergeOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := e.db.lockWriteOrCreate(ctx, name)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	var (
		u  undoLog
		cs changeSet
	)
	for _, d := range docs {
		if err := c.mergeOne(ctx, d, opts, &u, &cs); err != nil {
			u.rollback()
			return err
		}
	}
	evicted := c.evict(&u, &cs)
	if err := c.commit(ctx, &u, &cs); err != nil {
		return err
	}
	if evicted > 0 {
		e.db.opts.Observer.Evicted(name, evicted)
	}
	return nil
}

func (c *coll) mergeOne(ctx context.Context, d *document.Document, opts aggregation.MergeOptions, u *undoLog, cs *changeSet) error {
	row, old, found, err := c.mergeTarget(ctx, d, opts.On)
	if err != nil {
		return err
	}
	if !found {
		switch opts.WhenNotMatched {
		case aggregation.WhenNotMatchedDiscard:
			return nil
		case aggregation.WhenNotMatchedFail:
			return fmt.Errorf("$merge into %q: no document matches %s: %w",
				c.name, strings.Join(opts.On, ","), domain.ErrDocumentNotFound)
		}
		prepared, err := prepareInsert(d)
		if err != nil {
			return err
		}
		_, err = c.insertDoc(prepared, u, cs)
		return err
	}

	var updated *document.Document
	switch opts.WhenMatched {
	case aggregation.WhenMatchedKeepExisting:
		return nil
	case aggregation.WhenMatchedFail:
		return &domain.DuplicateKeyError{
			Collection: c.name,
			Index:      strings.Join(opts.On, ","),
			Key:        old.IDKey(),
			ExistingID: old.IDKey(),
		}
	case aggregation.WhenMatchedReplace:
		updated = d.Clone()
	default:
		updated = old.Clone()
		for _, f := range d.Fields() {
			if f.Key != document.IDField {
				updated.Set(f.Key, f.Value.Clone())
			}
		}
	}
	id, _ := old.ID()
	updated.Delete(document.IDField)
	updated.Prepend(document.IDField, id)
	if updated.Equal(old) {
		return nil
	}
	return c.replaceDoc(row, old, updated, u, cs)
}

// mergeTarget finds the document d merges into by the on fields.
func (c *coll) mergeTarget(ctx context.Context, d *document.Document, on []string) (store.RowID, *document.Document, bool, error) {
	if len(on) == 1 && on[0] == document.IDField {
		id, ok := d.ID()
		if !ok {
			return 0, nil, false, nil
		}
		row, old, found := c.byID(id)
		return row, old, found, nil
	}
	cond := document.New()
	for _, path := range on {
		v, ok := d.Lookup(path)
		if !ok {
			return 0, nil, false, fmt.Errorf("$merge on field %q is missing: %w", path, domain.ErrInvalidStageSpec)
		}
		cond.Set(path, document.Doc(document.FromFields(document.Field{Key: "$eq", Value: v})))
	}
	f, err := filter.Parse(cond)
	if err != nil {
		return 0, nil, false, err
	}
	rows, err := c.matching(ctx, f, 1)
	if err != nil || len(rows) == 0 {
		return 0, nil, false, err
	}
	old, ok := c.store.Get(rows[0])
	return rows[0], old, ok, nil
}

func (e pipelineEnv) Rand() *rand.Rand { return e.db.Rand() }
