package docdex

import (
	"context"
	"fmt"
	"time"

	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
)

// FindQuery is a find under construction. Encoding errors surface from the
// terminal call (All, First, Cursor or Explain).
type FindQuery struct {
	coll       *Collection
	filter     any
	sort       any
	projection any
	skip       int
	limit      int
}

// Sort orders results, e.g. D{{"age", -1}, {"name", 1}}. Use D, not M, when
// sorting by more than one key.
func (q *FindQuery) Sort(spec any) *FindQuery {
	q.sort = spec
	return q
}

// Project shapes results with an inclusion or exclusion projection.
func (q *FindQuery) Project(spec any) *FindQuery {
	q.projection = spec
	return q
}

// Skip drops the first n results.
func (q *FindQuery) Skip(n int) *FindQuery {
	q.skip = n
	return q
}

// Limit caps the result count. Zero means unlimited.
func (q *FindQuery) Limit(n int) *FindQuery {
	q.limit = n
	return q
}

func (q *FindQuery) request() (documentuc.FindRequest, error) {
	req := documentuc.FindRequest{Skip: q.skip, Limit: q.limit}
	var err error
	for _, part := range []struct {
		name string
		src  any
		dst  **domdoc.Document
	}{
		{"filter", q.filter, &req.Filter},
		{"sort", q.sort, &req.Sort},
		{"projection", q.projection, &req.Projection},
	} {
		if *part.dst, err = toDocument(part.src); err != nil {
			return documentuc.FindRequest{}, fmt.Errorf("find %s: %w", part.name, err)
		}
	}
	return req, nil
}

// Cursor runs the query and returns a lazy cursor over the results.
func (q *FindQuery) Cursor(ctx context.Context) (_ *Cursor, err error) {
	start := time.Now()
	defer func() { q.coll.observe("find", start, err) }()

	req, err := q.request()
	if err != nil {
		return nil, err
	}
	stream, err := q.coll.db.docSvc.Find(ctx, q.coll.name, req)
	if err != nil {
		return nil, err
	}
	return newCursor(stream), nil
}

// All runs the query and returns every result.
func (q *FindQuery) All(ctx context.Context) ([]D, error) {
	cur, err := q.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	return cur.All()
}

// First returns the first result or ErrDocumentNotFound.
func (q *FindQuery) First(ctx context.Context) (D, error) {
	prev := q.limit
	q.limit = 1
	cur, err := q.Cursor(ctx)
	q.limit = prev
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	if !cur.Next() {
		if err := cur.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("find first in %q: %w", q.coll.name, ErrDocumentNotFound)
	}
	return cur.Document(), nil
}

// Explain reports the access path the query would use without running it.
func (q *FindQuery) Explain(ctx context.Context) (_ Plan, err error) {
	start := time.Now()
	defer func() { q.coll.observe("explain", start, err) }()

	req, err := q.request()
	if err != nil {
		return Plan{}, err
	}
	p, err := q.coll.db.docSvc.Explain(ctx, q.coll.name, req)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Kind:          string(p.Kind),
		Index:         p.Index,
		Bounds:        p.Bounds,
		SortSatisfied: p.SortSatisfied,
		Reverse:       p.Reverse,
		Covered:       p.Covered,
		Score:         p.Score,
		Cached:        p.Cached,
	}, nil
}
