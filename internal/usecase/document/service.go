package document

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/document/patch"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/planner"
	"github.com/kailas-cloud/docdex/internal/usecase/observe"
)

// Service handles document writes and queries.
type Service struct {
	db Catalog
}

// New creates a document service.
func New(db Catalog) *Service {
	return &Service{db: db}
}

// Insert stores one document and returns its _id. A missing collection is
// created.
func (s *Service) Insert(ctx context.Context, name string, d *domdoc.Document) (id domdoc.Value, err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "insert", start, err) }(time.Now())

	id, err = s.db.InsertOne(ctx, name, d)
	if err != nil {
		return domdoc.Null(), fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// InsertMany stores documents in order and stops at the first failure.
// Results cover every input; the error is the first failure.
func (s *Service) InsertMany(ctx context.Context, name string, docs []*domdoc.Document) (res []batch.Result, err error) {
	defer func(start time.Time) {
		observe.Op(ctx, name, "insert_many", start, err,
			zap.Int("documents", len(docs)),
			zap.Int("inserted", len(batch.InsertedIDs(res))),
		)
	}(time.Now())

	res, err = s.db.InsertMany(ctx, name, docs)
	if err != nil {
		return res, fmt.Errorf("insert documents: %w", err)
	}
	return res, nil
}

// UpdateByID applies an update document (operators or replacement) to one
// document.
func (s *Service) UpdateByID(ctx context.Context, name string, id domdoc.Value, update *domdoc.Document) (err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "update_by_id", start, err) }(time.Now())

	p, err := patch.Parse(update)
	if err != nil {
		return fmt.Errorf("parse update: %w", err)
	}
	if err := s.db.UpdateByID(ctx, name, id, p); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Update applies an update to the first (many=false) or every matching
// document.
func (s *Service) Update(
	ctx context.Context, name string, filterDoc, update *domdoc.Document, many bool,
) (res catalog.UpdateResult, err error) {
	op := "update_one"
	if many {
		op = "update_many"
	}
	defer func(start time.Time) {
		observe.Op(ctx, name, op, start, err, zap.Int("matched", res.Matched), zap.Int("modified", res.Modified))
	}(time.Now())

	f, err := filter.Parse(filterDoc)
	if err != nil {
		return catalog.UpdateResult{}, fmt.Errorf("parse filter: %w", err)
	}
	p, err := patch.Parse(update)
	if err != nil {
		return catalog.UpdateResult{}, fmt.Errorf("parse update: %w", err)
	}
	res, err = s.db.Update(ctx, name, f, p, many)
	if err != nil {
		return catalog.UpdateResult{}, fmt.Errorf("update documents: %w", err)
	}
	return res, nil
}

// Replace replaces the first matching document, keeping its _id.
func (s *Service) Replace(
	ctx context.Context, name string, filterDoc, replacement *domdoc.Document,
) (res catalog.UpdateResult, err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "replace_one", start, err) }(time.Now())

	f, err := filter.Parse(filterDoc)
	if err != nil {
		return catalog.UpdateResult{}, fmt.Errorf("parse filter: %w", err)
	}
	res, err = s.db.ReplaceOne(ctx, name, f, replacement)
	if err != nil {
		return catalog.UpdateResult{}, fmt.Errorf("replace document: %w", err)
	}
	return res, nil
}

// DeleteByID removes one document. Deleting an absent id is not an error.
func (s *Service) DeleteByID(ctx context.Context, name string, id domdoc.Value) (deleted bool, err error) {
	defer func(start time.Time) {
		observe.Op(ctx, name, "delete_by_id", start, err, zap.Bool("deleted", deleted))
	}(time.Now())

	deleted, err = s.db.DeleteByID(ctx, name, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return deleted, nil
}

// Delete removes the first (many=false) or every matching document.
func (s *Service) Delete(ctx context.Context, name string, filterDoc *domdoc.Document, many bool) (n int, err error) {
	op := "delete_one"
	if many {
		op = "delete_many"
	}
	defer func(start time.Time) { observe.Op(ctx, name, op, start, err, zap.Int("deleted", n)) }(time.Now())

	f, err := filter.Parse(filterDoc)
	if err != nil {
		return 0, fmt.Errorf("parse filter: %w", err)
	}
	n, err = s.db.Delete(ctx, name, f, many)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return n, nil
}

// Get returns a copy of one document by _id.
func (s *Service) Get(ctx context.Context, name string, id domdoc.Value) (*domdoc.Document, error) {
	d, err := s.db.FindByID(ctx, name, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// Find plans a query and returns its lazy result stream.
func (s *Service) Find(ctx context.Context, name string, req FindRequest) (_ aggregation.Stream, err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "find", start, err) }(time.Now())

	q, err := req.query()
	if err != nil {
		return nil, err
	}
	stream, err := s.db.Find(ctx, name, q)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return stream, nil
}

// Count returns how many documents match filterDoc.
func (s *Service) Count(ctx context.Context, name string, filterDoc *domdoc.Document) (n int, err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "count", start, err) }(time.Now())

	f, err := filter.Parse(filterDoc)
	if err != nil {
		return 0, fmt.Errorf("parse filter: %w", err)
	}
	n, err = s.db.Count(ctx, name, f)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Explain returns the plan a find would use.
func (s *Service) Explain(ctx context.Context, name string, req FindRequest) (p *planner.Plan, err error) {
	defer func(start time.Time) {
		var fields []zap.Field
		if p != nil {
			fields = append(fields, zap.String("plan", string(p.Kind)))
		}
		observe.Op(ctx, name, "explain", start, err, fields...)
	}(time.Now())

	q, err := req.query()
	if err != nil {
		return nil, err
	}
	p, err = s.db.Explain(ctx, name, q)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	return p, nil
}
