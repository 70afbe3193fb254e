package docdex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain/batch"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
)

// Collection is a handle to a named collection. Handles are cheap and safe
// for concurrent use.
//
// Documents, filters and updates accept D, M, structs with docdex tags, or
// any other value that encodes to a document.
type Collection struct {
	name string
	db   *Database
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Database returns the parent database.
func (c *Collection) Database() *Database { return c.db }

func (c *Collection) observe(op string, start time.Time, err error) {
	c.db.obs.observe(c.name, "collection."+op, start, err)
}

func (c *Collection) written(op string, n int) {
	c.db.obs.written(c.name, "collection."+op, n)
}

// InsertOne stores a document and returns its _id. A missing _id is
// generated.
func (c *Collection) InsertOne(ctx context.Context, doc any) (_ any, err error) {
	start := time.Now()
	defer func() { c.observe("insert_one", start, err) }()

	d, err := toDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("insert: document is required: %w", ErrInvalidSpec)
	}
	id, err := c.db.docSvc.Insert(ctx, c.name, d)
	if err != nil {
		return nil, err
	}
	c.written("insert_one", 1)
	return fromValue(id), nil
}

// InsertMany stores documents in order and stops at the first failure. The
// result lists the ids stored before the failure.
func (c *Collection) InsertMany(ctx context.Context, docs any) (_ InsertManyResult, err error) {
	start := time.Now()
	defer func() { c.observe("insert_many", start, err) }()

	ds, err := toDocuments(docs)
	if err != nil {
		return InsertManyResult{}, fmt.Errorf("insert documents: %w", err)
	}
	res, err := c.db.docSvc.InsertMany(ctx, c.name, ds)
	ids := batch.InsertedIDs(res)
	c.written("insert_many", len(ids))
	out := InsertManyResult{InsertedIDs: make([]any, len(ids))}
	for i, id := range ids {
		out.InsertedIDs[i] = fromValue(id)
	}
	return out, err
}

// UpdateByID applies an update (operator document or replacement) to the
// document with the given _id.
func (c *Collection) UpdateByID(ctx context.Context, id, update any) (err error) {
	start := time.Now()
	defer func() { c.observe("update_by_id", start, err) }()

	idv, err := toValue(id)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	u, err := toDocument(update)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if err := c.db.docSvc.UpdateByID(ctx, c.name, idv, u); err != nil {
		return err
	}
	c.written("update_by_id", 1)
	return nil
}

// UpdateOne updates the first document matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, update any) (UpdateResult, error) {
	return c.update(ctx, "update_one", filter, update, false)
}

// UpdateMany updates every document matching filter. Either every match is
// updated or none is.
func (c *Collection) UpdateMany(ctx context.Context, filter, update any) (UpdateResult, error) {
	return c.update(ctx, "update_many", filter, update, true)
}

func (c *Collection) update(ctx context.Context, op string, filter, update any, many bool) (_ UpdateResult, err error) {
	start := time.Now()
	defer func() { c.observe(op, start, err) }()

	f, err := toDocument(filter)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update filter: %w", err)
	}
	u, err := toDocument(update)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update: %w", err)
	}
	res, err := c.db.docSvc.Update(ctx, c.name, f, u, many)
	if err != nil {
		return UpdateResult{}, err
	}
	c.written(op, res.Modified)
	return UpdateResult{Matched: res.Matched, Modified: res.Modified}, nil
}

// ReplaceOne replaces the first document matching filter, keeping its _id.
func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement any) (_ UpdateResult, err error) {
	start := time.Now()
	defer func() { c.observe("replace_one", start, err) }()

	f, err := toDocument(filter)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("replace filter: %w", err)
	}
	r, err := toDocument(replacement)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("replace: %w", err)
	}
	if r == nil {
		return UpdateResult{}, fmt.Errorf("replace: document is required: %w", ErrInvalidSpec)
	}
	res, err := c.db.docSvc.Replace(ctx, c.name, f, r)
	if err != nil {
		return UpdateResult{}, err
	}
	c.written("replace_one", res.Modified)
	return UpdateResult{Matched: res.Matched, Modified: res.Modified}, nil
}

// DeleteByID removes the document with the given _id and reports whether
// it existed.
func (c *Collection) DeleteByID(ctx context.Context, id any) (_ bool, err error) {
	start := time.Now()
	defer func() { c.observe("delete_by_id", start, err) }()

	idv, err := toValue(id)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	deleted, err := c.db.docSvc.DeleteByID(ctx, c.name, idv)
	if deleted {
		c.written("delete_by_id", 1)
	}
	return deleted, err
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (int, error) {
	return c.delete(ctx, "delete_one", filter, false)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter any) (int, error) {
	return c.delete(ctx, "delete_many", filter, true)
}

func (c *Collection) delete(ctx context.Context, op string, filter any, many bool) (_ int, err error) {
	start := time.Now()
	defer func() { c.observe(op, start, err) }()

	f, err := toDocument(filter)
	if err != nil {
		return 0, fmt.Errorf("delete filter: %w", err)
	}
	n, err := c.db.docSvc.Delete(ctx, c.name, f, many)
	c.written(op, n)
	return n, err
}

// FindByID returns the document with the given _id or ErrDocumentNotFound.
func (c *Collection) FindByID(ctx context.Context, id any) (_ D, err error) {
	start := time.Now()
	defer func() { c.observe("find_by_id", start, err) }()

	idv, err := toValue(id)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	d, err := c.db.docSvc.Get(ctx, c.name, idv)
	if err != nil {
		return nil, err
	}
	return fromDocument(d), nil
}

// Find starts a query. A nil filter matches every document.
func (c *Collection) Find(filter any) *FindQuery {
	return &FindQuery{coll: c, filter: filter}
}

// Count returns the number of documents matching filter.
func (c *Collection) Count(ctx context.Context, filter any) (_ int, err error) {
	start := time.Now()
	defer func() { c.observe("count", start, err) }()

	f, err := toDocument(filter)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return c.db.docSvc.Count(ctx, c.name, f)
}

// CreateIndex builds an index over keys, e.g. D{{"age", 1}} or
// D{{"loc", "2dsphere"}}, and returns its name. Creating an equivalent
// index again is a no-op.
func (c *Collection) CreateIndex(ctx context.Context, keys any, opts ...IndexOption) (_ string, err error) {
	start := time.Now()
	defer func() { c.observe("create_index", start, err) }()

	cfg := &indexConfig{}
	for _, o := range opts {
		o(cfg)
	}
	k, err := toDocument(keys)
	if err != nil {
		return "", fmt.Errorf("create index: %w", err)
	}
	partial, err := toDocument(cfg.partial)
	if err != nil {
		return "", fmt.Errorf("create index: partial filter: %w", err)
	}
	return c.db.idxSvc.Create(ctx, c.name, k, indexspec.Options{
		Name:    cfg.name,
		Unique:  cfg.unique,
		Sparse:  cfg.sparse,
		Partial: partial,
	})
}

// DropIndex removes an index by name. The _id index cannot be dropped.
func (c *Collection) DropIndex(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { c.observe("drop_index", start, err) }()

	return c.db.idxSvc.Drop(ctx, c.name, name)
}

// DropIndexes removes every index except _id.
func (c *Collection) DropIndexes(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.observe("drop_indexes", start, err) }()

	return c.db.idxSvc.DropAll(ctx, c.name)
}

// Indexes lists the indexes of the collection, _id first.
func (c *Collection) Indexes(ctx context.Context) ([]IndexInfo, error) {
	specs, err := c.db.idxSvc.List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	out := make([]IndexInfo, len(specs))
	for i, s := range specs {
		out[i] = fromInternalIndex(s)
	}
	return out, nil
}

// Aggregate runs a pipeline, a list of stage documents such as
// A{D{{"$match", M{"age": M{"$gte": 18}}}}}. Results are produced lazily.
func (c *Collection) Aggregate(ctx context.Context, pipeline any) (_ *Cursor, err error) {
	start := time.Now()
	defer func() { c.observe("aggregate", start, err) }()

	stages, err := toDocuments(pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	stream, err := c.db.aggSvc.Run(ctx, c.name, stages)
	if err != nil {
		return nil, err
	}
	return newCursor(stream), nil
}
