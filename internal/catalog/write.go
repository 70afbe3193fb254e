package catalog

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/document/patch"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/store"
)

// UpdateResult reports how many documents an update matched and changed.
type UpdateResult struct {
	Matched  int
	Modified int
}

// InsertOne stores d and returns its _id. A missing collection is created
// with default options.
func (db *Database) InsertOne(ctx context.Context, name string, d *document.Document) (document.Value, error) {
	d, err := prepareInsert(d)
	if err != nil {
		return document.Null(), err
	}
	c, err := db.lockWriteOrCreate(ctx, name)
	if err != nil {
		return document.Null(), err
	}
	defer c.mu.Unlock()
	if err := c.insertUnit(ctx, d); err != nil {
		return document.Null(), err
	}
	id, _ := d.ID()
	return id, nil
}

// insertUnit inserts one document with capped eviction as one write unit.
func (c *coll) insertUnit(ctx context.Context, d *document.Document) error {
	var (
		u  undoLog
		cs changeSet
	)
	if _, err := c.insertDoc(d, &u, &cs); err != nil {
		return err
	}
	evicted := c.evict(&u, &cs)
	if err := c.commit(ctx, &u, &cs); err != nil {
		return err
	}
	if evicted > 0 {
		c.db.opts.Observer.Evicted(c.name, evicted)
	}
	return nil
}

// InsertMany inserts docs in order, each as its own write unit. It stops at
// the first failure; later items are reported as skipped. The returned error
// is the first failure.
func (db *Database) InsertMany(ctx context.Context, name string, docs []*document.Document) ([]batch.Result, error) {
	results := make([]batch.Result, len(docs))
	prepared := make([]*document.Document, len(docs))
	failed := -1
	for i, d := range docs {
		var err error
		if prepared[i], err = prepareInsert(d); err != nil {
			results[i] = batch.NewError(i, idOf(d), err)
			failed = i
			break
		}
	}

	c, err := db.lockWriteOrCreate(ctx, name)
	if err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	for i, d := range prepared {
		switch {
		case failed >= 0 && i == failed:
			continue
		case failed >= 0 && i > failed:
			results[i] = batch.NewSkipped(i)
			continue
		}
		if err := ctx.Err(); err != nil {
			results[i] = batch.NewError(i, idOf(d), err)
			failed = i
			continue
		}
		if err := c.insertUnit(ctx, d); err != nil {
			results[i] = batch.NewError(i, idOf(d), err)
			failed = i
			continue
		}
		results[i] = batch.NewOK(i, idOf(d))
	}
	return results, batch.FirstError(results)
}

// prepareInsert copies d and gives it an _id.
func prepareInsert(d *document.Document) (*document.Document, error) {
	if d == nil {
		return nil, fmt.Errorf("document is required: %w", domain.ErrInvalidSpec)
	}
	if err := document.ValidateKeys(d); err != nil {
		return nil, err
	}
	return store.EnsureID(d.Clone())
}

func idOf(d *document.Document) document.Value {
	if d == nil {
		return document.Null()
	}
	id, _ := d.ID()
	return id
}

// UpdateByID applies p to the document with the given _id.
func (db *Database) UpdateByID(ctx context.Context, name string, id document.Value, p patch.Patch) error {
	c, err := db.lockWrite(name)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()
	row, old, ok := c.byID(id)
	if !ok {
		return fmt.Errorf("%s in %q: %w", describeID(id), name, domain.ErrDocumentNotFound)
	}
	var (
		u  undoLog
		cs changeSet
	)
	if _, err := c.updateRow(row, old, p, &u, &cs); err != nil {
		return err
	}
	return c.commit(ctx, &u, &cs)
}

// Update applies p to the first matching document, or to every matching
// document when many is set. All matched documents change together or none
// does.
func (db *Database) Update(ctx context.Context, name string, f *filter.Filter, p patch.Patch, many bool) (UpdateResult, error) {
	c, err := db.lockWrite(name)
	if err != nil {
		return UpdateResult{}, err
	}
	defer c.mu.Unlock()

	limit := 1
	if many {
		limit = 0
	}
	rows, err := c.matching(ctx, f, limit)
	if err != nil {
		return UpdateResult{}, err
	}
	var (
		u   undoLog
		cs  changeSet
		res UpdateResult
	)
	for _, row := range rows {
		old, ok := c.store.Get(row)
		if !ok {
			continue
		}
		res.Matched++
		changed, err := c.updateRow(row, old, p, &u, &cs)
		if err != nil {
			u.rollback()
			return UpdateResult{}, err
		}
		if changed {
			res.Modified++
		}
	}
	if err := c.commit(ctx, &u, &cs); err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

// ReplaceOne replaces the first document matching f. The _id is kept.
func (db *Database) ReplaceOne(ctx context.Context, name string, f *filter.Filter, replacement *document.Document) (UpdateResult, error) {
	p, err := patch.Replace(replacement)
	if err != nil {
		return UpdateResult{}, err
	}
	return db.Update(ctx, name, f, p, false)
}

// updateRow applies p to the document at row. Unchanged documents are not
// rewritten.
func (c *coll) updateRow(row store.RowID, old *document.Document, p patch.Patch, u *undoLog, cs *changeSet) (bool, error) {
	updated, err := p.Apply(old, c.db.opts.Now())
	if err != nil {
		return false, err
	}
	if updated.Equal(old) {
		return false, nil
	}
	if err := c.replaceDoc(row, old, updated, u, cs); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByID removes the document with the given _id and reports whether it
// existed.
func (db *Database) DeleteByID(ctx context.Context, name string, id document.Value) (bool, error) {
	c, err := db.lockWrite(name)
	if err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	row, _, ok := c.byID(id)
	if !ok {
		return false, nil
	}
	var (
		u  undoLog
		cs changeSet
	)
	c.deleteRow(row, &u, &cs)
	if err := c.commit(ctx, &u, &cs); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the first document matching f, or every matching document
// when many is set, and returns how many were removed.
func (db *Database) Delete(ctx context.Context, name string, f *filter.Filter, many bool) (int, error) {
	c, err := db.lockWrite(name)
	if err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	limit := 1
	if many {
		limit = 0
	}
	rows, err := c.matching(ctx, f, limit)
	if err != nil {
		return 0, err
	}
	var (
		u  undoLog
		cs changeSet
		n  int
	)
	for _, row := range rows {
		if c.deleteRow(row, &u, &cs) {
			n++
		}
	}
	if err := c.commit(ctx, &u, &cs); err != nil {
		return 0, err
	}
	return n, nil
}

func describeID(id document.Value) string {
	b, err := id.MarshalJSON()
	if err != nil {
		return "_id"
	}
	return "_id " + string(b)
}
