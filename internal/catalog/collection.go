package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/index"
	"github.com/kailas-cloud/docdex/internal/planner"
	"github.com/kailas-cloud/docdex/internal/store"
	"github.com/kailas-cloud/docdex/internal/validator"
)

// coll is the live state of one collection, guarded by mu.
type coll struct {
	name string
	db   *Database

	mu        sync.RWMutex
	meta      collection.Collection
	store     *store.Store
	indexes   *index.Manager
	planner   *planner.Planner
	validator *validator.Validator
	dropped   bool
}

func (db *Database) newColl(meta collection.Collection) (*coll, error) {
	compiled, err := compileValidator(meta.Name(), meta.Validator())
	if err != nil {
		return nil, err
	}
	c := &coll{
		name:      meta.Name(),
		db:        db,
		meta:      meta,
		store:     store.New(),
		validator: compiled,
	}
	c.indexes = index.NewManager(c.name, c.store.Get)
	c.planner = planner.New(c.name, c.indexes, db.opts.PlanCacheSize)
	return c, nil
}

func compileValidator(name string, v *collection.Validator) (*validator.Validator, error) {
	if v == nil {
		return nil, nil
	}
	return validator.Compile(name, v)
}

// metadata snapshots the persisted definition. Callers hold mu.
func (c *coll) metadata() *Metadata {
	var specs []indexspec.Spec
	for _, s := range c.indexes.List() {
		if !s.IsID() {
			specs = append(specs, s)
		}
	}
	return &Metadata{Collection: c.meta, Indexes: specs}
}

// validate runs the validator for an insert (old nil) or an update.
func (c *coll) validate(d, old *document.Document) error {
	v := c.validator
	if v == nil {
		return nil
	}
	if old != nil && v.Level() == collection.LevelModerate && v.Check(old) != nil {
		return nil
	}
	err := v.Check(d)
	if err == nil {
		return nil
	}
	var verr *domain.ValidationError
	if v.Action() == collection.ActionWarn && errors.As(err, &verr) {
		c.db.log.Warn("document failed validation",
			zap.String("collection", c.name),
			zap.String("_id", d.IDKey()),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (c *coll) withCollection(err error) error {
	var dup *domain.DuplicateKeyError
	if errors.As(err, &dup) && dup.Collection == "" {
		dup.Collection = c.name
	}
	return err
}

// insertDoc validates and stores d, which must carry an _id.
func (c *coll) insertDoc(d *document.Document, u *undoLog, cs *changeSet) (store.RowID, error) {
	if err := c.validate(d, nil); err != nil {
		return 0, err
	}
	row := c.store.NextRow()
	if err := c.store.InsertAt(row, d); err != nil {
		return 0, c.withCollection(err)
	}
	if err := c.indexes.OnInsert(row, d); err != nil {
		c.store.Delete(row)
		return 0, c.withCollection(err)
	}
	u.push(func() {
		c.indexes.OnDelete(row, d)
		c.store.Delete(row)
	})
	cs.put(row, d)
	return row, nil
}

// replaceDoc swaps the document at row for updated.
func (c *coll) replaceDoc(row store.RowID, old, updated *document.Document, u *undoLog, cs *changeSet) error {
	if err := c.validate(updated, old); err != nil {
		return err
	}
	if err := c.indexes.OnUpdate(row, old, updated); err != nil {
		return c.withCollection(err)
	}
	if _, err := c.store.Replace(row, updated); err != nil {
		_ = c.indexes.OnUpdate(row, updated, old)
		return err
	}
	u.push(func() {
		_, _ = c.store.Replace(row, old)
		_ = c.indexes.OnUpdate(row, updated, old)
	})
	cs.put(row, updated)
	return nil
}

// deleteRow removes row from the store and every index.
func (c *coll) deleteRow(row store.RowID, u *undoLog, cs *changeSet) bool {
	d, ok := c.store.Delete(row)
	if !ok {
		return false
	}
	c.indexes.OnDelete(row, d)
	u.push(func() {
		_ = c.store.InsertAt(row, d)
		_ = c.indexes.OnInsert(row, d)
	})
	cs.del(d.IDKey())
	return true
}

// evict removes the oldest documents of a capped collection that is over
// its limits and returns how many were removed.
func (c *coll) evict(u *undoLog, cs *changeSet) int {
	rows := c.store.Evictions(c.meta.Capped())
	for _, r := range rows {
		c.deleteRow(r, u, cs)
	}
	if len(rows) > 0 {
		c.db.log.Debug("capped collection evicted documents",
			zap.String("collection", c.name),
			zap.Int("evicted", len(rows)),
		)
	}
	return len(rows)
}

// commit persists a unit and undoes it in memory when persistence fails.
func (c *coll) commit(ctx context.Context, u *undoLog, cs *changeSet) error {
	ch := cs.change(c.name)
	if ch.Empty() {
		return nil
	}
	if err := c.db.opts.Persistence.Commit(ctx, ch); err != nil {
		u.rollback()
		return fmt.Errorf("persist %q: %w", c.name, err)
	}
	return nil
}

// byID resolves an identifier to its row.
func (c *coll) byID(id document.Value) (store.RowID, *document.Document, bool) {
	row, ok := c.store.Lookup(document.KeyString(id))
	if !ok {
		return 0, nil, false
	}
	d, ok := c.store.Get(row)
	return row, d, ok
}
