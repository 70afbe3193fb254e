package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
)

// CreateIndex builds an index over the existing documents and returns its
// name. An equivalent index is returned as is. A missing collection is
// created.
func (db *Database) CreateIndex(ctx context.Context, name string, spec indexspec.Spec) (string, error) {
	c, err := db.lockWriteOrCreate(ctx, name)
	if err != nil {
		return "", err
	}
	defer c.mu.Unlock()

	idx, created, err := c.indexes.Create(spec, c.store.All())
	if err != nil {
		return "", c.withCollection(err)
	}
	if !created {
		return idx, nil
	}
	c.planner.Purge()
	if err := db.opts.Persistence.Commit(ctx, Change{Collection: name, Meta: c.metadata()}); err != nil {
		_, _ = c.indexes.Drop(idx)
		return "", fmt.Errorf("persist index %s of %q: %w", idx, name, err)
	}
	return idx, nil
}

// DropIndex removes one index. The _id_ index cannot be dropped.
func (db *Database) DropIndex(ctx context.Context, name, index string) error {
	c, err := db.lockWrite(name)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	spec, err := c.indexes.Drop(index)
	if err != nil {
		return err
	}
	c.planner.Purge()
	if err := db.opts.Persistence.Commit(ctx, Change{Collection: name, Meta: c.metadata()}); err != nil {
		return errors.Join(
			fmt.Errorf("persist drop of index %s of %q: %w", index, name, err),
			c.restoreIndexes([]indexspec.Spec{spec}),
		)
	}
	return nil
}

// DropIndexes removes every index except _id_.
func (db *Database) DropIndexes(ctx context.Context, name string) error {
	c, err := db.lockWrite(name)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	dropped := c.indexes.DropAll()
	if len(dropped) == 0 {
		return nil
	}
	c.planner.Purge()
	if err := db.opts.Persistence.Commit(ctx, Change{Collection: name, Meta: c.metadata()}); err != nil {
		return errors.Join(
			fmt.Errorf("persist drop of indexes of %q: %w", name, err),
			c.restoreIndexes(dropped),
		)
	}
	return nil
}

// restoreIndexes rebuilds dropped indexes after a failed commit.
func (c *coll) restoreIndexes(specs []indexspec.Spec) error {
	var errs []error
	for _, s := range specs {
		if _, _, err := c.indexes.Create(s, c.store.All()); err != nil {
			errs = append(errs, fmt.Errorf("restore index %s: %w", s.Name(), err))
		}
	}
	c.planner.Purge()
	return errors.Join(errs...)
}

// Indexes lists the index specs of a collection in creation order.
func (db *Database) Indexes(name string) ([]indexspec.Spec, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()
	return c.indexes.List(), nil
}
