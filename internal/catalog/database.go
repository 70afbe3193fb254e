// Package catalog is the database context: it owns every collection and glues
// the document store, indexes, planner, validator and persistence together.
//
// Each collection has one RWMutex. Writes hold it exclusively for the whole
// write unit (validation, store mutation, index maintenance, capped eviction
// and the persistence commit); reads hold it shared per plan or fetch batch.
// The database lock only guards the collection map and is always taken
// before a collection lock.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/planner"
)

// DefaultPlanCacheSize is the plan cache capacity per collection.
const DefaultPlanCacheSize = 256

// Observer receives engine events for metrics.
type Observer interface {
	Evicted(collection string, n int)
	Planned(collection string, kind planner.Kind)
}

type nopObserver struct{}

func (nopObserver) Evicted(string, int)          {}
func (nopObserver) Planned(string, planner.Kind) {}

// Options configure a Database.
type Options struct {
	PlanCacheSize int
	// BatchSize is how many documents a scan reads per lock acquisition.
	BatchSize int
	// Seed makes $sample deterministic when set.
	Seed *uint64
	// Persistence receives every committed write. Nil keeps data in memory only.
	Persistence Persistence
	Logger      *zap.Logger
	Observer    Observer
	// Now is the clock for $currentDate.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.PlanCacheSize <= 0 {
		o.PlanCacheSize = DefaultPlanCacheSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = aggregation.DefaultBatchSize
	}
	if o.Persistence == nil {
		o.Persistence = nopPersistence{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Database is a set of named collections.
type Database struct {
	opts Options
	log  *zap.Logger

	mu          sync.RWMutex
	collections map[string]*coll

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Open creates a database and reloads every collection from persistence.
func Open(ctx context.Context, opts Options) (*Database, error) {
	opts.applyDefaults()
	db := &Database{
		opts:        opts,
		log:         opts.Logger,
		collections: make(map[string]*coll),
	}
	if opts.Seed != nil {
		db.rnd = rand.New(rand.NewPCG(*opts.Seed, *opts.Seed))
	} else {
		db.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	snaps, err := opts.Persistence.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	for _, s := range snaps {
		c, err := db.restore(s)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", s.Meta.Collection.Name(), err)
		}
		db.collections[c.name] = c
		db.log.Debug("collection restored",
			zap.String("collection", c.name),
			zap.Int("documents", c.store.Len()),
			zap.Int("indexes", c.indexes.Len()),
		)
	}
	return db, nil
}

func (db *Database) restore(s Snapshot) (*coll, error) {
	c, err := db.newColl(s.Meta.Collection)
	if err != nil {
		return nil, err
	}
	pages := slices.Clone(s.Pages)
	slices.SortFunc(pages, func(a, b Page) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	for _, p := range pages {
		if err := c.store.InsertAt(p.Seq, p.Doc); err != nil {
			return nil, fmt.Errorf("page %d: %w", p.Seq, err)
		}
		if err := c.indexes.OnInsert(p.Seq, p.Doc); err != nil {
			return nil, fmt.Errorf("page %d: %w", p.Seq, err)
		}
	}
	for _, spec := range s.Meta.Indexes {
		if _, _, err := c.indexes.Create(spec, c.store.All()); err != nil {
			return nil, fmt.Errorf("index %s: %w", spec.Name(), err)
		}
	}
	return c, nil
}

// Rand returns a random source for one consumer, derived from the database
// source so seeded databases stay reproducible.
func (db *Database) Rand() *rand.Rand {
	db.rndMu.Lock()
	defer db.rndMu.Unlock()
	return rand.New(rand.NewPCG(db.rnd.Uint64(), db.rnd.Uint64()))
}

func (db *Database) get(name string) (*coll, error) {
	db.mu.RLock()
	c, ok := db.collections[name]
	db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)
	}
	return c, nil
}

// lockWrite returns the live collection locked for writing.
func (db *Database) lockWrite(name string) (*coll, error) {
	c, err := db.get(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return nil, fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)
	}
	return c, nil
}

// lockWriteOrCreate is lockWrite that creates a missing collection with
// default options first.
func (db *Database) lockWriteOrCreate(ctx context.Context, name string) (*coll, error) {
	for {
		c, err := db.lockWrite(name)
		if err == nil {
			return c, nil
		}
		if err := db.CreateCollection(ctx, name, collection.Options{}); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}
}

// lockRead returns the live collection locked for reading.
func (db *Database) lockRead(name string) (*coll, error) {
	c, err := db.get(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	if c.dropped {
		c.mu.RUnlock()
		return nil, fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)
	}
	return c, nil
}

// CreateCollection creates an empty collection.
func (db *Database) CreateCollection(ctx context.Context, name string, opts collection.Options) error {
	meta, err := collection.New(name, opts)
	if err != nil {
		return err
	}
	c, err := db.newColl(meta)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.collections[name]; ok {
		return fmt.Errorf("collection %q: %w", name, domain.ErrAlreadyExists)
	}
	if err := db.opts.Persistence.Commit(ctx, Change{Collection: name, Meta: c.metadata()}); err != nil {
		return fmt.Errorf("persist collection %q: %w", name, err)
	}
	db.collections[name] = c
	return nil
}

// DropCollection removes a collection with its documents and indexes.
func (db *Database) DropCollection(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.collections[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := db.opts.Persistence.Commit(ctx, Change{Collection: name, Drop: true}); err != nil {
		return fmt.Errorf("persist drop of %q: %w", name, err)
	}
	c.dropped = true
	delete(db.collections, name)
	return nil
}

// ListCollections returns every collection name in ascending order.
func (db *Database) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.collections))
	for name := range db.collections {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Collection returns the definition of a collection.
func (db *Database) Collection(name string) (collection.Collection, error) {
	c, err := db.lockRead(name)
	if err != nil {
		return collection.Collection{}, err
	}
	defer c.mu.RUnlock()
	return c.meta, nil
}

// SetValidator replaces the validator of a collection; nil removes it.
// Existing documents are not re-checked.
func (db *Database) SetValidator(ctx context.Context, name string, v *collection.Validator) error {
	c, err := db.lockWrite(name)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	meta, err := c.meta.WithValidator(v)
	if err != nil {
		return err
	}
	compiled, err := compileValidator(name, meta.Validator())
	if err != nil {
		return err
	}
	oldMeta, oldValidator := c.meta, c.validator
	c.meta, c.validator = meta, compiled
	if err := db.opts.Persistence.Commit(ctx, Change{Collection: name, Meta: c.metadata()}); err != nil {
		c.meta, c.validator = oldMeta, oldValidator
		return fmt.Errorf("persist validator of %q: %w", name, err)
	}
	return nil
}
