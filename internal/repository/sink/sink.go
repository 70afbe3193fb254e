// Package sink mirrors catalog changes into a db.Store and reloads them at
// startup.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/db"
	colrepo "github.com/kailas-cloud/docdex/internal/repository/collection"
	docrepo "github.com/kailas-cloud/docdex/internal/repository/document"
)

// Compile-time check: Sink implements catalog.Persistence.
var _ catalog.Persistence = (*Sink)(nil)

// store is the consumer interface for the sink (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Apply(ctx context.Context, b db.Batch) error
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// Options configure a Sink.
type Options struct {
	// Prefix namespaces every key, e.g. "docdex:".
	Prefix      string
	Compression docrepo.Compression
	Logger      *zap.Logger
}

// Sink implements catalog.Persistence over a page store.
type Sink struct {
	store store
	cols  *colrepo.Repo
	docs  *docrepo.Repo
	log   *zap.Logger
}

// New creates a persistence sink.
func New(s store, opts Options) *Sink {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		store: s,
		cols:  colrepo.New(s, opts.Prefix),
		docs:  docrepo.New(s, docrepo.NewCodec(opts.Compression), opts.Prefix),
		log:   log,
	}
}

// Load reads every collection. Pages of different collections load in
// parallel; the catalog orders them by sequence.
func (s *Sink) Load(ctx context.Context) ([]catalog.Snapshot, error) {
	metas, err := s.cols.List(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]catalog.Snapshot, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range metas {
		g.Go(func() error {
			name := m.Collection.Name()
			pages, err := s.docs.Load(gctx, name)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			snaps[i] = catalog.Snapshot{Meta: m, Pages: pages}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		s.log.Info("collection loaded",
			zap.String("collection", snap.Meta.Collection.Name()),
			zap.Int("documents", len(snap.Pages)),
			zap.Int("indexes", len(snap.Meta.Indexes)),
		)
	}
	return snaps, nil
}

// Commit writes one change as a single batch.
func (s *Sink) Commit(ctx context.Context, c catalog.Change) error {
	b, err := s.batch(ctx, c)
	if err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	if err := s.store.Apply(ctx, b); err != nil {
		return fmt.Errorf("commit %s: %w", c.Collection, err)
	}
	return nil
}

func (s *Sink) batch(ctx context.Context, c catalog.Change) (db.Batch, error) {
	var b db.Batch
	if c.Drop {
		keys, err := s.docs.Keys(ctx, c.Collection)
		if err != nil {
			return db.Batch{}, err
		}
		b.Dels = append(keys, s.cols.Key(c.Collection))
		return b, nil
	}
	if c.Meta != nil {
		e, err := s.cols.Entry(*c.Meta)
		if err != nil {
			return db.Batch{}, err
		}
		b.Sets = append(b.Sets, e)
	}
	for _, idKey := range c.Delete {
		b.Dels = append(b.Dels, s.docs.Key(c.Collection, idKey))
	}
	for _, p := range c.Put {
		e, err := s.docs.Entry(c.Collection, p)
		if err != nil {
			return db.Batch{}, err
		}
		b.Sets = append(b.Sets, e)
	}
	return b, nil
}
