package docdex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/config"
	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/db/driver"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/planner"
	docrepo "github.com/kailas-cloud/docdex/internal/repository/document"
	"github.com/kailas-cloud/docdex/internal/repository/sink"
	aggregateuc "github.com/kailas-cloud/docdex/internal/usecase/aggregate"
	collectionuc "github.com/kailas-cloud/docdex/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
	indexuc "github.com/kailas-cloud/docdex/internal/usecase/index"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "docdex:"
)

// Internal interfaces, swapped for mocks in tests.
type collectionUseCase interface {
	Create(ctx context.Context, name string, opts domcol.Options) (domcol.Collection, error)
	Get(ctx context.Context, name string) (domcol.Collection, error)
	List(ctx context.Context) []string
	Drop(ctx context.Context, name string) error
	SetValidator(ctx context.Context, name string, v *domcol.Validator) error
	Stats(ctx context.Context, name string) (catalog.Stats, error)
}

type documentUseCase interface {
	Insert(ctx context.Context, name string, d *domdoc.Document) (domdoc.Value, error)
	InsertMany(ctx context.Context, name string, docs []*domdoc.Document) ([]batch.Result, error)
	UpdateByID(ctx context.Context, name string, id domdoc.Value, update *domdoc.Document) error
	Update(ctx context.Context, name string, filter, update *domdoc.Document, many bool) (catalog.UpdateResult, error)
	Replace(ctx context.Context, name string, filter, replacement *domdoc.Document) (catalog.UpdateResult, error)
	DeleteByID(ctx context.Context, name string, id domdoc.Value) (bool, error)
	Delete(ctx context.Context, name string, filter *domdoc.Document, many bool) (int, error)
	Get(ctx context.Context, name string, id domdoc.Value) (*domdoc.Document, error)
	Find(ctx context.Context, name string, req documentuc.FindRequest) (aggregation.Stream, error)
	Count(ctx context.Context, name string, filter *domdoc.Document) (int, error)
	Explain(ctx context.Context, name string, req documentuc.FindRequest) (*planner.Plan, error)
}

type indexUseCase interface {
	Create(ctx context.Context, name string, keys *domdoc.Document, opts indexspec.Options) (string, error)
	Drop(ctx context.Context, name, index string) error
	DropAll(ctx context.Context, name string) error
	List(ctx context.Context, name string) ([]indexspec.Spec, error)
}

type aggregateUseCase interface {
	Run(ctx context.Context, name string, stages []*domdoc.Document) (aggregation.Stream, error)
}

// Client is the docdex SDK entry point. Each Client owns one database.
type Client struct {
	store    db.Store
	database *Database
}

// Open creates a Client. With a persistent backend it waits for the backend
// and reloads every stored collection before returning.
func Open(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{readinessTimeout: defaultReadinessTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.persistence.Driver == "" {
		cfg.persistence.Driver = config.DriverMemory
	}
	if cfg.persistence.KeyPrefix == "" {
		cfg.persistence.KeyPrefix = defaultKeyPrefix
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := driver.New(cfg.persistence)
	if err != nil {
		return nil, fmt.Errorf("docdex: %w", err)
	}
	if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("docdex: storage not ready: %w", err)
	}

	engine := catalog.Options{
		PlanCacheSize: cfg.planCacheSize,
		BatchSize:     cfg.batchSize,
		Seed:          cfg.seed,
		Logger:        zap.NewNop(),
	}
	if cfg.persistence.Driver != config.DriverMemory {
		compression, err := docrepo.ParseCompression(cfg.persistence.Compression)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("docdex: %w", err)
		}
		engine.Persistence = sink.New(store, sink.Options{
			Prefix:      cfg.persistence.KeyPrefix,
			Compression: compression,
		})
	}

	database, err := catalog.Open(ctx, engine)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("docdex: load database: %w", err)
	}
	return &Client{store: store, database: wireDatabase(database, obs)}, nil
}

func wireDatabase(db *catalog.Database, obs *observer) *Database {
	return &Database{
		collSvc: collectionuc.New(db),
		docSvc:  documentuc.New(db),
		idxSvc:  indexuc.New(db),
		aggSvc:  aggregateuc.New(db),
		obs:     obs,
	}
}

// Database returns the client's database handle.
func (c *Client) Database() *Database {
	return c.database
}

// Ping checks storage connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.database.obs.observe("", "ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases storage connections. Every write is already committed.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}
