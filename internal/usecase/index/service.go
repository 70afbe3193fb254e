package index

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/usecase/observe"
)

// Service manages secondary indexes.
type Service struct {
	db Catalog
}

// New creates an index service.
func New(db Catalog) *Service {
	return &Service{db: db}
}

// Create builds an index from a key document such as {"age": 1} and returns
// its name. Creating an index identical to an existing one is a no-op.
func (s *Service) Create(
	ctx context.Context, name string, keys *domdoc.Document, opts indexspec.Options,
) (indexName string, err error) {
	defer func(start time.Time) {
		observe.Op(ctx, name, "create_index", start, err, zap.String("index", indexName))
	}(time.Now())

	parsed, err := indexspec.ParseKeys(keys)
	if err != nil {
		return "", fmt.Errorf("parse index keys: %w", err)
	}
	spec, err := indexspec.New(parsed, opts)
	if err != nil {
		return "", fmt.Errorf("index spec: %w", err)
	}
	indexName, err = s.db.CreateIndex(ctx, name, spec)
	if err != nil {
		return "", fmt.Errorf("create index: %w", err)
	}
	return indexName, nil
}

// Drop removes one index by name. The _id index cannot be dropped.
func (s *Service) Drop(ctx context.Context, name, index string) (err error) {
	defer func(start time.Time) {
		observe.Op(ctx, name, "drop_index", start, err, zap.String("index", index))
	}(time.Now())

	if err := s.db.DropIndex(ctx, name, index); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// DropAll removes every index except _id.
func (s *Service) DropAll(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "drop_indexes", start, err) }(time.Now())

	if err := s.db.DropIndexes(ctx, name); err != nil {
		return fmt.Errorf("drop indexes: %w", err)
	}
	return nil
}

// List returns the index specs of a collection, _id first.
func (s *Service) List(_ context.Context, name string) ([]indexspec.Spec, error) {
	specs, err := s.db.Indexes(name)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return specs, nil
}
