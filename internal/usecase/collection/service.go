package collection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/catalog"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/usecase/observe"
)

// Service handles collection lifecycle and collMod.
type Service struct {
	db Catalog
}

// New creates a collection service.
func New(db Catalog) *Service {
	return &Service{db: db}
}

// Create creates a collection and returns its definition.
func (s *Service) Create(ctx context.Context, name string, opts domcol.Options) (col domcol.Collection, err error) {
	defer func(start time.Time) {
		observe.Op(ctx, name, "create_collection", start, err, zap.Bool("capped", opts.Capped != nil))
	}(time.Now())

	if err := s.db.CreateCollection(ctx, name, opts); err != nil {
		return domcol.Collection{}, fmt.Errorf("create collection: %w", err)
	}
	col, err = s.db.Collection(name)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return col, nil
}

// Get returns a collection definition.
func (s *Service) Get(_ context.Context, name string) (domcol.Collection, error) {
	col, err := s.db.Collection(name)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return col, nil
}

// List returns collection names in ascending order.
func (s *Service) List(_ context.Context) []string {
	return s.db.ListCollections()
}

// Drop removes a collection with every document and index.
func (s *Service) Drop(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { observe.Op(ctx, name, "drop_collection", start, err) }(time.Now())

	if err := s.db.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	return nil
}

// SetValidator replaces the validator; nil removes it. Existing documents
// are not re-checked.
func (s *Service) SetValidator(ctx context.Context, name string, v *domcol.Validator) (err error) {
	defer func(start time.Time) {
		observe.Op(ctx, name, "coll_mod", start, err, zap.Bool("validator", v != nil))
	}(time.Now())

	if err := s.db.SetValidator(ctx, name, v); err != nil {
		return fmt.Errorf("set validator: %w", err)
	}
	return nil
}

// Stats returns statistics of one collection.
func (s *Service) Stats(_ context.Context, name string) (catalog.Stats, error) {
	st, err := s.db.Stats(name)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("collection stats: %w", err)
	}
	return st, nil
}

// AllStats returns statistics of every collection.
func (s *Service) AllStats(_ context.Context) []catalog.Stats {
	return s.db.AllStats()
}
