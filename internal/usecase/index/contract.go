package index

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
)

// Catalog defines the index contract of the engine.
type Catalog interface {
	CreateIndex(ctx context.Context, name string, spec indexspec.Spec) (string, error)
	DropIndex(ctx context.Context, name, index string) error
	DropIndexes(ctx context.Context, name string) error
	Indexes(name string) ([]indexspec.Spec, error)
}
