package collection

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/catalog"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
)

// Catalog defines the collection management contract of the engine.
type Catalog interface {
	CreateCollection(ctx context.Context, name string, opts domcol.Options) error
	DropCollection(ctx context.Context, name string) error
	ListCollections() []string
	Collection(name string) (domcol.Collection, error)
	SetValidator(ctx context.Context, name string, v *domcol.Validator) error
	Stats(name string) (catalog.Stats, error)
	AllStats() []catalog.Stats
}
