package document

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/document/patch"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/planner"
)

// Catalog defines the document contract of the engine.
type Catalog interface {
	InsertOne(ctx context.Context, name string, d *domdoc.Document) (domdoc.Value, error)
	InsertMany(ctx context.Context, name string, docs []*domdoc.Document) ([]batch.Result, error)
	UpdateByID(ctx context.Context, name string, id domdoc.Value, p patch.Patch) error
	Update(ctx context.Context, name string, f *filter.Filter, p patch.Patch, many bool) (catalog.UpdateResult, error)
	ReplaceOne(ctx context.Context, name string, f *filter.Filter, replacement *domdoc.Document) (catalog.UpdateResult, error)
	DeleteByID(ctx context.Context, name string, id domdoc.Value) (bool, error)
	Delete(ctx context.Context, name string, f *filter.Filter, many bool) (int, error)
	FindByID(ctx context.Context, name string, id domdoc.Value) (*domdoc.Document, error)
	Find(ctx context.Context, name string, q catalog.Query) (aggregation.Stream, error)
	Count(ctx context.Context, name string, f *filter.Filter) (int, error)
	Explain(ctx context.Context, name string, q catalog.Query) (*planner.Plan, error)
}
