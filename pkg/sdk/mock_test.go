package docdex

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/planner"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
)

// --- collectionUseCase mock ---

type mockCollectionUC struct {
	createFn       func(ctx context.Context, name string, opts domcol.Options) (domcol.Collection, error)
	getFn          func(ctx context.Context, name string) (domcol.Collection, error)
	listFn         func(ctx context.Context) []string
	dropFn         func(ctx context.Context, name string) error
	setValidatorFn func(ctx context.Context, name string, v *domcol.Validator) error
	statsFn        func(ctx context.Context, name string) (catalog.Stats, error)
}

func (m *mockCollectionUC) Create(ctx context.Context, name string, opts domcol.Options) (domcol.Collection, error) {
	return m.createFn(ctx, name, opts)
}

func (m *mockCollectionUC) Get(ctx context.Context, name string) (domcol.Collection, error) {
	return m.getFn(ctx, name)
}

func (m *mockCollectionUC) List(ctx context.Context) []string {
	return m.listFn(ctx)
}

func (m *mockCollectionUC) Drop(ctx context.Context, name string) error {
	return m.dropFn(ctx, name)
}

func (m *mockCollectionUC) SetValidator(ctx context.Context, name string, v *domcol.Validator) error {
	return m.setValidatorFn(ctx, name, v)
}

func (m *mockCollectionUC) Stats(ctx context.Context, name string) (catalog.Stats, error) {
	return m.statsFn(ctx, name)
}

// --- documentUseCase mock ---

type mockDocumentUC struct {
	insertFn     func(ctx context.Context, name string, d *domdoc.Document) (domdoc.Value, error)
	insertManyFn func(ctx context.Context, name string, docs []*domdoc.Document) ([]batch.Result, error)
	updateByIDFn func(ctx context.Context, name string, id domdoc.Value, update *domdoc.Document) error
	updateFn     func(ctx context.Context, name string, filter, update *domdoc.Document, many bool) (catalog.UpdateResult, error)
	replaceFn    func(ctx context.Context, name string, filter, r *domdoc.Document) (catalog.UpdateResult, error)
	deleteByIDFn func(ctx context.Context, name string, id domdoc.Value) (bool, error)
	deleteFn     func(ctx context.Context, name string, filter *domdoc.Document, many bool) (int, error)
	getFn        func(ctx context.Context, name string, id domdoc.Value) (*domdoc.Document, error)
	findFn       func(ctx context.Context, name string, req documentuc.FindRequest) (aggregation.Stream, error)
	countFn      func(ctx context.Context, name string, filter *domdoc.Document) (int, error)
	explainFn    func(ctx context.Context, name string, req documentuc.FindRequest) (*planner.Plan, error)
}

func (m *mockDocumentUC) Insert(ctx context.Context, name string, d *domdoc.Document) (domdoc.Value, error) {
	return m.insertFn(ctx, name, d)
}

func (m *mockDocumentUC) InsertMany(
	ctx context.Context, name string, docs []*domdoc.Document,
) ([]batch.Result, error) {
	return m.insertManyFn(ctx, name, docs)
}

func (m *mockDocumentUC) UpdateByID(ctx context.Context, name string, id domdoc.Value, update *domdoc.Document) error {
	return m.updateByIDFn(ctx, name, id, update)
}

func (m *mockDocumentUC) Update(
	ctx context.Context, name string, filter, update *domdoc.Document, many bool,
) (catalog.UpdateResult, error) {
	return m.updateFn(ctx, name, filter, update, many)
}

func (m *mockDocumentUC) Replace(
	ctx context.Context, name string, filter, r *domdoc.Document,
) (catalog.UpdateResult, error) {
	return m.replaceFn(ctx, name, filter, r)
}

func (m *mockDocumentUC) DeleteByID(ctx context.Context, name string, id domdoc.Value) (bool, error) {
	return m.deleteByIDFn(ctx, name, id)
}

func (m *mockDocumentUC) Delete(ctx context.Context, name string, filter *domdoc.Document, many bool) (int, error) {
	return m.deleteFn(ctx, name, filter, many)
}

func (m *mockDocumentUC) Get(ctx context.Context, name string, id domdoc.Value) (*domdoc.Document, error) {
	return m.getFn(ctx, name, id)
}

func (m *mockDocumentUC) Find(
	ctx context.Context, name string, req documentuc.FindRequest,
) (aggregation.Stream, error) {
	return m.findFn(ctx, name, req)
}

func (m *mockDocumentUC) Count(ctx context.Context, name string, filter *domdoc.Document) (int, error) {
	return m.countFn(ctx, name, filter)
}

func (m *mockDocumentUC) Explain(
	ctx context.Context, name string, req documentuc.FindRequest,
) (*planner.Plan, error) {
	return m.explainFn(ctx, name, req)
}

// --- indexUseCase mock ---

type mockIndexUC struct {
	createFn  func(ctx context.Context, name string, keys *domdoc.Document, opts indexspec.Options) (string, error)
	dropFn    func(ctx context.Context, name, index string) error
	dropAllFn func(ctx context.Context, name string) error
	listFn    func(ctx context.Context, name string) ([]indexspec.Spec, error)
}

func (m *mockIndexUC) Create(
	ctx context.Context, name string, keys *domdoc.Document, opts indexspec.Options,
) (string, error) {
	return m.createFn(ctx, name, keys, opts)
}

func (m *mockIndexUC) Drop(ctx context.Context, name, index string) error {
	return m.dropFn(ctx, name, index)
}

func (m *mockIndexUC) DropAll(ctx context.Context, name string) error {
	return m.dropAllFn(ctx, name)
}

func (m *mockIndexUC) List(ctx context.Context, name string) ([]indexspec.Spec, error) {
	return m.listFn(ctx, name)
}

// --- aggregateUseCase mock ---

type mockAggregateUC struct {
	runFn func(ctx context.Context, name string, stages []*domdoc.Document) (aggregation.Stream, error)
}

func (m *mockAggregateUC) Run(
	ctx context.Context, name string, stages []*domdoc.Document,
) (aggregation.Stream, error) {
	return m.runFn(ctx, name, stages)
}

// streamOf yields docs in order.
func streamOf(docs ...*domdoc.Document) aggregation.Stream {
	return func(yield func(*domdoc.Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func testDatabase(
	coll *mockCollectionUC, docs *mockDocumentUC, idx *mockIndexUC, agg *mockAggregateUC,
) *Database {
	return &Database{collSvc: coll, docSvc: docs, idxSvc: idx, aggSvc: agg}
}
