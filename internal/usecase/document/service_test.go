package document

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/document/patch"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/planner"
)

// --- Mocks ---

type mockCatalog struct {
	insertOneFn  func(name string, d *domdoc.Document) (domdoc.Value, error)
	insertManyFn func(name string, docs []*domdoc.Document) ([]batch.Result, error)
	updateByIDFn func(name string, id domdoc.Value, p patch.Patch) error
	updateFn     func(name string, f *filter.Filter, p patch.Patch, many bool) (catalog.UpdateResult, error)
	replaceFn    func(name string, f *filter.Filter, r *domdoc.Document) (catalog.UpdateResult, error)
	deleteByIDFn func(name string, id domdoc.Value) (bool, error)
	deleteFn     func(name string, f *filter.Filter, many bool) (int, error)
	findByIDFn   func(name string, id domdoc.Value) (*domdoc.Document, error)
	findFn       func(name string, q catalog.Query) (aggregation.Stream, error)
	countFn      func(name string, f *filter.Filter) (int, error)
	explainFn    func(name string, q catalog.Query) (*planner.Plan, error)
}

func (m *mockCatalog) InsertOne(_ context.Context, name string, d *domdoc.Document) (domdoc.Value, error) {
	return m.insertOneFn(name, d)
}

func (m *mockCatalog) InsertMany(_ context.Context, name string, docs []*domdoc.Document) ([]batch.Result, error) {
	return m.insertManyFn(name, docs)
}

func (m *mockCatalog) UpdateByID(_ context.Context, name string, id domdoc.Value, p patch.Patch) error {
	return m.updateByIDFn(name, id, p)
}

func (m *mockCatalog) Update(
	_ context.Context, name string, f *filter.Filter, p patch.Patch, many bool,
) (catalog.UpdateResult, error) {
	return m.updateFn(name, f, p, many)
}

func (m *mockCatalog) ReplaceOne(
	_ context.Context, name string, f *filter.Filter, r *domdoc.Document,
) (catalog.UpdateResult, error) {
	return m.replaceFn(name, f, r)
}

func (m *mockCatalog) DeleteByID(_ context.Context, name string, id domdoc.Value) (bool, error) {
	return m.deleteByIDFn(name, id)
}

func (m *mockCatalog) Delete(_ context.Context, name string, f *filter.Filter, many bool) (int, error) {
	return m.deleteFn(name, f, many)
}

func (m *mockCatalog) FindByID(_ context.Context, name string, id domdoc.Value) (*domdoc.Document, error) {
	return m.findByIDFn(name, id)
}

func (m *mockCatalog) Find(_ context.Context, name string, q catalog.Query) (aggregation.Stream, error) {
	return m.findFn(name, q)
}

func (m *mockCatalog) Count(_ context.Context, name string, f *filter.Filter) (int, error) {
	return m.countFn(name, f)
}

func (m *mockCatalog) Explain(_ context.Context, name string, q catalog.Query) (*planner.Plan, error) {
	return m.explainFn(name, q)
}

func parse(t *testing.T, js string) *domdoc.Document {
	t.Helper()
	d, err := domdoc.ParseJSON([]byte(js))
	if err != nil {
		t.Fatalf("ParseJSON(%s): %v", js, err)
	}
	return d
}

// --- Tests ---

func TestInsert_Success(t *testing.T) {
	db := &mockCatalog{insertOneFn: func(name string, _ *domdoc.Document) (domdoc.Value, error) {
		if name != "users" {
			t.Errorf("expected collection 'users', got %q", name)
		}
		return domdoc.Int(1), nil
	}}
	id, err := New(db).Insert(context.Background(), "users", parse(t, `{"name":"Alice"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.IntValue() != 1 {
		t.Errorf("expected id 1, got %v", id)
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	dup := &domain.DuplicateKeyError{Collection: "users", Index: "_id_", Key: "1"}
	db := &mockCatalog{insertOneFn: func(string, *domdoc.Document) (domdoc.Value, error) {
		return domdoc.Null(), dup
	}}
	_, err := New(db).Insert(context.Background(), "users", parse(t, `{"_id":1}`))
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestInsertMany_ReturnsPartialResults(t *testing.T) {
	fail := errors.New("boom")
	db := &mockCatalog{insertManyFn: func(_ string, docs []*domdoc.Document) ([]batch.Result, error) {
		return []batch.Result{
			batch.NewOK(0, domdoc.Int(1)),
			batch.NewError(1, domdoc.Int(2), fail),
		}, fail
	}}
	res, err := New(db).InsertMany(context.Background(), "users",
		[]*domdoc.Document{parse(t, `{"_id":1}`), parse(t, `{"_id":2}`)})
	if !errors.Is(err, fail) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if ids := batch.InsertedIDs(res); len(ids) != 1 {
		t.Errorf("expected 1 inserted id, got %d", len(ids))
	}
}

func TestUpdate_ParsesFilterAndPatch(t *testing.T) {
	var gotMany bool
	db := &mockCatalog{updateFn: func(_ string, f *filter.Filter, p patch.Patch, many bool) (catalog.UpdateResult, error) {
		gotMany = many
		ok, err := f.Match(parse(t, `{"age":40}`))
		if err != nil || !ok {
			t.Errorf("filter should match age 40: ok=%v err=%v", ok, err)
		}
		if p.IsReplacement() {
			t.Error("expected operator patch")
		}
		return catalog.UpdateResult{Matched: 2, Modified: 1}, nil
	}}
	res, err := New(db).Update(context.Background(), "users",
		parse(t, `{"age":{"$gt":30}}`), parse(t, `{"$inc":{"age":1}}`), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotMany {
		t.Error("expected many=true to reach the catalog")
	}
	if res.Matched != 2 || res.Modified != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestUpdate_InvalidUpdate(t *testing.T) {
	db := &mockCatalog{updateFn: func(string, *filter.Filter, patch.Patch, bool) (catalog.UpdateResult, error) {
		t.Fatal("catalog must not be called")
		return catalog.UpdateResult{}, nil
	}}
	_, err := New(db).Update(context.Background(), "users", nil, parse(t, `{"$set":{"a":1},"b":2}`), false)
	if !errors.Is(err, domain.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestUpdate_InvalidFilter(t *testing.T) {
	db := &mockCatalog{}
	_, err := New(db).Update(context.Background(), "users",
		parse(t, `{"$where":"1"}`), parse(t, `{"$set":{"a":1}}`), false)
	if !errors.Is(err, domain.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestUpdateByID_Replacement(t *testing.T) {
	db := &mockCatalog{updateByIDFn: func(_ string, id domdoc.Value, p patch.Patch) error {
		if !p.IsReplacement() {
			t.Error("expected replacement patch")
		}
		if id.StringValue() != "a" {
			t.Errorf("unexpected id %v", id)
		}
		return nil
	}}
	if err := New(db).UpdateByID(context.Background(), "users", domdoc.String("a"), parse(t, `{"x":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateByID_NotFound(t *testing.T) {
	db := &mockCatalog{updateByIDFn: func(string, domdoc.Value, patch.Patch) error {
		return domain.ErrDocumentNotFound
	}}
	err := New(db).UpdateByID(context.Background(), "users", domdoc.Int(9), parse(t, `{"$set":{"x":1}}`))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplace(t *testing.T) {
	db := &mockCatalog{replaceFn: func(_ string, _ *filter.Filter, r *domdoc.Document) (catalog.UpdateResult, error) {
		if !r.Has("name") {
			t.Error("replacement lost its fields")
		}
		return catalog.UpdateResult{Matched: 1, Modified: 1}, nil
	}}
	res, err := New(db).Replace(context.Background(), "users", parse(t, `{"_id":1}`), parse(t, `{"name":"Bob"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Modified != 1 {
		t.Errorf("expected 1 modified, got %d", res.Modified)
	}
}

func TestDelete(t *testing.T) {
	db := &mockCatalog{
		deleteFn: func(_ string, f *filter.Filter, many bool) (int, error) {
			if !many {
				t.Error("expected many=true")
			}
			return 3, nil
		},
		deleteByIDFn: func(string, domdoc.Value) (bool, error) { return false, nil },
	}
	svc := New(db)
	n, err := svc.Delete(context.Background(), "users", nil, true)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted, got %d err=%v", n, err)
	}
	deleted, err := svc.DeleteByID(context.Background(), "users", domdoc.Int(1))
	if err != nil || deleted {
		t.Fatalf("absent id must report false without error, got %v err=%v", deleted, err)
	}
}

func TestFind_BuildsQuery(t *testing.T) {
	var got catalog.Query
	db := &mockCatalog{findFn: func(_ string, q catalog.Query) (aggregation.Stream, error) {
		got = q
		return func(yield func(*domdoc.Document, error) bool) {
			yield(parse(t, `{"_id":1}`), nil)
		}, nil
	}}
	stream, err := New(db).Find(context.Background(), "users", FindRequest{
		Filter:     parse(t, `{"age":{"$gte":18}}`),
		Sort:       parse(t, `{"age":-1}`),
		Projection: parse(t, `{"name":1}`),
		Skip:       5,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	docs, err := aggregation.Collect(stream)
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d err=%v", len(docs), err)
	}
	if len(got.Sort) != 1 || got.Projection == nil || got.Skip != 5 || got.Limit != 10 {
		t.Errorf("unexpected query %+v", got)
	}
}

func TestFind_DefaultsWithoutDocuments(t *testing.T) {
	var got catalog.Query
	db := &mockCatalog{findFn: func(_ string, q catalog.Query) (aggregation.Stream, error) {
		got = q
		return func(func(*domdoc.Document, error) bool) {}, nil
	}}
	if _, err := New(db).Find(context.Background(), "users", FindRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Filter == nil {
		t.Error("expected match-all filter")
	}
	if got.Sort != nil || got.Projection != nil {
		t.Errorf("expected no sort or projection, got %+v", got)
	}
}

func TestFind_NegativeLimit(t *testing.T) {
	_, err := New(&mockCatalog{}).Find(context.Background(), "users", FindRequest{Limit: -1})
	if !errors.Is(err, domain.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestFind_CollectionNotFound(t *testing.T) {
	db := &mockCatalog{findFn: func(string, catalog.Query) (aggregation.Stream, error) {
		return nil, domain.ErrCollectionNotFound
	}}
	_, err := New(db).Find(context.Background(), "ghost", FindRequest{})
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestCount(t *testing.T) {
	db := &mockCatalog{countFn: func(string, *filter.Filter) (int, error) { return 7, nil }}
	n, err := New(db).Count(context.Background(), "users", parse(t, `{"active":true}`))
	if err != nil || n != 7 {
		t.Fatalf("expected 7, got %d err=%v", n, err)
	}
}

func TestGet(t *testing.T) {
	db := &mockCatalog{findByIDFn: func(string, domdoc.Value) (*domdoc.Document, error) {
		return nil, domain.ErrDocumentNotFound
	}}
	_, err := New(db).Get(context.Background(), "users", domdoc.Int(1))
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	db := &mockCatalog{explainFn: func(string, catalog.Query) (*planner.Plan, error) {
		return &planner.Plan{Kind: planner.KindIndexScan, Index: "age_1"}, nil
	}}
	p, err := New(db).Explain(context.Background(), "users", FindRequest{Filter: parse(t, `{"age":5}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != planner.KindIndexScan || p.Index != "age_1" {
		t.Errorf("unexpected plan %+v", p)
	}
}
