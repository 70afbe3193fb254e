package docdex

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/batch"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/planner"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
)

func userDoc(id, name string, age int64) *domdoc.Document {
	return domdoc.FromFields(
		domdoc.Field{Key: "_id", Value: domdoc.String(id)},
		domdoc.Field{Key: "name", Value: domdoc.String(name)},
		domdoc.Field{Key: "age", Value: domdoc.Int(age)},
	)
}

// --- Database ---

func TestDatabase_CreateCollection(t *testing.T) {
	var got domcol.Options
	coll := &mockCollectionUC{
		createFn: func(_ context.Context, name string, opts domcol.Options) (domcol.Collection, error) {
			if name != "logs" {
				t.Errorf("name = %q, want logs", name)
			}
			got = opts
			return domcol.Reconstruct(name, opts.Capped, opts.Validator, 1700000000000, 1), nil
		},
	}
	db := testDatabase(coll, nil, nil, nil)

	info, err := db.CreateCollection(context.Background(), "logs",
		Capped(4096, 10),
		WithValidator(M{"level": M{"$exists": true}}, ValidationWarn()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Capped == nil || got.Capped.Size != 4096 || got.Capped.Max != 10 {
		t.Errorf("Capped = %+v", got.Capped)
	}
	if got.Validator == nil {
		t.Fatal("expected validator")
	}
	if got.Validator.Action != domcol.ActionWarn || got.Validator.Level != domcol.LevelStrict {
		t.Errorf("validator action/level = %s/%s", got.Validator.Action, got.Validator.Level)
	}
	if info.Name != "logs" || !info.Validated || info.Capped == nil {
		t.Errorf("info = %+v", info)
	}
	if info.CreatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("CreatedAt = %v", info.CreatedAt)
	}
}

func TestDatabase_CreateCollection_BadValidator(t *testing.T) {
	db := testDatabase(&mockCollectionUC{}, nil, nil, nil)

	_, err := db.CreateCollection(context.Background(), "logs", WithValidator(42))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestDatabase_CreateCollection_Error(t *testing.T) {
	coll := &mockCollectionUC{
		createFn: func(context.Context, string, domcol.Options) (domcol.Collection, error) {
			return domcol.Collection{}, domain.ErrAlreadyExists
		},
	}
	db := testDatabase(coll, nil, nil, nil)

	_, err := db.CreateCollection(context.Background(), "logs")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestDatabase_SetValidator_Remove(t *testing.T) {
	called := false
	coll := &mockCollectionUC{
		setValidatorFn: func(_ context.Context, _ string, v *domcol.Validator) error {
			called = true
			if v != nil {
				t.Errorf("validator = %+v, want nil", v)
			}
			return nil
		},
	}
	db := testDatabase(coll, nil, nil, nil)

	if err := db.SetValidator(context.Background(), "users", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("SetValidator not called")
	}
}

func TestDatabase_SetValidator_Moderate(t *testing.T) {
	coll := &mockCollectionUC{
		setValidatorFn: func(_ context.Context, _ string, v *domcol.Validator) error {
			if v == nil || v.Level != domcol.LevelModerate {
				t.Errorf("validator = %+v, want moderate", v)
			}
			return nil
		},
	}
	db := testDatabase(coll, nil, nil, nil)

	err := db.SetValidator(context.Background(), "users",
		M{"$jsonSchema": M{"required": A{"name"}}}, ValidationModerate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDatabase_Stats(t *testing.T) {
	coll := &mockCollectionUC{
		statsFn: func(_ context.Context, name string) (catalog.Stats, error) {
			return catalog.Stats{
				Collection: domcol.Reconstruct(name, nil, nil, 0, 3),
				Count:      2,
				Size:       120,
				Indexes:    []catalog.IndexStats{{Spec: indexspec.ID(), Entries: 2}},
			}, nil
		},
	}
	db := testDatabase(coll, nil, nil, nil)

	st, err := db.Stats(context.Background(), "users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Count != 2 || st.Size != 120 || st.Revision != 3 {
		t.Errorf("stats = %+v", st)
	}
	if len(st.Indexes) != 1 || st.Indexes[0].Name != "_id_" || st.Indexes[0].Entries != 2 {
		t.Errorf("indexes = %+v", st.Indexes)
	}
	if v, _ := st.Indexes[0].Keys.Get("_id"); v != 1 {
		t.Errorf("_id key = %v, want 1", v)
	}
}

func TestDatabase_DropAndList(t *testing.T) {
	coll := &mockCollectionUC{
		dropFn: func(_ context.Context, name string) error {
			if name != "users" {
				return domain.ErrCollectionNotFound
			}
			return nil
		},
		listFn: func(context.Context) []string { return []string{"a", "b"} },
	}
	db := testDatabase(coll, nil, nil, nil)

	if err := db.DropCollection(context.Background(), "users"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.DropCollection(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if got := db.ListCollections(context.Background()); len(got) != 2 {
		t.Errorf("ListCollections = %v", got)
	}
}

// --- Collection writes ---

func TestCollection_InsertOne(t *testing.T) {
	docs := &mockDocumentUC{
		insertFn: func(_ context.Context, name string, d *domdoc.Document) (domdoc.Value, error) {
			if name != "users" {
				t.Errorf("name = %q", name)
			}
			if got := d.Keys(); len(got) != 2 || got[0] != "age" || got[1] != "name" {
				t.Errorf("keys = %v, want sorted M keys", got)
			}
			return domdoc.String("u1"), nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	id, err := c.InsertOne(context.Background(), M{"name": "alice", "age": 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "u1" {
		t.Errorf("id = %v, want u1", id)
	}
}

func TestCollection_InsertOne_Nil(t *testing.T) {
	c := testDatabase(nil, &mockDocumentUC{}, nil, nil).Collection("users")

	_, err := c.InsertOne(context.Background(), nil)
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("err = %v, want ErrInvalidSpec", err)
	}
}

func TestCollection_InsertMany_Partial(t *testing.T) {
	dup := &domain.DuplicateKeyError{Index: "_id_"}
	docs := &mockDocumentUC{
		insertManyFn: func(_ context.Context, _ string, in []*domdoc.Document) ([]batch.Result, error) {
			if len(in) != 3 {
				t.Errorf("len = %d, want 3", len(in))
			}
			return []batch.Result{
				batch.NewOK(0, domdoc.Int(1)),
				batch.NewError(1, domdoc.Int(1), dup),
				batch.NewSkipped(2),
			}, dup
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	res, err := c.InsertMany(context.Background(), []M{{"_id": 1}, {"_id": 1}, {"_id": 2}})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
	if len(res.InsertedIDs) != 1 || res.InsertedIDs[0] != int64(1) {
		t.Errorf("InsertedIDs = %v", res.InsertedIDs)
	}
}

func TestCollection_UpdateMany(t *testing.T) {
	docs := &mockDocumentUC{
		updateFn: func(_ context.Context, _ string, f, u *domdoc.Document, many bool) (catalog.UpdateResult, error) {
			if !many {
				t.Error("many = false, want true")
			}
			if !f.Has("age") || !u.Has("$inc") {
				t.Errorf("filter = %v, update = %v", f, u)
			}
			return catalog.UpdateResult{Matched: 3, Modified: 2}, nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	res, err := c.UpdateMany(context.Background(), M{"age": M{"$gt": 18}}, M{"$inc": M{"visits": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched != 3 || res.Modified != 2 {
		t.Errorf("res = %+v", res)
	}
}

func TestCollection_UpdateByID_EncodesID(t *testing.T) {
	docs := &mockDocumentUC{
		updateByIDFn: func(_ context.Context, _ string, id domdoc.Value, _ *domdoc.Document) error {
			if id.Kind() != domdoc.KindInt || id.IntValue() != 7 {
				t.Errorf("id = %v", id)
			}
			return domain.ErrDocumentNotFound
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	err := c.UpdateByID(context.Background(), 7, M{"$set": M{"x": 1}})
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestCollection_ReplaceOne(t *testing.T) {
	docs := &mockDocumentUC{
		replaceFn: func(_ context.Context, _ string, f, r *domdoc.Document) (catalog.UpdateResult, error) {
			if v, _ := r.Get("name"); v.StringValue() != "bob" {
				t.Errorf("replacement = %v", r)
			}
			return catalog.UpdateResult{Matched: 1, Modified: 1}, nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	res, err := c.ReplaceOne(context.Background(), M{"_id": "u1"}, D{{Key: "name", Value: "bob"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Modified != 1 {
		t.Errorf("Modified = %d, want 1", res.Modified)
	}
}

func TestCollection_Delete(t *testing.T) {
	docs := &mockDocumentUC{
		deleteFn: func(_ context.Context, _ string, f *domdoc.Document, many bool) (int, error) {
			if many {
				return 4, nil
			}
			return 1, nil
		},
		deleteByIDFn: func(_ context.Context, _ string, id domdoc.Value) (bool, error) {
			return id.StringValue() == "u1", nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")
	ctx := context.Background()

	if n, _ := c.DeleteOne(ctx, M{"x": 1}); n != 1 {
		t.Errorf("DeleteOne = %d, want 1", n)
	}
	if n, _ := c.DeleteMany(ctx, nil); n != 4 {
		t.Errorf("DeleteMany = %d, want 4", n)
	}
	if ok, _ := c.DeleteByID(ctx, "u1"); !ok {
		t.Error("DeleteByID(u1) = false")
	}
	if ok, _ := c.DeleteByID(ctx, "u2"); ok {
		t.Error("DeleteByID(u2) = true")
	}
}

// --- Collection reads ---

func TestCollection_FindByID(t *testing.T) {
	docs := &mockDocumentUC{
		getFn: func(_ context.Context, _ string, id domdoc.Value) (*domdoc.Document, error) {
			return userDoc(id.StringValue(), "alice", 30), nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	d, err := c.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := d.Get("age"); v != int64(30) {
		t.Errorf("age = %v", v)
	}
}

func TestFindQuery_All(t *testing.T) {
	var got documentuc.FindRequest
	docs := &mockDocumentUC{
		findFn: func(_ context.Context, _ string, req documentuc.FindRequest) (aggregation.Stream, error) {
			got = req
			return streamOf(userDoc("u1", "alice", 30), userDoc("u2", "bob", 25)), nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	out, err := c.Find(M{"age": M{"$gte": 18}}).
		Sort(D{{Key: "age", Value: -1}}).
		Project(M{"name": 1}).
		Skip(1).
		Limit(5).
		All(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if got.Filter == nil || got.Sort == nil || got.Projection == nil {
		t.Errorf("request = %+v", got)
	}
	if got.Skip != 1 || got.Limit != 5 {
		t.Errorf("skip/limit = %d/%d", got.Skip, got.Limit)
	}
}

func TestFindQuery_NilFilter(t *testing.T) {
	docs := &mockDocumentUC{
		findFn: func(_ context.Context, _ string, req documentuc.FindRequest) (aggregation.Stream, error) {
			if req.Filter != nil || req.Sort != nil || req.Projection != nil {
				t.Errorf("request = %+v, want empty", req)
			}
			return streamOf(), nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	out, err := c.Find(nil).All(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestFindQuery_EncodeErrorDeferred(t *testing.T) {
	c := testDatabase(nil, &mockDocumentUC{}, nil, nil).Collection("users")

	q := c.Find(M{"bad": make(chan int)})
	if _, err := q.All(context.Background()); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestFindQuery_First(t *testing.T) {
	docs := &mockDocumentUC{
		findFn: func(_ context.Context, _ string, req documentuc.FindRequest) (aggregation.Stream, error) {
			if req.Limit != 1 {
				t.Errorf("Limit = %d, want 1", req.Limit)
			}
			if req.Filter.Has("missing") {
				return streamOf(), nil
			}
			return streamOf(userDoc("u1", "alice", 30)), nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")
	ctx := context.Background()

	d, err := c.Find(M{"name": "alice"}).First(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := d.Get("_id"); v != "u1" {
		t.Errorf("_id = %v", v)
	}

	_, err = c.Find(M{"missing": true}).First(ctx)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestFindQuery_Explain(t *testing.T) {
	docs := &mockDocumentUC{
		explainFn: func(context.Context, string, documentuc.FindRequest) (*planner.Plan, error) {
			return &planner.Plan{Kind: planner.KindIndexScan, Index: "age_1", SortSatisfied: true}, nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	p, err := c.Find(M{"age": 30}).Explain(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != "IXSCAN" || p.Index != "age_1" || !p.SortSatisfied {
		t.Errorf("plan = %+v", p)
	}
}

func TestCollection_Count(t *testing.T) {
	docs := &mockDocumentUC{
		countFn: func(_ context.Context, _ string, f *domdoc.Document) (int, error) {
			if f != nil {
				return 1, nil
			}
			return 10, nil
		},
	}
	c := testDatabase(nil, docs, nil, nil).Collection("users")

	if n, _ := c.Count(context.Background(), nil); n != 10 {
		t.Errorf("Count(nil) = %d, want 10", n)
	}
	if n, _ := c.Count(context.Background(), M{"a": 1}); n != 1 {
		t.Errorf("Count(filter) = %d, want 1", n)
	}
}

// --- Indexes ---

func TestCollection_CreateIndex(t *testing.T) {
	idx := &mockIndexUC{
		createFn: func(_ context.Context, _ string, keys *domdoc.Document, opts indexspec.Options) (string, error) {
			if got := keys.Keys(); len(got) != 2 || got[0] != "name" || got[1] != "age" {
				t.Errorf("keys = %v", got)
			}
			if !opts.Unique || !opts.Sparse || opts.Name != "by_name" || opts.Partial == nil {
				t.Errorf("opts = %+v", opts)
			}
			return opts.Name, nil
		},
	}
	c := testDatabase(nil, nil, idx, nil).Collection("users")

	name, err := c.CreateIndex(context.Background(),
		D{{Key: "name", Value: 1}, {Key: "age", Value: -1}},
		IndexName("by_name"), Unique(), Sparse(), Partial(M{"age": M{"$gt": 0}}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "by_name" {
		t.Errorf("name = %q", name)
	}
}

func TestCollection_Indexes(t *testing.T) {
	geoKeys, _ := indexspec.ParseKeys(domdoc.FromFields(domdoc.Field{Key: "loc", Value: domdoc.String("2dsphere")}))
	geoSpec, _ := indexspec.New(geoKeys, indexspec.Options{})
	idx := &mockIndexUC{
		listFn: func(context.Context, string) ([]indexspec.Spec, error) {
			return []indexspec.Spec{indexspec.ID(), geoSpec}, nil
		},
	}
	c := testDatabase(nil, nil, idx, nil).Collection("places")

	list, err := c.Indexes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if v, _ := list[1].Keys.Get("loc"); v != "2dsphere" {
		t.Errorf("loc key = %v, want 2dsphere", v)
	}
}

func TestCollection_DropIndex(t *testing.T) {
	idx := &mockIndexUC{
		dropFn: func(_ context.Context, _, index string) error {
			if index == "_id_" {
				return domain.ErrInvalidSpec
			}
			return nil
		},
		dropAllFn: func(context.Context, string) error { return nil },
	}
	c := testDatabase(nil, nil, idx, nil).Collection("users")
	ctx := context.Background()

	if err := c.DropIndex(ctx, "_id_"); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("err = %v, want ErrInvalidSpec", err)
	}
	if err := c.DropIndex(ctx, "age_1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.DropIndexes(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Aggregate ---

func TestCollection_Aggregate(t *testing.T) {
	agg := &mockAggregateUC{
		runFn: func(_ context.Context, _ string, stages []*domdoc.Document) (aggregation.Stream, error) {
			if len(stages) != 2 {
				t.Errorf("stages = %d, want 2", len(stages))
			}
			return streamOf(domdoc.FromFields(domdoc.Field{Key: "total", Value: domdoc.Int(3)})), nil
		},
	}
	c := testDatabase(nil, nil, nil, agg).Collection("orders")

	cur, err := c.Aggregate(context.Background(), A{
		M{"$match": M{"status": "paid"}},
		M{"$count": "total"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := cur.All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := out[0].Get("total"); v != int64(3) {
		t.Errorf("total = %v", v)
	}
}

func TestCollection_Aggregate_NotAPipeline(t *testing.T) {
	c := testDatabase(nil, nil, nil, &mockAggregateUC{}).Collection("orders")

	_, err := c.Aggregate(context.Background(), M{"$match": M{}})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestCursor_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	stream := func(yield func(*domdoc.Document, error) bool) {
		if !yield(userDoc("u1", "a", 1), nil) {
			return
		}
		yield(nil, boom)
	}
	cur := newCursor(stream)

	if !cur.Next() {
		t.Fatal("expected first document")
	}
	if cur.Next() {
		t.Fatal("expected stop on error")
	}
	if !errors.Is(cur.Err(), boom) {
		t.Errorf("Err = %v, want boom", cur.Err())
	}
	if cur.Next() {
		t.Error("Next after stop = true")
	}
	cur.Close()
}
