package collection

import (
	"context"
	"testing"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/db"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn  func(ctx context.Context, key string) ([]byte, error)
	scanFn func(ctx context.Context, prefix string) ([]string, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, prefix)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "docdex:"), ms
}

func parseDoc(t *testing.T, js string) *document.Document {
	t.Helper()
	d, err := document.ParseJSON([]byte(js))
	if err != nil {
		t.Fatalf("ParseJSON(%s): %v", js, err)
	}
	return d
}

func testMetadata(t *testing.T, name string) catalog.Metadata {
	t.Helper()
	byEmail, err := indexspec.New([]indexspec.Key{{Path: "email", Kind: indexspec.Asc}}, indexspec.Options{Unique: true})
	if err != nil {
		t.Fatal(err)
	}
	recent, err := indexspec.New(
		[]indexspec.Key{{Path: "age", Kind: indexspec.Desc}, {Path: "name", Kind: indexspec.Asc}},
		indexspec.Options{Name: "recent", Partial: parseDoc(t, `{"age":{"$gt":18}}`)},
	)
	if err != nil {
		t.Fatal(err)
	}
	loc, err := indexspec.New([]indexspec.Key{{Path: "loc", Kind: indexspec.Sphere2D}}, indexspec.Options{Sparse: true})
	if err != nil {
		t.Fatal(err)
	}
	col := domcol.Reconstruct(name,
		&domcol.Capped{Size: 1 << 20, Max: 100},
		&domcol.Validator{
			Rules:  parseDoc(t, `{"$jsonSchema":{"required":["email"]}}`),
			Action: domcol.ActionWarn,
			Level:  domcol.LevelModerate,
		},
		1700000000000, 3)
	return catalog.Metadata{Collection: col, Indexes: []indexspec.Spec{byEmail, recent, loc}}
}
