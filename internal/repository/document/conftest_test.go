package document

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
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

func newTestRepo(t *testing.T, c Compression) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, NewCodec(c), "docdex:"), ms
}

// testDocument covers every value kind.
func testDocument(t *testing.T) *domdoc.Document {
	t.Helper()
	pg, err := geo.NewPolygon([][]geo.Point{{{Lng: 0, Lat: 0}, {Lng: 1, Lat: 0}, {Lng: 1, Lat: 1}, {Lng: 0, Lat: 0}}})
	if err != nil {
		t.Fatal(err)
	}
	return domdoc.FromFields(
		domdoc.Field{Key: "_id", Value: domdoc.String("doc-1")},
		domdoc.Field{Key: "n", Value: domdoc.Null()},
		domdoc.Field{Key: "ok", Value: domdoc.Bool(true)},
		domdoc.Field{Key: "count", Value: domdoc.Int(42)},
		domdoc.Field{Key: "whole", Value: domdoc.Float(3)},
		domdoc.Field{Key: "ratio", Value: domdoc.Float(0.25)},
		domdoc.Field{Key: "at", Value: domdoc.Date(time.Date(2025, 6, 1, 10, 30, 0, 123, time.UTC))},
		domdoc.Field{Key: "tags", Value: domdoc.Array(domdoc.String("a"), domdoc.Int(1))},
		domdoc.Field{Key: "nested", Value: domdoc.Doc(domdoc.FromFields(
			domdoc.Field{Key: "z", Value: domdoc.Int(1)},
			domdoc.Field{Key: "a", Value: domdoc.Doc(domdoc.New())},
		))},
		domdoc.Field{Key: "loc", Value: domdoc.PointValue(geo.Point{Lng: 33.4, Lat: 34.7})},
		domdoc.Field{Key: "area", Value: domdoc.PolygonValue(pg)},
	)
}
