package collection

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
)

// --- Mocks ---

type mockCatalog struct {
	created      string
	createdOpts  domcol.Options
	dropped      string
	validator    *domcol.Validator
	names        []string
	getResult    domcol.Collection
	statsResult  catalog.Stats
	createErr    error
	getErr       error
	dropErr      error
	validatorErr error
	statsErr     error
}

func (m *mockCatalog) CreateCollection(_ context.Context, name string, opts domcol.Options) error {
	m.created, m.createdOpts = name, opts
	return m.createErr
}

func (m *mockCatalog) DropCollection(_ context.Context, name string) error {
	m.dropped = name
	return m.dropErr
}

func (m *mockCatalog) ListCollections() []string { return m.names }

func (m *mockCatalog) Collection(_ string) (domcol.Collection, error) {
	return m.getResult, m.getErr
}

func (m *mockCatalog) SetValidator(_ context.Context, _ string, v *domcol.Validator) error {
	m.validator = v
	return m.validatorErr
}

func (m *mockCatalog) Stats(_ string) (catalog.Stats, error) {
	return m.statsResult, m.statsErr
}

func (m *mockCatalog) AllStats() []catalog.Stats {
	return []catalog.Stats{m.statsResult}
}

func makeCollection(t *testing.T, name string) domcol.Collection {
	t.Helper()
	col, err := domcol.New(name, domcol.Options{})
	if err != nil {
		t.Fatalf("domcol.New: %v", err)
	}
	return col
}

// --- Tests ---

func TestCreate_Success(t *testing.T) {
	db := &mockCatalog{getResult: makeCollection(t, "logs")}
	svc := New(db)

	opts := domcol.Options{Capped: &domcol.Capped{Size: 1024}}
	col, err := svc.Create(context.Background(), "logs", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col.Name() != "logs" {
		t.Errorf("expected name 'logs', got %q", col.Name())
	}
	if db.created != "logs" || db.createdOpts.Capped == nil {
		t.Errorf("options not forwarded: %q %+v", db.created, db.createdOpts)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	db := &mockCatalog{createErr: domain.ErrAlreadyExists}
	svc := New(db)

	_, err := svc.Create(context.Background(), "logs", domcol.Options{})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := &mockCatalog{getErr: domain.ErrCollectionNotFound}
	svc := New(db)

	_, err := svc.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	db := &mockCatalog{names: []string{"a", "b"}}
	svc := New(db)

	if got := svc.List(context.Background()); len(got) != 2 || got[0] != "a" {
		t.Errorf("unexpected names: %v", got)
	}
}

func TestDrop(t *testing.T) {
	db := &mockCatalog{}
	svc := New(db)

	if err := svc.Drop(context.Background(), "logs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.dropped != "logs" {
		t.Errorf("expected drop of 'logs', got %q", db.dropped)
	}

	db.dropErr = domain.ErrCollectionNotFound
	if err := svc.Drop(context.Background(), "logs"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestSetValidator(t *testing.T) {
	db := &mockCatalog{}
	svc := New(db)

	v := &domcol.Validator{Action: domcol.ActionWarn}
	if err := svc.SetValidator(context.Background(), "users", v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.validator != v {
		t.Error("validator not forwarded")
	}

	db.validatorErr = domain.ErrInvalidSpec
	if err := svc.SetValidator(context.Background(), "users", v); !errors.Is(err, domain.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestStats(t *testing.T) {
	db := &mockCatalog{statsResult: catalog.Stats{Count: 7}}
	svc := New(db)

	st, err := svc.Stats(context.Background(), "users")
	if err != nil || st.Count != 7 {
		t.Fatalf("unexpected stats: %+v, %v", st, err)
	}
	if all := svc.AllStats(context.Background()); len(all) != 1 {
		t.Errorf("expected 1 stats entry, got %d", len(all))
	}

	db.statsErr = domain.ErrCollectionNotFound
	if _, err := svc.Stats(context.Background(), "x"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}
