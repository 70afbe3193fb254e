package index

import (
	"fmt"
	"iter"
	"slices"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// Entry is one registered index with its parsed partial filter.
type Entry struct {
	Index   Index
	Partial *filter.Filter
}

// Spec returns the index spec.
func (e *Entry) Spec() indexspec.Spec { return e.Index.Spec() }

// Covers reports whether d belongs in the index under its partial filter.
func (e *Entry) Covers(d *document.Document) (bool, error) {
	if e.Partial == nil {
		return true, nil
	}
	return e.Partial.Match(d)
}

// Manager owns the indexes of one collection. It is not safe for concurrent
// use; the catalog serializes writers per collection.
type Manager struct {
	collection string
	resolve    Resolver
	entries    []*Entry
}

// NewManager creates a manager holding only the _id_ index.
func NewManager(collection string, resolve Resolver) *Manager {
	m := &Manager{collection: collection, resolve: resolve}
	e, _ := m.build(indexspec.ID())
	m.entries = []*Entry{e}
	return m
}

func (m *Manager) build(spec indexspec.Spec) (*Entry, error) {
	e := &Entry{}
	if p := spec.Partial(); p != nil {
		f, err := filter.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("partial filter of %s: %w", spec.Name(), err)
		}
		e.Partial = f
	}
	switch {
	case spec.IsGeo():
		e.Index = NewGeo(spec, m.resolve)
	case spec.IsText():
		e.Index = NewText(spec)
	default:
		e.Index = NewOrdered(m.collection, spec, m.resolve)
	}
	return e, nil
}

// Create registers spec and backfills it from rows. An equivalent existing
// index is returned as is with created set to false.
func (m *Manager) Create(spec indexspec.Spec, rows iter.Seq2[RowID, *document.Document]) (name string, created bool, err error) {
	for _, e := range m.entries {
		have := e.Spec()
		switch {
		case have.SameKeys(spec):
			if have.SameOptions(spec) {
				return have.Name(), false, nil
			}
			return "", false, fmt.Errorf("index options conflict with %s: %w", have.Name(), domain.ErrInvalidSpec)
		case have.Name() == spec.Name():
			return "", false, fmt.Errorf("index %s with a different spec: %w", spec.Name(), domain.ErrAlreadyExists)
		case have.IsText() && spec.IsText():
			return "", false, fmt.Errorf("collection %q already has text index %s: %w",
				m.collection, have.Name(), domain.ErrInvalidSpec)
		}
	}

	e, err := m.build(spec)
	if err != nil {
		return "", false, err
	}
	for row, d := range rows {
		ok, err := e.Covers(d)
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}
		if err := e.Index.Check(row, d); err != nil {
			return "", false, err
		}
		e.Index.Add(row, d)
	}
	m.entries = append(m.entries, e)
	return spec.Name(), true, nil
}

// Drop removes the named index and returns its spec.
func (m *Manager) Drop(name string) (indexspec.Spec, error) {
	if name == indexspec.IDIndexName {
		return indexspec.Spec{}, fmt.Errorf("cannot drop %s: %w", name, domain.ErrInvalidSpec)
	}
	i := slices.IndexFunc(m.entries, func(e *Entry) bool { return e.Spec().Name() == name })
	if i < 0 {
		return indexspec.Spec{}, fmt.Errorf("%s on %q: %w", name, m.collection, domain.ErrIndexNotFound)
	}
	spec := m.entries[i].Spec()
	m.entries = slices.Delete(m.entries, i, i+1)
	return spec, nil
}

// DropAll removes every index except _id_ and returns the dropped specs in
// creation order.
func (m *Manager) DropAll() []indexspec.Spec {
	var dropped []indexspec.Spec
	for _, e := range m.entries[1:] {
		dropped = append(dropped, e.Spec())
	}
	m.entries = m.entries[:1]
	return dropped
}

// List returns the index specs in creation order.
func (m *Manager) List() []indexspec.Spec {
	out := make([]indexspec.Spec, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Spec()
	}
	return out
}

// Entries returns the registered indexes in creation order.
func (m *Manager) Entries() []*Entry { return slices.Clone(m.entries) }

// Get returns the named index.
func (m *Manager) Get(name string) (*Entry, bool) {
	for _, e := range m.entries {
		if e.Spec().Name() == name {
			return e, true
		}
	}
	return nil, false
}

// GeoIndexes returns the 2dsphere indexes in creation order.
func (m *Manager) GeoIndexes() []*Geo {
	var out []*Geo
	for _, e := range m.entries {
		if g, ok := e.Index.(*Geo); ok {
			out = append(out, g)
		}
	}
	return out
}

// GeoIndex returns the 2dsphere index over path.
func (m *Manager) GeoIndex(path string) (*Geo, bool) {
	for _, g := range m.GeoIndexes() {
		if g.Path() == path {
			return g, true
		}
	}
	return nil, false
}

// TextIndex returns the text index, if any.
func (m *Manager) TextIndex() (*Text, bool) {
	for _, e := range m.entries {
		if t, ok := e.Index.(*Text); ok {
			return t, true
		}
	}
	return nil, false
}

// Len returns the number of indexes including _id_.
func (m *Manager) Len() int { return len(m.entries) }

// OnInsert indexes a new document. Either every index accepts it or none is
// changed.
func (m *Manager) OnInsert(row RowID, d *document.Document) error {
	covered, err := m.check(row, d)
	if err != nil {
		return err
	}
	for i, e := range m.entries {
		if covered[i] {
			e.Index.Add(row, d)
		}
	}
	return nil
}

// OnUpdate moves row from old to updated in every index. Partial filters are
// re-evaluated against both versions.
func (m *Manager) OnUpdate(row RowID, old, updated *document.Document) error {
	covered, err := m.check(row, updated)
	if err != nil {
		return err
	}
	wasCovered := make([]bool, len(m.entries))
	for i, e := range m.entries {
		if wasCovered[i], err = e.Covers(old); err != nil {
			return err
		}
	}
	for i, e := range m.entries {
		if wasCovered[i] {
			e.Index.Remove(row, old)
		}
		if covered[i] {
			e.Index.Add(row, updated)
		}
	}
	return nil
}

// OnDelete removes row from every index.
func (m *Manager) OnDelete(row RowID, d *document.Document) {
	for _, e := range m.entries {
		e.Index.Remove(row, d)
	}
}

// Check reports the first constraint d would violate at row without
// changing any index.
func (m *Manager) Check(row RowID, d *document.Document) error {
	_, err := m.check(row, d)
	return err
}

func (m *Manager) check(row RowID, d *document.Document) ([]bool, error) {
	covered := make([]bool, len(m.entries))
	for i, e := range m.entries {
		ok, err := e.Covers(d)
		if err != nil {
			return nil, err
		}
		covered[i] = ok
		if !ok {
			continue
		}
		if err := e.Index.Check(row, d); err != nil {
			return nil, err
		}
	}
	return covered, nil
}

// Rebuild recreates every index empty and fills it from rows. Specs and
// creation order are kept.
func (m *Manager) Rebuild(rows iter.Seq2[RowID, *document.Document]) error {
	fresh := make([]*Entry, len(m.entries))
	for i, e := range m.entries {
		n, err := m.build(e.Spec())
		if err != nil {
			return err
		}
		fresh[i] = n
	}
	for row, d := range rows {
		for _, e := range fresh {
			ok, err := e.Covers(d)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := e.Index.Check(row, d); err != nil {
				return err
			}
			e.Index.Add(row, d)
		}
	}
	m.entries = fresh
	return nil
}
