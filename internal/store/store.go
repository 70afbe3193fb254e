// Package store keeps the documents of one collection in insertion order.
//
// Rows are addressed by monotonically increasing row ids, so iterating the
// live-row bitmap visits documents in insertion order. A Store is not safe for
// concurrent use; the catalog serializes access with the collection lock.
package store

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// RowID addresses a stored document. Larger ids were inserted later.
type RowID = uint32

// Entry is one stored document with its row id.
type Entry struct {
	Row RowID
	Doc *document.Document
}

type row struct {
	doc  *document.Document
	size int64
}

// Store holds the documents of a collection.
type Store struct {
	rows map[RowID]row
	byID map[string]RowID
	live *roaring.Bitmap
	next RowID
	size int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rows: make(map[RowID]row),
		byID: make(map[string]RowID),
		live: roaring.New(),
	}
}

// EnsureID returns the document with an _id, generating a UUIDv7 string placed
// first when it is absent. The input is never modified.
func EnsureID(d *document.Document) (*document.Document, error) {
	if d.Has(document.IDField) {
		id, _ := d.ID()
		if id.Kind() == document.KindArray {
			return nil, fmt.Errorf("_id cannot be an array: %w", domain.ErrInvalidSpec)
		}
		return d, nil
	}
	u, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate _id: %w", err)
	}
	out := d.Clone()
	out.Prepend(document.IDField, document.String(u.String()))
	return out, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int { return len(s.rows) }

// Size returns the total encoded size of stored documents in bytes.
func (s *Store) Size() int64 { return s.size }

// NextRow returns the row id the next insert will receive.
func (s *Store) NextRow() RowID { return s.next }

// Rows returns a snapshot of live row ids.
func (s *Store) Rows() *roaring.Bitmap { return s.live.Clone() }

// Get returns the document at a row.
func (s *Store) Get(r RowID) (*document.Document, bool) {
	e, ok := s.rows[r]
	return e.doc, ok
}

// Lookup resolves an _id key string to its row.
func (s *Store) Lookup(idKey string) (RowID, bool) {
	r, ok := s.byID[idKey]
	return r, ok
}

// Insert appends a document that must already carry an _id.
func (s *Store) Insert(d *document.Document) (RowID, error) {
	r := s.next
	if err := s.InsertAt(r, d); err != nil {
		return 0, err
	}
	return r, nil
}

// InsertAt stores a document at a specific row, used when reloading pages
// and when undoing deletes. The row must be free.
func (s *Store) InsertAt(r RowID, d *document.Document) error {
	id, ok := d.ID()
	if !ok {
		return fmt.Errorf("document has no _id: %w", domain.ErrInvalidSpec)
	}
	key := document.KeyString(id)
	if _, dup := s.byID[key]; dup {
		idJSON, _ := id.MarshalJSON()
		return &domain.DuplicateKeyError{
			Index:      "_id_",
			Key:        string(idJSON),
			ExistingID: string(idJSON),
			ID:         string(idJSON),
		}
	}
	if _, taken := s.rows[r]; taken {
		return fmt.Errorf("row %d already in use: %w", r, domain.ErrAlreadyExists)
	}
	size := int64(d.Size())
	s.rows[r] = row{doc: d, size: size}
	s.byID[key] = r
	s.live.Add(r)
	s.size += size
	if r >= s.next {
		s.next = r + 1
	}
	return nil
}

// Replace swaps the document at a row and returns the previous one.
// The _id must not change.
func (s *Store) Replace(r RowID, d *document.Document) (*document.Document, error) {
	old, ok := s.rows[r]
	if !ok {
		return nil, fmt.Errorf("row %d: %w", r, domain.ErrDocumentNotFound)
	}
	if old.doc.IDKey() != d.IDKey() {
		return nil, fmt.Errorf("replace changes _id: %w", domain.ErrInvalidSpec)
	}
	size := int64(d.Size())
	s.rows[r] = row{doc: d, size: size}
	s.size += size - old.size
	return old.doc, nil
}

// Delete removes a row and returns its document.
func (s *Store) Delete(r RowID) (*document.Document, bool) {
	old, ok := s.rows[r]
	if !ok {
		return nil, false
	}
	delete(s.rows, r)
	delete(s.byID, old.doc.IDKey())
	s.live.Remove(r)
	s.size -= old.size
	return old.doc, true
}

// Clear removes every document.
func (s *Store) Clear() []Entry {
	out := s.Page(0, s.Len())
	s.rows = make(map[RowID]row)
	s.byID = make(map[string]RowID)
	s.live.Clear()
	s.size = 0
	return out
}

// Page returns up to limit documents with row ids >= from, in insertion order.
func (s *Store) Page(from RowID, limit int) []Entry {
	out := make([]Entry, 0, min(limit, s.Len()))
	it := s.live.Iterator()
	it.AdvanceIfNeeded(from)
	for it.HasNext() && len(out) < limit {
		r := it.Next()
		out = append(out, Entry{Row: r, Doc: s.rows[r].doc})
	}
	return out
}

// All yields every document in insertion order. The store must not be
// mutated while the sequence is consumed.
func (s *Store) All() iter.Seq2[RowID, *document.Document] {
	return func(yield func(RowID, *document.Document) bool) {
		it := s.live.Iterator()
		for it.HasNext() {
			r := it.Next()
			if !yield(r, s.rows[r].doc) {
				return
			}
		}
	}
}

// Evictions lists the oldest rows that must be removed to bring the store back
// within the capped limits. The newest row is never evicted.
func (s *Store) Evictions(c *collection.Capped) []RowID {
	if c == nil || s.live.IsEmpty() {
		return nil
	}
	newest := s.live.Maximum()
	size, count := s.size, int64(s.Len())
	var out []RowID
	it := s.live.Iterator()
	for it.HasNext() {
		if size <= c.Size && (c.Max == 0 || count <= c.Max) {
			break
		}
		r := it.Next()
		if r == newest {
			break
		}
		out = append(out, r)
		size -= s.rows[r].size
		count--
	}
	return out
}
