package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

func withID(id int64, fields ...document.Field) *document.Document {
	d := document.FromFields(fields...)
	d.Prepend(document.IDField, document.Int(id))
	return d
}

func TestEnsureID_GeneratesFirst(t *testing.T) {
	in := document.FromFields(document.Field{Key: "name", Value: document.String("Kim")})
	out, err := EnsureID(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "name"}, out.Keys())
	assert.False(t, in.Has("_id"), "input must not be modified")

	id, _ := out.ID()
	assert.Equal(t, document.KindString, id.Kind())
	assert.Len(t, id.StringValue(), 36)

	again, err := EnsureID(out)
	require.NoError(t, err)
	assert.Same(t, out, again)
}

func TestEnsureID_RejectsArray(t *testing.T) {
	d := document.FromFields(document.Field{Key: "_id", Value: document.Array(document.Int(1))})
	_, err := EnsureID(d)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestInsertLookupDelete(t *testing.T) {
	s := New()
	r1, err := s.Insert(withID(1))
	require.NoError(t, err)
	r2, err := s.Insert(withID(2))
	require.NoError(t, err)
	assert.Less(t, r1, r2)

	_, err = s.Insert(withID(1))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	r, ok := s.Lookup(document.KeyString(document.Float(2)))
	require.True(t, ok, "int and float ids share a key")
	assert.Equal(t, r2, r)

	old, ok := s.Delete(r1)
	require.True(t, ok)
	id, _ := old.ID()
	assert.Equal(t, int64(1), id.IntValue())
	_, ok = s.Delete(r1)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestPage_InsertionOrder(t *testing.T) {
	s := New()
	for i := range 5 {
		_, err := s.Insert(withID(int64(10 - i)))
		require.NoError(t, err)
	}
	first := s.Page(0, 2)
	require.Len(t, first, 2)
	id, _ := first[0].Doc.ID()
	assert.Equal(t, int64(10), id.IntValue())

	rest := s.Page(first[1].Row+1, 10)
	require.Len(t, rest, 3)
	id, _ = rest[2].Doc.ID()
	assert.Equal(t, int64(6), id.IntValue())
}

func TestReplace_KeepsRowAndTracksSize(t *testing.T) {
	s := New()
	r, err := s.Insert(withID(1))
	require.NoError(t, err)
	before := s.Size()

	bigger := withID(1, document.Field{Key: "note", Value: document.String(strings.Repeat("x", 50))})
	_, err = s.Replace(r, bigger)
	require.NoError(t, err)
	assert.Greater(t, s.Size(), before)

	got, _ := s.Get(r)
	assert.True(t, got.Has("note"))

	_, err = s.Replace(r, withID(2))
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestInsertAt_ReloadOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.InsertAt(7, withID(1)))
	require.NoError(t, s.InsertAt(3, withID(2)))
	assert.Equal(t, RowID(8), s.NextRow())

	page := s.Page(0, 10)
	require.Len(t, page, 2)
	assert.Equal(t, RowID(3), page[0].Row)
	assert.ErrorIs(t, s.InsertAt(3, withID(9)), domain.ErrAlreadyExists)
}

func TestEvictions(t *testing.T) {
	s := New()
	for i := range 5 {
		_, err := s.Insert(withID(int64(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, []RowID{0, 1}, s.Evictions(&collection.Capped{Size: 1 << 20, Max: 3}))
	assert.Nil(t, s.Evictions(&collection.Capped{Size: 1 << 20}))
	assert.Nil(t, s.Evictions(nil))

	// a size budget below one document keeps only the newest
	assert.Equal(t, []RowID{0, 1, 2, 3}, s.Evictions(&collection.Capped{Size: 1}))
}

func TestClear(t *testing.T) {
	s := New()
	_, _ = s.Insert(withID(1))
	_, _ = s.Insert(withID(2))
	removed := s.Clear()
	assert.Len(t, removed, 2)
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Size())
	_, ok := s.Lookup(document.KeyString(document.Int(1)))
	assert.False(t, ok)
}
