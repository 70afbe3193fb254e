// Package index maintains the secondary indexes of a collection.
//
// Every index maps documents (by store row id) to keys. The Manager keeps the
// set consistent with the document store: each mutation is first checked
// against every index and only then applied, so a failed unique check leaves
// all indexes untouched.
package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/store"
)

// RowID is a store row.
type RowID = store.RowID

// Index is one secondary index.
type Index interface {
	Spec() indexspec.Spec
	// Check reports a constraint violation of adding d at row. Entries that
	// already belong to row are ignored, so updates can check in place.
	Check(row RowID, d *document.Document) error
	Add(row RowID, d *document.Document)
	Remove(row RowID, d *document.Document)
	// Rows returns every indexed row.
	Rows() *roaring.Bitmap
	Multikey() bool
	Len() int
}

// Resolver returns the document stored at a row.
type Resolver func(RowID) (*document.Document, bool)

func idString(resolve Resolver, row RowID) string {
	d, ok := resolve(row)
	if !ok {
		return ""
	}
	id, _ := d.ID()
	b, _ := id.MarshalJSON()
	return string(b)
}

// fieldValues returns the index values of one path: missing becomes null and
// arrays contribute their elements.
func fieldValues(d *document.Document, path string) (vals []document.Value, present, array bool) {
	resolved := d.Resolve(path)
	if len(resolved) == 0 {
		return []document.Value{document.Null()}, false, false
	}
	array = len(resolved) > 1
	for _, v := range resolved {
		if v.Kind() == document.KindArray {
			array = true
			elems := v.ArrayValue()
			if len(elems) == 0 {
				vals = append(vals, document.Null())
				continue
			}
			vals = append(vals, elems...)
			continue
		}
		vals = append(vals, v)
	}
	return vals, true, array
}
