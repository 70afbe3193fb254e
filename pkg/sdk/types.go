package docdex

import "time"

// M is an unordered document. Keys are written with _id first, then sorted.
type M map[string]any

// E is one key/value pair of an ordered document.
type E struct {
	Key   string
	Value any
}

// D is an ordered document. Use D for sort specs, index keys and pipelines
// where key order matters.
type D []E

// A is an array.
type A []any

// Get returns the value of the first element with the given key.
func (d D) Get(key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Map converts d to an M. Nested documents stay as D.
func (d D) Map() M {
	m := make(M, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}

// Point is a geographic position stored as a geometry value.
type Point struct {
	Lng float64
	Lat float64
}

// Polygon is a list of rings. The first ring is the shell, the rest are
// holes. Rings close implicitly.
type Polygon [][]Point

// CappedOptions bound a capped collection.
type CappedOptions struct {
	Size int64 // total bytes
	Max  int64 // documents, 0 = unbounded
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string
	Capped    *CappedOptions
	Validated bool
	CreatedAt time.Time
	Revision  int
}

// IndexInfo describes one index.
type IndexInfo struct {
	Name    string
	Keys    D
	Unique  bool
	Sparse  bool
	Partial D
}

// IndexStats reports the size of one index.
type IndexStats struct {
	IndexInfo
	Entries int
}

// CollectionStats reports collection size and index sizes.
type CollectionStats struct {
	CollectionInfo
	Count   int
	Size    int64
	Indexes []IndexStats
}

// UpdateResult reports how many documents matched and changed.
type UpdateResult struct {
	Matched  int
	Modified int
}

// InsertManyResult lists the ids of the stored documents in input order.
type InsertManyResult struct {
	InsertedIDs []any
}

// Plan is the access path chosen for a query.
type Plan struct {
	Kind          string
	Index         string
	Bounds        map[string][]string
	SortSatisfied bool
	Reverse       bool
	Covered       bool
	Score         int
	Cached        bool
}
