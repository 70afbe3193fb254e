package index

import (
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

type keyEntry struct {
	key  []document.Value
	rows *roaring.Bitmap
}

// Ordered is a sorted index over one or more paths. Array values produce one
// key per element (multikey); compound keys take the cartesian product.
type Ordered struct {
	collection string
	spec       indexspec.Spec
	dirs       []int
	entries    []keyEntry
	rows       *roaring.Bitmap
	multikey   bool
	resolve    Resolver
}

// NewOrdered creates an empty ordered index.
func NewOrdered(collection string, spec indexspec.Spec, resolve Resolver) *Ordered {
	dirs := make([]int, len(spec.Keys()))
	for i, k := range spec.Keys() {
		dirs[i] = k.Direction()
	}
	return &Ordered{
		collection: collection,
		spec:       spec,
		dirs:       dirs,
		rows:       roaring.New(),
		resolve:    resolve,
	}
}

// Spec implements Index.
func (o *Ordered) Spec() indexspec.Spec { return o.spec }

// Multikey reports whether any indexed document had an array at an indexed path.
func (o *Ordered) Multikey() bool { return o.multikey }

// Len implements Index.
func (o *Ordered) Len() int { return int(o.rows.GetCardinality()) }

// Rows implements Index.
func (o *Ordered) Rows() *roaring.Bitmap { return o.rows.Clone() }

// KeyCount returns the number of distinct key tuples.
func (o *Ordered) KeyCount() int { return len(o.entries) }

// keysOf returns the distinct key tuples of d, or nil when a sparse index
// skips the document.
func (o *Ordered) keysOf(d *document.Document) (keys [][]document.Value, multi bool) {
	paths := o.spec.Paths()
	perField := make([][]document.Value, len(paths))
	anyPresent := false
	for i, p := range paths {
		vals, present, array := fieldValues(d, p)
		anyPresent = anyPresent || present
		multi = multi || array
		perField[i] = vals
	}
	if o.spec.Sparse() && !anyPresent {
		return nil, false
	}
	keys = [][]document.Value{{}}
	for _, vals := range perField {
		next := make([][]document.Value, 0, len(keys)*len(vals))
		for _, prefix := range keys {
			for _, v := range vals {
				next = append(next, append(slices.Clone(prefix), v))
			}
		}
		keys = next
	}
	slices.SortFunc(keys, o.compareKeys)
	keys = slices.CompactFunc(keys, func(a, b []document.Value) bool { return o.compareKeys(a, b) == 0 })
	return keys, multi
}

func (o *Ordered) compareKeys(a, b []document.Value) int {
	for i := range a {
		if c := document.Compare(a[i], b[i]) * o.dirs[i]; c != 0 {
			return c
		}
	}
	return 0
}

func (o *Ordered) find(key []document.Value) (int, bool) {
	return slices.BinarySearchFunc(o.entries, key, func(e keyEntry, k []document.Value) int {
		return o.compareKeys(e.key, k)
	})
}

// Check implements Index. Only unique indexes can reject a document.
func (o *Ordered) Check(row RowID, d *document.Document) error {
	if !o.spec.Unique() {
		return nil
	}
	keys, _ := o.keysOf(d)
	for _, k := range keys {
		pos, found := o.find(k)
		if !found {
			continue
		}
		it := o.entries[pos].rows.Iterator()
		for it.HasNext() {
			other := it.Next()
			if other == row {
				continue
			}
			return o.duplicate(k, other, d)
		}
	}
	return nil
}

func (o *Ordered) duplicate(key []document.Value, existing RowID, d *document.Document) error {
	id, _ := d.ID()
	idJSON, _ := id.MarshalJSON()
	keyJSON, _ := document.Array(key...).MarshalJSON()
	return &domain.DuplicateKeyError{
		Collection: o.collection,
		Index:      o.spec.Name(),
		Key:        string(keyJSON),
		ExistingID: idString(o.resolve, existing),
		ID:         string(idJSON),
	}
}

// Add implements Index.
func (o *Ordered) Add(row RowID, d *document.Document) {
	keys, multi := o.keysOf(d)
	if keys == nil {
		return
	}
	o.multikey = o.multikey || multi
	for _, k := range keys {
		pos, found := o.find(k)
		if !found {
			o.entries = slices.Insert(o.entries, pos, keyEntry{key: k, rows: roaring.New()})
		}
		o.entries[pos].rows.Add(row)
	}
	o.rows.Add(row)
}

// Remove implements Index.
func (o *Ordered) Remove(row RowID, d *document.Document) {
	keys, _ := o.keysOf(d)
	for _, k := range keys {
		pos, found := o.find(k)
		if !found {
			continue
		}
		o.entries[pos].rows.Remove(row)
		if o.entries[pos].rows.IsEmpty() {
			o.entries = slices.Delete(o.entries, pos, pos+1)
		}
	}
	o.rows.Remove(row)
}

// Bounds restrict the leading fields of an ordered scan. Bounds[i] is the union
// of allowed intervals for key field i. Fewer bounds than fields leaves the
// trailing fields unconstrained.
type Bounds [][]filter.Interval

// Scan returns rows in index order. Within one key rows keep insertion order,
// also when reverse walks the keys backwards, so sorts stay stable.
func (o *Ordered) Scan(b Bounds, reverse bool) []RowID {
	pos := o.positions(b)
	if reverse {
		slices.Reverse(pos)
	}
	seen := roaring.New()
	out := make([]RowID, 0, len(pos))
	for _, p := range pos {
		it := o.entries[p].rows.Iterator()
		for it.HasNext() {
			r := it.Next()
			if seen.CheckedAdd(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Candidates returns the set of rows matching the bounds.
func (o *Ordered) Candidates(b Bounds) *roaring.Bitmap {
	out := roaring.New()
	for _, p := range o.positions(b) {
		out.Or(o.entries[p].rows)
	}
	return out
}

func (o *Ordered) positions(b Bounds) []int {
	if len(b) == 0 {
		all := make([]int, len(o.entries))
		for i := range all {
			all[i] = i
		}
		return all
	}
	var pos []int
	for _, iv := range b[0] {
		start := sort.Search(len(o.entries), func(i int) bool {
			return !o.before(o.entries[i].key[0], iv)
		})
		for i := start; i < len(o.entries) && !o.after(o.entries[i].key[0], iv); i++ {
			if o.within(o.entries[i].key, b) {
				pos = append(pos, i)
			}
		}
	}
	slices.Sort(pos)
	return slices.Compact(pos)
}

// before reports whether v sorts ahead of the interval in the leading field's order.
func (o *Ordered) before(v document.Value, iv filter.Interval) bool {
	if o.dirs[0] > 0 {
		return belowLow(v, iv)
	}
	return aboveHigh(v, iv)
}

// after reports whether v sorts past the interval in the leading field's order.
func (o *Ordered) after(v document.Value, iv filter.Interval) bool {
	if o.dirs[0] > 0 {
		return aboveHigh(v, iv)
	}
	return belowLow(v, iv)
}

func belowLow(v document.Value, iv filter.Interval) bool {
	if iv.BelowLow(v) {
		return true
	}
	// a typed interval open at the bottom starts at its type bracket
	if iv.Typed && iv.Low.Unbounded && !iv.High.Unbounded {
		return !document.SameTypeBracket(v, iv.High.Value) && document.Compare(v, iv.High.Value) < 0
	}
	return false
}

func aboveHigh(v document.Value, iv filter.Interval) bool {
	if iv.AboveHigh(v) {
		return true
	}
	if iv.Typed && iv.High.Unbounded && !iv.Low.Unbounded {
		return !document.SameTypeBracket(v, iv.Low.Value) && document.Compare(v, iv.Low.Value) > 0
	}
	return false
}

func (o *Ordered) within(key []document.Value, b Bounds) bool {
	for f, ivs := range b {
		if f >= len(key) {
			break
		}
		ok := false
		for _, iv := range ivs {
			if iv.Contains(key[f]) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
