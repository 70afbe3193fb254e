package document

import "strconv"

// Size returns the approximate encoded size of the document in bytes,
// following the BSON layout: a length prefix, typed elements and a terminator.
func (d *Document) Size() int {
	n := 5
	for _, f := range d.Fields() {
		n += 1 + len(f.Key) + 1 + valueSize(f.Value)
	}
	return n
}

func valueSize(v Value) int {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat, KindDate:
		return 8
	case KindString:
		return 4 + len(v.s) + 1
	case KindArray:
		n := 5
		for i, e := range v.arr {
			n += 1 + len(strconv.Itoa(i)) + 1 + valueSize(e)
		}
		return n
	case KindDocument:
		return v.doc.Size()
	case KindGeometry:
		return GeoJSON(v.geom).Size()
	}
	return 0
}
