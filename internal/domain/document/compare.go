package document

import (
	"cmp"
	"math"
	"strconv"
	"strings"
)

// typeOrder ranks kinds for cross-type comparison:
// null < numbers < string < object < array < bool < date < geometry.
func typeOrder(k Kind) int {
	switch k {
	case KindNull:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindBool:
		return 6
	case KindDate:
		return 7
	case KindGeometry:
		return 8
	default:
		return 9
	}
}

// SameTypeBracket reports whether two values compare within one type class.
// Range operators only match values of the operand's class.
func SameTypeBracket(a, b Value) bool {
	return typeOrder(a.kind) == typeOrder(b.kind)
}

// Compare returns -1, 0 or +1 using the canonical total order over values.
// Ints and floats compare numerically.
func Compare(a, b Value) int {
	ta, tb := typeOrder(a.kind), typeOrder(b.kind)
	if ta != tb {
		return cmp.Compare(ta, tb)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInt, KindFloat:
		return compareNumbers(a, b)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindDocument:
		return CompareDocuments(a.doc, b.doc)
	case KindArray:
		return compareArrays(a.arr, b.arr)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindDate:
		return a.t.Compare(b.t)
	case KindGeometry:
		return compareGeometry(a.geom, b.geom)
	}
	return 0
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

func compareNumbers(a, b Value) int {
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.i, b.i)
	}
	af, bf := a.FloatValue(), b.FloatValue()
	// NaN sorts below every other number.
	switch an, bn := math.IsNaN(af), math.IsNaN(bf); {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	return cmp.Compare(af, bf)
}

func compareArrays(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// CompareDocuments compares field by field: key first, then value.
func CompareDocuments(a, b *Document) int {
	af, bf := a.Fields(), b.Fields()
	for i := 0; i < len(af) && i < len(bf); i++ {
		if c := strings.Compare(af[i].Key, bf[i].Key); c != 0 {
			return c
		}
		if c := Compare(af[i].Value, bf[i].Value); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(af), len(bf))
}

func compareGeometry(a, b Geometry) int {
	if a.IsPolygon() != b.IsPolygon() {
		if a.IsPolygon() {
			return 1
		}
		return -1
	}
	if !a.IsPolygon() {
		if c := cmp.Compare(a.Point.Lng, b.Point.Lng); c != 0 {
			return c
		}
		return cmp.Compare(a.Point.Lat, b.Point.Lat)
	}
	return strings.Compare(KeyString(PolygonValue(*a.Polygon)), KeyString(PolygonValue(*b.Polygon)))
}

// KeyString returns a canonical string for v such that Equal values produce
// equal strings. Used for hashing group keys and identifiers.
func KeyString(v Value) string {
	var b strings.Builder
	writeKey(&b, v)
	return b.String()
}

func writeKey(b *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		b.WriteString("z")
	case KindBool:
		if v.b {
			b.WriteString("t")
		} else {
			b.WriteString("f")
		}
	case KindInt, KindFloat:
		b.WriteString("n")
		b.WriteString(canonicalNumber(v))
		b.WriteByte(';')
	case KindString:
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(v.s)))
		b.WriteByte(':')
		b.WriteString(v.s)
	case KindDate:
		b.WriteString("d")
		b.WriteString(strconv.FormatInt(v.t.UnixNano(), 10))
		b.WriteByte(';')
	case KindArray:
		b.WriteString("[")
		for _, e := range v.arr {
			writeKey(b, e)
		}
		b.WriteString("]")
	case KindDocument:
		b.WriteString("{")
		for _, f := range v.doc.Fields() {
			b.WriteString(strconv.Itoa(len(f.Key)))
			b.WriteByte(':')
			b.WriteString(f.Key)
			writeKey(b, f.Value)
		}
		b.WriteString("}")
	case KindGeometry:
		b.WriteString("g")
		if v.geom.IsPolygon() {
			for _, ring := range v.geom.Polygon.Rings {
				b.WriteString("(")
				for _, p := range ring {
					b.WriteString(strconv.FormatFloat(p.Lng, 'g', -1, 64))
					b.WriteByte(',')
					b.WriteString(strconv.FormatFloat(p.Lat, 'g', -1, 64))
					b.WriteByte(';')
				}
				b.WriteString(")")
			}
			return
		}
		b.WriteString(strconv.FormatFloat(v.geom.Point.Lng, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v.geom.Point.Lat, 'g', -1, 64))
		b.WriteByte(';')
	}
}

func canonicalNumber(v Value) string {
	if v.kind == KindInt {
		return strconv.FormatInt(v.i, 10)
	}
	f := v.f
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
