package document

import (
	"math"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain/geo"
)

// Kind is the runtime type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindArray
	KindDocument
	KindGeometry
)

var kindNames = [...]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "double",
	KindString:   "string",
	KindDate:     "date",
	KindArray:    "array",
	KindDocument: "object",
	KindGeometry: "geometry",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindFromName resolves type aliases as used by $type and bsonType.
func KindFromName(name string) (Kind, bool) {
	switch name {
	case "null":
		return KindNull, true
	case "bool", "boolean":
		return KindBool, true
	case "int", "long":
		return KindInt, true
	case "double", "decimal":
		return KindFloat, true
	case "string":
		return KindString, true
	case "date", "timestamp":
		return KindDate, true
	case "array":
		return KindArray, true
	case "object":
		return KindDocument, true
	case "geometry":
		return KindGeometry, true
	}
	return 0, false
}

// Geometry is a point or a polygon value.
type Geometry struct {
	Point   geo.Point
	Polygon *geo.Polygon
}

// IsPolygon reports whether the geometry is a polygon.
func (g Geometry) IsPolygon() bool { return g.Polygon != nil }

// Value is a tagged union over every field type a document may hold.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	arr  []Value
	doc  *Document
	geom Geometry
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Date wraps a timestamp, normalized to UTC.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t.UTC()} }

// Array wraps a list of values. The slice is not copied.
func Array(vals ...Value) Value {
	if vals == nil {
		vals = []Value{}
	}
	return Value{kind: KindArray, arr: vals}
}

// Doc wraps a nested document.
func Doc(d *Document) Value {
	if d == nil {
		d = New()
	}
	return Value{kind: KindDocument, doc: d}
}

// PointValue wraps a geometry point.
func PointValue(p geo.Point) Value {
	return Value{kind: KindGeometry, geom: Geometry{Point: p}}
}

// PolygonValue wraps a geometry polygon.
func PolygonValue(pg geo.Polygon) Value {
	return Value{kind: KindGeometry, geom: Geometry{Polygon: &pg}}
}

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether v is an int or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// BoolValue returns the boolean payload.
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the integer payload, truncating floats.
func (v Value) IntValue() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// FloatValue returns the numeric payload as float64.
func (v Value) FloatValue() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// StringValue returns the string payload.
func (v Value) StringValue() string { return v.s }

// TimeValue returns the date payload.
func (v Value) TimeValue() time.Time { return v.t }

// ArrayValue returns the array payload. Callers must not modify it.
func (v Value) ArrayValue() []Value { return v.arr }

// DocumentValue returns the nested document payload.
func (v Value) DocumentValue() *Document { return v.doc }

// GeometryValue returns the geometry payload.
func (v Value) GeometryValue() Geometry { return v.geom }

// Truthy implements expression truthiness: null, false and zero are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	default:
		return true
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: out}
	case KindDocument:
		return Value{kind: KindDocument, doc: v.doc.Clone()}
	default:
		return v
	}
}
