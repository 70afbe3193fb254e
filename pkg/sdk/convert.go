package docdex

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
)

const tagKey = "docdex"

var (
	timeType    = reflect.TypeFor[time.Time]()
	pointType   = reflect.TypeFor[Point]()
	polygonType = reflect.TypeFor[Polygon]()
	dType       = reflect.TypeFor[D]()
)

// fieldMeta maps one struct field to a document key.
type fieldMeta struct {
	index     []int
	name      string
	omitEmpty bool
}

var structCache sync.Map // reflect.Type -> []fieldMeta

// structFields returns the tagged layout of t. Untagged exported fields use
// the Go field name; anonymous struct fields without a tag are flattened.
func structFields(t reflect.Type) []fieldMeta {
	if cached, ok := structCache.Load(t); ok {
		return cached.([]fieldMeta)
	}
	var out []fieldMeta
	collectFields(t, nil, &out)
	actual, _ := structCache.LoadOrStore(t, out)
	return actual.([]fieldMeta)
}

func collectFields(t reflect.Type, prefix []int, out *[]fieldMeta) {
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		idx := append(slices.Clone(prefix), i)
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, idx, out)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		*out = append(*out, fieldMeta{index: idx, name: name, omitEmpty: opts == "omitempty"})
	}
}

func unsupported(t reflect.Type) error {
	return fmt.Errorf("unsupported Go type %s: %w", t, domain.ErrTypeMismatch)
}

// toValue converts a Go value into a document value.
func toValue(v any) (domdoc.Value, error) {
	switch x := v.(type) {
	case nil:
		return domdoc.Null(), nil
	case bool:
		return domdoc.Bool(x), nil
	case int:
		return domdoc.Int(int64(x)), nil
	case int64:
		return domdoc.Int(x), nil
	case float64:
		return domdoc.Float(x), nil
	case string:
		return domdoc.String(x), nil
	case time.Time:
		return domdoc.Date(x), nil
	case Point:
		p, err := geo.NewPoint(x.Lng, x.Lat)
		if err != nil {
			return domdoc.Value{}, fmt.Errorf("%w: %w", domain.ErrInvalidSpec, err)
		}
		return domdoc.PointValue(p), nil
	case Polygon:
		return polygonValue(x)
	case D:
		d, err := orderedDocument(x)
		if err != nil {
			return domdoc.Value{}, err
		}
		return domdoc.Doc(d), nil
	case A:
		return arrayValue([]any(x))
	case []any:
		return arrayValue(x)
	case M:
		return mapValue(map[string]any(x))
	case map[string]any:
		return mapValue(x)
	}
	return reflectValue(reflect.ValueOf(v))
}

func polygonValue(pg Polygon) (domdoc.Value, error) {
	rings := make([][]geo.Point, len(pg))
	for i, r := range pg {
		rings[i] = make([]geo.Point, len(r))
		for j, p := range r {
			rings[i][j] = geo.Point{Lng: p.Lng, Lat: p.Lat}
		}
	}
	poly, err := geo.NewPolygon(rings)
	if err != nil {
		return domdoc.Value{}, fmt.Errorf("%w: %w", domain.ErrInvalidSpec, err)
	}
	return domdoc.PolygonValue(poly), nil
}

func orderedDocument(d D) (*domdoc.Document, error) {
	out := domdoc.New()
	for _, e := range d {
		v, err := toValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		out.Set(e.Key, v)
	}
	return out, nil
}

func arrayValue(items []any) (domdoc.Value, error) {
	vals := make([]domdoc.Value, len(items))
	for i, it := range items {
		v, err := toValue(it)
		if err != nil {
			return domdoc.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		vals[i] = v
	}
	return domdoc.Array(vals...), nil
}

// compareKeys orders map keys with _id first, then lexically.
func compareKeys(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == domdoc.IDField:
		return -1
	case b == domdoc.IDField:
		return 1
	}
	return strings.Compare(a, b)
}

func mapValue(m map[string]any) (domdoc.Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	out := domdoc.New()
	for _, k := range keys {
		v, err := toValue(m[k])
		if err != nil {
			return domdoc.Value{}, fmt.Errorf("field %q: %w", k, err)
		}
		out.Set(k, v)
	}
	return domdoc.Doc(out), nil
}

func reflectValue(rv reflect.Value) (domdoc.Value, error) {
	if !rv.IsValid() {
		return domdoc.Null(), nil
	}
	switch rv.Type() {
	case timeType, pointType, polygonType, dType:
		return toValue(rv.Interface())
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return domdoc.Null(), nil
		}
		return reflectValue(rv.Elem())
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return domdoc.FromAny(rv.Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return domdoc.Null(), nil
		}
		fallthrough
	case reflect.Array:
		vals := make([]domdoc.Value, rv.Len())
		for i := range rv.Len() {
			v, err := reflectValue(rv.Index(i))
			if err != nil {
				return domdoc.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			vals[i] = v
		}
		return domdoc.Array(vals...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return domdoc.Value{}, unsupported(rv.Type())
		}
		if rv.IsNil() {
			return domdoc.Null(), nil
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int { return compareKeys(a.String(), b.String()) })
		out := domdoc.New()
		for _, k := range keys {
			v, err := reflectValue(rv.MapIndex(k))
			if err != nil {
				return domdoc.Value{}, fmt.Errorf("field %q: %w", k.String(), err)
			}
			out.Set(k.String(), v)
		}
		return domdoc.Doc(out), nil
	case reflect.Struct:
		return structValue(rv)
	}
	return domdoc.Value{}, unsupported(rv.Type())
}

func structValue(rv reflect.Value) (domdoc.Value, error) {
	out := domdoc.New()
	for _, f := range structFields(rv.Type()) {
		fv := rv.FieldByIndex(f.index)
		if f.omitEmpty && isEmpty(fv) {
			continue
		}
		v, err := reflectValue(fv)
		if err != nil {
			return domdoc.Value{}, fmt.Errorf("field %q: %w", f.name, err)
		}
		out.Set(f.name, v)
	}
	return domdoc.Doc(out), nil
}

func isEmpty(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return rv.Len() == 0
	}
	return rv.IsZero()
}

// toDocument converts a Go value into a document. A nil input yields nil,
// which operations read as an empty document.
func toDocument(v any) (*domdoc.Document, error) {
	if v == nil {
		return nil, nil
	}
	val, err := toValue(v)
	if err != nil {
		return nil, err
	}
	switch val.Kind() {
	case domdoc.KindDocument:
		return val.DocumentValue(), nil
	case domdoc.KindNull:
		return nil, nil
	}
	return nil, fmt.Errorf("expected a document, got %s: %w", val.Kind(), domain.ErrTypeMismatch)
}

// toDocuments converts a pipeline given as A, []any, []D or []M.
func toDocuments(v any) ([]*domdoc.Document, error) {
	val, err := toValue(v)
	if err != nil {
		return nil, err
	}
	if val.Kind() != domdoc.KindArray {
		return nil, fmt.Errorf("expected an array of documents, got %s: %w", val.Kind(), domain.ErrTypeMismatch)
	}
	out := make([]*domdoc.Document, len(val.ArrayValue()))
	for i, e := range val.ArrayValue() {
		if e.Kind() != domdoc.KindDocument {
			return nil, fmt.Errorf("element %d is %s, not a document: %w", i, e.Kind(), domain.ErrTypeMismatch)
		}
		out[i] = e.DocumentValue()
	}
	return out, nil
}

// fromValue converts a document value to its Go form: nil, bool, int64,
// float64, string, time.Time, A, D, Point or Polygon.
func fromValue(v domdoc.Value) any {
	switch v.Kind() {
	case domdoc.KindBool:
		return v.BoolValue()
	case domdoc.KindInt:
		return v.IntValue()
	case domdoc.KindFloat:
		return v.FloatValue()
	case domdoc.KindString:
		return v.StringValue()
	case domdoc.KindDate:
		return v.TimeValue()
	case domdoc.KindArray:
		out := make(A, len(v.ArrayValue()))
		for i, e := range v.ArrayValue() {
			out[i] = fromValue(e)
		}
		return out
	case domdoc.KindDocument:
		return fromDocument(v.DocumentValue())
	case domdoc.KindGeometry:
		g := v.GeometryValue()
		if !g.IsPolygon() {
			return Point{Lng: g.Point.Lng, Lat: g.Point.Lat}
		}
		out := make(Polygon, len(g.Polygon.Rings))
		for i, r := range g.Polygon.Rings {
			out[i] = make([]Point, len(r))
			for j, p := range r {
				out[i][j] = Point{Lng: p.Lng, Lat: p.Lat}
			}
		}
		return out
	}
	return nil
}

func fromDocument(d *domdoc.Document) D {
	if d == nil {
		return nil
	}
	out := make(D, 0, d.Len())
	for _, f := range d.Fields() {
		out = append(out, E{Key: f.Key, Value: fromValue(f.Value)})
	}
	return out
}

// Decode copies a document (D, M, a struct or any encodable value) into the
// value pointed to by dst, following docdex struct tags.
func Decode(src, dst any) error {
	v, err := toValue(src)
	if err != nil {
		return err
	}
	return decodeTo(v, dst)
}

func decodeTo(v domdoc.Value, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T: %w", dst, domain.ErrInvalidSpec)
	}
	return decodeValue(v, rv.Elem())
}

func mismatch(rv reflect.Value, v domdoc.Value) error {
	return domain.NewTypeMismatch("decode", rv.Type().String(), v.Kind().String())
}

func decodeValue(v domdoc.Value, rv reflect.Value) error {
	if v.IsNull() {
		rv.SetZero()
		return nil
	}
	switch rv.Type() {
	case timeType:
		if v.Kind() != domdoc.KindDate {
			return mismatch(rv, v)
		}
		rv.Set(reflect.ValueOf(v.TimeValue()))
		return nil
	case pointType:
		p, ok := domdoc.AsPoint(v)
		if !ok {
			return mismatch(rv, v)
		}
		rv.Set(reflect.ValueOf(Point{Lng: p.Lng, Lat: p.Lat}))
		return nil
	case polygonType:
		if v.Kind() != domdoc.KindGeometry || !v.GeometryValue().IsPolygon() {
			return mismatch(rv, v)
		}
		rv.Set(reflect.ValueOf(fromValue(v)))
		return nil
	case dType:
		if v.Kind() != domdoc.KindDocument {
			return mismatch(rv, v)
		}
		rv.Set(reflect.ValueOf(fromDocument(v.DocumentValue())))
		return nil
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return mismatch(rv, v)
		}
		rv.Set(reflect.ValueOf(fromValue(v)))
	case reflect.Pointer:
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return decodeValue(v, rv.Elem())
	case reflect.Bool:
		if v.Kind() != domdoc.KindBool {
			return mismatch(rv, v)
		}
		rv.SetBool(v.BoolValue())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := integral(v)
		if !ok || rv.OverflowInt(n) {
			return mismatch(rv, v)
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := integral(v)
		if !ok || n < 0 || rv.OverflowUint(uint64(n)) {
			return mismatch(rv, v)
		}
		rv.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		if !v.IsNumber() {
			return mismatch(rv, v)
		}
		rv.SetFloat(v.FloatValue())
	case reflect.String:
		if v.Kind() != domdoc.KindString {
			return mismatch(rv, v)
		}
		rv.SetString(v.StringValue())
	case reflect.Slice:
		if v.Kind() != domdoc.KindArray {
			return mismatch(rv, v)
		}
		arr := v.ArrayValue()
		out := reflect.MakeSlice(rv.Type(), len(arr), len(arr))
		for i, e := range arr {
			if err := decodeValue(e, out.Index(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		rv.Set(out)
	case reflect.Array:
		if v.Kind() != domdoc.KindArray || len(v.ArrayValue()) > rv.Len() {
			return mismatch(rv, v)
		}
		rv.SetZero()
		for i, e := range v.ArrayValue() {
			if err := decodeValue(e, rv.Index(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case reflect.Map:
		if v.Kind() != domdoc.KindDocument || rv.Type().Key().Kind() != reflect.String {
			return mismatch(rv, v)
		}
		out := reflect.MakeMapWithSize(rv.Type(), v.DocumentValue().Len())
		for _, f := range v.DocumentValue().Fields() {
			elem := reflect.New(rv.Type().Elem()).Elem()
			if err := decodeValue(f.Value, elem); err != nil {
				return fmt.Errorf("field %q: %w", f.Key, err)
			}
			out.SetMapIndex(reflect.ValueOf(f.Key).Convert(rv.Type().Key()), elem)
		}
		rv.Set(out)
	case reflect.Struct:
		if v.Kind() != domdoc.KindDocument {
			return mismatch(rv, v)
		}
		d := v.DocumentValue()
		for _, f := range structFields(rv.Type()) {
			fv, ok := d.Get(f.name)
			if !ok {
				continue
			}
			if err := decodeValue(fv, rv.FieldByIndex(f.index)); err != nil {
				return fmt.Errorf("field %q: %w", f.name, err)
			}
		}
	default:
		return unsupported(rv.Type())
	}
	return nil
}

// integral returns v as an int64 when it holds a whole number.
func integral(v domdoc.Value) (int64, bool) {
	switch v.Kind() {
	case domdoc.KindInt:
		return v.IntValue(), true
	case domdoc.KindFloat:
		f := v.FloatValue()
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}
