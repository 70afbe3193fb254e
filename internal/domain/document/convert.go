package document

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
)

// FromAny converts a native Go value into a Value.
// Maps with string keys become documents with _id first and the other keys sorted.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Document:
		return Doc(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case time.Time:
		return Date(t), nil
	case geo.Point:
		return PointValue(t), nil
	case geo.Polygon:
		return PolygonValue(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return Array(out...), nil
	case map[string]any:
		d, err := FromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Doc(d), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("unsigned value %d overflows int64: %w", u, domain.ErrTypeMismatch)
	}
	return Int(int64(u)), nil
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := range out {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return Array(out...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("map key type %s: %w", rv.Type().Key(), domain.ErrTypeMismatch)
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		d, err := FromMap(m)
		if err != nil {
			return Value{}, err
		}
		return Doc(d), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %s: %w", rv.Type(), domain.ErrTypeMismatch)
}

// FromMap converts a map into a document with a deterministic key order.
func FromMap(m map[string]any) (*Document, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == IDField || keys[j] == IDField {
			return keys[i] == IDField
		}
		return keys[i] < keys[j]
	})
	d := &Document{fields: make([]Field, 0, len(keys))}
	for _, k := range keys {
		v, err := FromAny(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		d.fields = append(d.fields, Field{Key: k, Value: v})
	}
	return d, nil
}
