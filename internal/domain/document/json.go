package document

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// MarshalJSON renders the document as a JSON object in field order.
// Dates render as RFC 3339 strings and geometry as GeoJSON.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDocJSON(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON renders the value as JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValueJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeDocJSON(buf *bytes.Buffer, d *Document) error {
	buf.WriteByte('{')
	for i, f := range d.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if err := writeValueJSON(buf, f.Value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValueJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		s, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindDate:
		buf.WriteByte('"')
		buf.WriteString(v.t.Format(time.RFC3339Nano))
		buf.WriteByte('"')
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValueJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindDocument:
		return writeDocJSON(buf, v.doc)
	case KindGeometry:
		return writeDocJSON(buf, GeoJSON(v.geom))
	}
	return nil
}

// ParseJSON decodes a JSON object into a document, preserving key order.
// Integral numbers without a fraction or exponent become ints.
func ParseJSON(data []byte) (*Document, error) {
	dec := stdjson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if v.kind != KindDocument {
		return nil, fmt.Errorf("expected a JSON object, got %s: %w", v.kind, domain.ErrTypeMismatch)
	}
	return v.doc, nil
}

func decodeJSONValue(dec *stdjson.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case stdjson.Delim:
		switch t {
		case '{':
			d := New()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := kt.(string)
				v, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				d.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Doc(d), nil
		case '[':
			arr := []Value{}
			for dec.More() {
				v, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(arr...), nil
		}
	case stdjson.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Null(), nil
}
