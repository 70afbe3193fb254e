package validator

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// bsonTypes maps bsonType names to JSON Schema types.
var bsonTypes = map[string]string{
	"int":     "integer",
	"long":    "integer",
	"double":  "number",
	"decimal": "number",
	"number":  "number",
	"bool":    "boolean",
	"date":    "string",
	"object":  "object",
	"array":   "array",
	"string":  "string",
	"null":    "null",
}

// subschemaKeys hold a schema or a list of schemas.
var subschemaKeys = map[string]bool{
	"items": true, "additionalProperties": true, "not": true,
	"allOf": true, "anyOf": true, "oneOf": true,
}

// translate rewrites bsonType into type (and format for dates) at every
// level and turns boolean exclusive bounds into numeric ones.
func translate(d *document.Document) (*document.Document, error) {
	out := document.New()
	for _, f := range d.Fields() {
		switch f.Key {
		case "bsonType":
			t, date, err := translateType(f.Value)
			if err != nil {
				return nil, err
			}
			out.Set("type", t)
			if date {
				out.Set("format", document.String("date-time"))
			}
		case "properties", "patternProperties":
			if f.Value.Kind() != document.KindDocument {
				return nil, fmt.Errorf("%s must be an object: %w", f.Key, domain.ErrInvalidSpec)
			}
			props := document.New()
			for _, p := range f.Value.DocumentValue().Fields() {
				v, err := translateValue(p.Value)
				if err != nil {
					return nil, err
				}
				props.Set(p.Key, v)
			}
			out.Set(f.Key, document.Doc(props))
		case "exclusiveMinimum", "exclusiveMaximum":
			if f.Value.Kind() != document.KindBool {
				out.Set(f.Key, f.Value)
			}
		default:
			if subschemaKeys[f.Key] {
				v, err := translateValue(f.Value)
				if err != nil {
					return nil, err
				}
				out.Set(f.Key, v)
				continue
			}
			out.Set(f.Key, f.Value)
		}
	}
	exclusive(d, out, "exclusiveMinimum", "minimum")
	exclusive(d, out, "exclusiveMaximum", "maximum")
	return out, nil
}

// exclusive rewrites {minimum: 5, exclusiveMinimum: true} as {exclusiveMinimum: 5}.
func exclusive(in, out *document.Document, flag, bound string) {
	v, ok := in.Get(flag)
	if !ok || v.Kind() != document.KindBool || !v.BoolValue() {
		return
	}
	if b, ok := in.Get(bound); ok {
		out.Delete(bound)
		out.Set(flag, b)
	}
}

func translateValue(v document.Value) (document.Value, error) {
	switch v.Kind() {
	case document.KindDocument:
		d, err := translate(v.DocumentValue())
		if err != nil {
			return document.Value{}, err
		}
		return document.Doc(d), nil
	case document.KindArray:
		out := make([]document.Value, len(v.ArrayValue()))
		for i, e := range v.ArrayValue() {
			t, err := translateValue(e)
			if err != nil {
				return document.Value{}, err
			}
			out[i] = t
		}
		return document.Array(out...), nil
	}
	return v, nil
}

func translateType(v document.Value) (t document.Value, date bool, err error) {
	one := func(name document.Value) (string, error) {
		if name.Kind() != document.KindString {
			return "", fmt.Errorf("bsonType must be a string: %w", domain.ErrInvalidSpec)
		}
		js, ok := bsonTypes[name.StringValue()]
		if !ok {
			return "", fmt.Errorf("unknown bsonType %q: %w", name.StringValue(), domain.ErrInvalidSpec)
		}
		date = date || name.StringValue() == "date"
		return js, nil
	}
	if v.Kind() != document.KindArray {
		s, err := one(v)
		return document.String(s), date, err
	}
	seen := map[string]bool{}
	var out []document.Value
	for _, e := range v.ArrayValue() {
		s, err := one(e)
		if err != nil {
			return document.Value{}, false, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, document.String(s))
		}
	}
	// date-time format would also constrain the other listed types
	return document.Array(out...), false, nil
}
