// Package validator checks documents against a collection validator: a
// {$jsonSchema: ...} document compiled with gojsonschema, a query filter, or
// both.
package validator

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// Constraint kinds reported in violations.
const (
	ConstraintRequired   = "required"
	ConstraintType       = "type"
	ConstraintPattern    = "pattern"
	ConstraintRange      = "range"
	ConstraintEnum       = "enum"
	ConstraintLength     = "length"
	ConstraintItems      = "items"
	ConstraintProperties = "additionalProperties"
	ConstraintFormat     = "format"
	ConstraintExpression = "expression"
	ConstraintOther      = "schema"
)

// Validator is a compiled collection validator.
type Validator struct {
	collection string
	action     collection.Action
	level      collection.Level
	schema     *gojsonschema.Schema
	types      *typeRule
	query      *filter.Filter
}

// Compile builds a validator from the collection's validator options.
func Compile(collectionName string, v *collection.Validator) (*Validator, error) {
	if v == nil || v.Rules == nil || v.Rules.Len() == 0 {
		return nil, fmt.Errorf("validator rules are empty: %w", domain.ErrInvalidSpec)
	}
	out := &Validator{collection: collectionName, action: v.Action, level: v.Level}
	query := document.New()
	for _, f := range v.Rules.Fields() {
		if f.Key != "$jsonSchema" {
			query.Set(f.Key, f.Value)
			continue
		}
		if f.Value.Kind() != document.KindDocument {
			return nil, fmt.Errorf("$jsonSchema must be an object: %w", domain.ErrInvalidSpec)
		}
		schema, err := compileSchema(f.Value.DocumentValue())
		if err != nil {
			return nil, err
		}
		out.schema = schema
		out.types = compileTypes(f.Value.DocumentValue())
	}
	if query.Len() > 0 {
		q, err := filter.Parse(query)
		if err != nil {
			return nil, fmt.Errorf("validator query: %w", err)
		}
		if q.Near() != nil || q.Text() != nil {
			return nil, fmt.Errorf("validator query cannot use $near or $text: %w", domain.ErrInvalidSpec)
		}
		out.query = q
	}
	return out, nil
}

func compileSchema(d *document.Document) (*gojsonschema.Schema, error) {
	translated, err := translate(d)
	if err != nil {
		return nil, err
	}
	raw, err := translated.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode $jsonSchema: %w", err)
	}
	sl := gojsonschema.NewSchemaLoader()
	sl.Draft = gojsonschema.Draft7
	schema, err := sl.Compile(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid $jsonSchema: %v: %w", err, domain.ErrInvalidSpec)
	}
	return schema, nil
}

// Action returns what happens to an invalid write.
func (v *Validator) Action() collection.Action { return v.action }

// Level returns which writes are validated.
func (v *Validator) Level() collection.Level { return v.level }

// Check validates d and returns a *domain.ValidationError listing every
// violated constraint, or nil.
func (v *Validator) Check(d *document.Document) error {
	violations, err := v.Violations(d)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}
	return &domain.ValidationError{Collection: v.collection, Violations: violations}
}

// Violations lists the constraints d violates.
func (v *Validator) Violations(d *document.Document) ([]domain.Violation, error) {
	var out []domain.Violation
	if v.types != nil {
		out = v.types.check("", document.Doc(d), out)
	}
	if v.schema != nil {
		typed := make(map[string]bool, len(out))
		for _, vi := range out {
			typed[vi.Field] = true
		}
		raw, err := d.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		res, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("validate document: %w", err)
		}
		for _, re := range res.Errors() {
			vi := violation(re)
			if vi.Constraint == ConstraintType && typed[vi.Field] {
				continue
			}
			out = append(out, vi)
		}
	}
	if v.query != nil {
		ok, err := v.query.Match(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, domain.Violation{
				Constraint:  ConstraintExpression,
				Description: "document does not match the validator query",
			})
		}
	}
	return out, nil
}

func violation(re gojsonschema.ResultError) domain.Violation {
	field := re.Field()
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = ""
	}
	constraint := constraintOf(re.Type())
	if constraint == ConstraintRequired {
		if prop, ok := re.Details()["property"].(string); ok {
			field = joinPath(field, prop)
		}
	}
	value := ""
	if re.Value() != nil && constraint != ConstraintRequired {
		value = fmt.Sprint(re.Value())
	}
	return domain.Violation{
		Constraint:  constraint,
		Field:       field,
		Value:       value,
		Description: re.Description(),
	}
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func constraintOf(t string) string {
	switch {
	case t == "required":
		return ConstraintRequired
	case t == "invalid_type":
		return ConstraintType
	case t == "pattern":
		return ConstraintPattern
	case t == "enum" || t == "const":
		return ConstraintEnum
	case strings.HasPrefix(t, "number_"):
		return ConstraintRange
	case strings.HasPrefix(t, "string_"):
		return ConstraintLength
	case strings.HasPrefix(t, "array_"):
		return ConstraintItems
	case t == "additional_property_not_allowed":
		return ConstraintProperties
	case t == "format":
		return ConstraintFormat
	}
	return ConstraintOther
}
