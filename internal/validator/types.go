package validator

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// typeRule mirrors the bsonType constraints of a schema along properties
// and items, checked against value kinds rather than their JSON encoding.
type typeRule struct {
	names []string
	kinds []document.Kind
	props []propRule
	items *typeRule
}

type propRule struct {
	name string
	rule *typeRule
}

// compileTypes collects bsonType constraints. Names were already validated
// by translate.
func compileTypes(d *document.Document) *typeRule {
	r := &typeRule{}
	if v, ok := d.Get("bsonType"); ok {
		names := []document.Value{v}
		if v.Kind() == document.KindArray {
			names = v.ArrayValue()
		}
		for _, n := range names {
			r.names = append(r.names, n.StringValue())
			r.kinds = append(r.kinds, kindsOf(n.StringValue())...)
		}
	}
	if v, ok := d.Get("properties"); ok && v.Kind() == document.KindDocument {
		for _, p := range v.DocumentValue().Fields() {
			if p.Value.Kind() == document.KindDocument {
				r.props = append(r.props, propRule{name: p.Key, rule: compileTypes(p.Value.DocumentValue())})
			}
		}
	}
	if v, ok := d.Get("items"); ok && v.Kind() == document.KindDocument {
		r.items = compileTypes(v.DocumentValue())
	}
	return r
}

func kindsOf(name string) []document.Kind {
	switch name {
	case "number":
		return []document.Kind{document.KindInt, document.KindFloat}
	case "object":
		return []document.Kind{document.KindDocument, document.KindGeometry}
	}
	k, _ := document.KindFromName(name)
	return []document.Kind{k}
}

func (r *typeRule) check(path string, v document.Value, out []domain.Violation) []domain.Violation {
	if len(r.kinds) > 0 && !slices.Contains(r.kinds, v.Kind()) {
		raw, _ := v.MarshalJSON()
		return append(out, domain.Violation{
			Constraint: ConstraintType,
			Field:      path,
			Value:      string(raw),
			Description: fmt.Sprintf("Invalid type. Expected: %s, given: %s",
				strings.Join(r.names, " or "), v.Kind()),
		})
	}
	switch v.Kind() {
	case document.KindDocument:
		d := v.DocumentValue()
		for _, p := range r.props {
			if fv, ok := d.Get(p.name); ok {
				out = p.rule.check(joinPath(path, p.name), fv, out)
			}
		}
	case document.KindArray:
		if r.items == nil {
			break
		}
		for i, e := range v.ArrayValue() {
			out = r.items.check(joinPath(path, strconv.Itoa(i)), e, out)
		}
	}
	return out
}
