// Package expr compiles and evaluates aggregation expressions and accumulators.
package expr

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// System variable results understood by $redact.
const (
	VarKeep    = "$$KEEP"
	VarPrune   = "$$PRUNE"
	VarDescend = "$$DESCEND"
)

// Scope is the evaluation environment of one document.
type Scope struct {
	Root    *document.Document
	Current *document.Document
	Vars    map[string]document.Value
}

// NewScope creates a scope where ROOT and CURRENT are the same document.
func NewScope(d *document.Document) *Scope {
	return &Scope{Root: d, Current: d}
}

// Expression evaluates to a value within a scope.
// Missing values evaluate to null; use Evaluate to tell them apart.
type Expression interface {
	Eval(s *Scope) (document.Value, error)
}

// optional is implemented by expressions that may produce no value at all.
type optional interface {
	evalOptional(s *Scope) (document.Value, bool, error)
}

// Evaluate returns the value of e and whether it is present.
// Field paths to missing fields and $$REMOVE are absent.
func Evaluate(e Expression, s *Scope) (document.Value, bool, error) {
	if o, ok := e.(optional); ok {
		return o.evalOptional(s)
	}
	v, err := e.Eval(s)
	if err != nil {
		return document.Value{}, false, err
	}
	return v, true, nil
}

// Const is a literal value.
type Const struct {
	Value document.Value
}

// Eval returns the literal.
func (c Const) Eval(*Scope) (document.Value, error) { return c.Value, nil }

// FieldPath reads a field of CURRENT, ROOT or a user variable.
type FieldPath struct {
	Var  string
	Path string
}

// Eval returns the value at the path or null.
func (f FieldPath) Eval(s *Scope) (document.Value, error) {
	v, _, err := f.evalOptional(s)
	return v, err
}

func (f FieldPath) evalOptional(s *Scope) (document.Value, bool, error) {
	var base document.Value
	switch f.Var {
	case "", "CURRENT":
		if s.Current == nil {
			return document.Null(), false, nil
		}
		base = document.Doc(s.Current)
	case "ROOT":
		if s.Root == nil {
			return document.Null(), false, nil
		}
		base = document.Doc(s.Root)
	case "REMOVE":
		return document.Null(), false, nil
	case "KEEP", "PRUNE", "DESCEND":
		return document.String("$$" + f.Var), true, nil
	default:
		v, ok := s.Vars[f.Var]
		if !ok {
			return document.Value{}, false, fmt.Errorf("undefined variable $$%s: %w", f.Var, domain.ErrInvalidSpec)
		}
		base = v
	}
	if f.Path == "" {
		return base, true, nil
	}
	if base.Kind() != document.KindDocument {
		return document.Null(), false, nil
	}
	v, ok := base.DocumentValue().Lookup(f.Path)
	if !ok {
		return document.Null(), false, nil
	}
	return v, true, nil
}

// Object builds a document from named sub-expressions. Absent values are omitted.
type Object struct {
	Fields []ObjectField
}

// ObjectField is one named member of an Object expression.
type ObjectField struct {
	Name string
	Expr Expression
}

// Eval builds the document.
func (o Object) Eval(s *Scope) (document.Value, error) {
	d := document.New()
	for _, f := range o.Fields {
		v, ok, err := Evaluate(f.Expr, s)
		if err != nil {
			return document.Value{}, err
		}
		if ok {
			d.Set(f.Name, v)
		}
	}
	return document.Doc(d), nil
}

// ArrayExpr builds an array from sub-expressions. Absent values become null.
type ArrayExpr struct {
	Items []Expression
}

// Eval builds the array.
func (a ArrayExpr) Eval(s *Scope) (document.Value, error) {
	out := make([]document.Value, len(a.Items))
	for i, item := range a.Items {
		v, err := item.Eval(s)
		if err != nil {
			return document.Value{}, err
		}
		out[i] = v
	}
	return document.Array(out...), nil
}

// Compile turns an expression specification into an Expression.
func Compile(v document.Value) (Expression, error) {
	switch v.Kind() {
	case document.KindString:
		return compileString(v.StringValue())
	case document.KindArray:
		items := make([]Expression, len(v.ArrayValue()))
		for i, e := range v.ArrayValue() {
			c, err := Compile(e)
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		return ArrayExpr{Items: items}, nil
	case document.KindDocument:
		return compileDocument(v.DocumentValue())
	default:
		return Const{Value: v}, nil
	}
}

func compileString(s string) (Expression, error) {
	switch {
	case strings.HasPrefix(s, "$$"):
		name, path, _ := strings.Cut(s[2:], ".")
		if name == "" {
			return nil, fmt.Errorf("empty variable name in %q: %w", s, domain.ErrInvalidSpec)
		}
		return FieldPath{Var: name, Path: path}, nil
	case strings.HasPrefix(s, "$"):
		path := s[1:]
		if err := document.ValidatePath(path); err != nil {
			return nil, fmt.Errorf("field path %q: %w", s, err)
		}
		return FieldPath{Path: path}, nil
	default:
		return Const{Value: document.String(s)}, nil
	}
}

func compileDocument(d *document.Document) (Expression, error) {
	fields := d.Fields()
	if len(fields) == 1 && strings.HasPrefix(fields[0].Key, "$") {
		return compileOperator(fields[0].Key, fields[0].Value)
	}
	obj := Object{Fields: make([]ObjectField, 0, len(fields))}
	for _, f := range fields {
		if strings.HasPrefix(f.Key, "$") {
			return nil, fmt.Errorf("operator %s must be the only key of its object: %w", f.Key, domain.ErrInvalidSpec)
		}
		c, err := Compile(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		obj.Fields = append(obj.Fields, ObjectField{Name: f.Key, Expr: c})
	}
	return obj, nil
}

// IsFieldPath reports whether the expression is a plain CURRENT field path,
// returning the path.
func IsFieldPath(e Expression) (string, bool) {
	f, ok := e.(FieldPath)
	if !ok || (f.Var != "" && f.Var != "CURRENT") || f.Path == "" {
		return "", false
	}
	return f.Path, true
}
