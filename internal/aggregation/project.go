package aggregation

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
)

// Projection reshapes documents by inclusion, exclusion or computed fields.
// It serves both the $project stage and find projections.
type Projection struct {
	exclude  bool
	hideID   bool
	root     *projNode
	paths    []string
	computed []computed
	source   *document.Document
}

type projNode struct {
	leaf     bool
	children map[string]*projNode
	order    []string
}

func (n *projNode) child(seg string) *projNode {
	if n.children == nil {
		n.children = map[string]*projNode{}
	}
	c, ok := n.children[seg]
	if !ok {
		c = &projNode{}
		n.children[seg] = c
		n.order = append(n.order, seg)
	}
	return c
}

// ParseProjection compiles a projection document. Inclusion and exclusion
// cannot be mixed, except that _id may always be excluded.
func ParseProjection(d *document.Document) (*Projection, error) {
	if d == nil || d.Len() == 0 {
		return nil, fmt.Errorf("projection must not be empty: %w", domain.ErrInvalidSpec)
	}
	p := &Projection{root: &projNode{}, source: d}
	var includes, excludes int
	for _, f := range d.Fields() {
		if err := document.ValidatePath(f.Key); err != nil {
			return nil, err
		}
		if strings.HasPrefix(f.Key, "$") {
			return nil, fmt.Errorf("projection field %q must not start with $: %w", f.Key, domain.ErrInvalidSpec)
		}
		flag, isFlag := projectionFlag(f.Value)
		switch {
		case isFlag && !flag:
			if f.Key == document.IDField {
				p.hideID = true
				continue
			}
			excludes++
			p.paths = append(p.paths, f.Key)
		case isFlag:
			includes++
			p.paths = append(p.paths, f.Key)
		default:
			e, err := expr.Compile(f.Value)
			if err != nil {
				return nil, err
			}
			includes++
			p.computed = append(p.computed, computed{path: f.Key, expr: e})
		}
	}
	if includes > 0 && excludes > 0 {
		return nil, fmt.Errorf("projection cannot mix inclusion and exclusion: %w", domain.ErrInvalidSpec)
	}
	p.exclude = includes == 0
	if !p.exclude {
		for _, path := range p.paths {
			n := p.root
			for _, seg := range document.SplitPath(path) {
				n = n.child(seg)
			}
			n.leaf = true
		}
	}
	return p, nil
}

// projectionFlag reads 0/1/true/false.
func projectionFlag(v document.Value) (include bool, ok bool) {
	switch v.Kind() {
	case document.KindBool:
		return v.BoolValue(), true
	case document.KindInt, document.KindFloat:
		return v.FloatValue() != 0, true
	}
	return false, false
}

// Inclusion reports whether the projection lists the fields to keep.
func (p *Projection) Inclusion() bool { return !p.exclude }

// IncludesID reports whether _id survives the projection.
func (p *Projection) IncludesID() bool { return !p.hideID }

// Paths returns the included or excluded field paths, without computed fields.
func (p *Projection) Paths() []string { return p.paths }

// Document returns the projection as it was written.
func (p *Projection) Document() *document.Document { return p.source }

// Computed reports whether the projection evaluates expressions.
func (p *Projection) Computed() bool { return len(p.computed) > 0 }

// Apply returns the projected copy of d.
func (p *Projection) Apply(d *document.Document) (*document.Document, error) {
	if p.exclude {
		out := d.Clone()
		for _, path := range p.paths {
			out.UnsetPath(path)
		}
		if p.hideID {
			out.Delete(document.IDField)
		}
		return out, nil
	}

	out := includeFields(d, p.root, !p.hideID).InheritMeta(d)
	if len(p.computed) == 0 {
		return out, nil
	}
	s := expr.NewScope(d)
	for _, c := range p.computed {
		v, ok, err := expr.Evaluate(c.expr, s)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := out.SetPath(c.path, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func includeFields(d *document.Document, n *projNode, keepID bool) *document.Document {
	out := document.New()
	for _, f := range d.Fields() {
		if f.Key == document.IDField && keepID {
			out.Set(f.Key, f.Value.Clone())
			continue
		}
		c, ok := n.children[f.Key]
		if !ok {
			continue
		}
		if c.leaf {
			out.Set(f.Key, f.Value.Clone())
			continue
		}
		if v, ok := includeValue(f.Value, c); ok {
			out.Set(f.Key, v)
		}
	}
	return out
}

func includeValue(v document.Value, n *projNode) (document.Value, bool) {
	switch v.Kind() {
	case document.KindDocument:
		return document.Doc(includeFields(v.DocumentValue(), n, false)), true
	case document.KindArray:
		var out []document.Value
		for _, e := range v.ArrayValue() {
			if r, ok := includeValue(e, n); ok {
				out = append(out, r)
			}
		}
		return document.Array(out...), true
	}
	return document.Value{}, false
}

// Project is the $project stage.
type Project struct {
	projection *Projection
}

func decodeProject(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$project takes an object")
	}
	p, err := ParseProjection(body.DocumentValue())
	if err != nil {
		return nil, err
	}
	return &Project{projection: p}, nil
}

// Name implements Stage.
func (*Project) Name() string { return "$project" }

func (p *Project) run(_ context.Context, _ *runtime, in Stream) Stream {
	return mapDocs(in, p.projection.Apply)
}
