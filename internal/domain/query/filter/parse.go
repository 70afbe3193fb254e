package filter

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
	"github.com/kailas-cloud/docdex/internal/domain/query/expr"
)

// Parse builds a Filter from a filter document. A nil document matches everything.
func Parse(d *document.Document) (*Filter, error) {
	if d == nil {
		return MatchAll(), nil
	}
	p := parser{}
	root, err := p.parseDoc(d, true)
	if err != nil {
		return nil, err
	}
	if p.near > 1 || p.text > 1 {
		return nil, fmt.Errorf("at most one $near and one $text per filter: %w", domain.ErrInvalidSpec)
	}
	if p.near > 0 && p.text > 0 {
		return nil, fmt.Errorf("$text cannot be combined with $near: %w", domain.ErrInvalidSpec)
	}
	return &Filter{root: root, raw: d}, nil
}

type parser struct {
	near int
	text int
}

func (p *parser) parseDoc(d *document.Document, top bool) (Node, error) {
	children := make([]Node, 0, d.Len())
	for _, f := range d.Fields() {
		n, err := p.parseField(f.Key, f.Value, top)
		if err != nil {
			return nil, err
		}
		if n != nil {
			children = append(children, n)
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p *parser) parseField(key string, v document.Value, top bool) (Node, error) {
	switch key {
	case "$and", "$or", "$nor":
		children, err := p.parseList(key, v, top)
		if err != nil {
			return nil, err
		}
		switch key {
		case "$and":
			return And{Children: children}, nil
		case "$or":
			return Or{Children: children}, nil
		default:
			return Nor{Children: children}, nil
		}
	case "$expr":
		e, err := expr.Compile(v)
		if err != nil {
			return nil, fmt.Errorf("$expr: %w", err)
		}
		return Expr{Expr: e}, nil
	case "$text":
		if !top {
			return nil, fmt.Errorf("$text must be a top-level predicate: %w", domain.ErrInvalidSpec)
		}
		p.text++
		return parseText(v)
	case "$comment":
		return nil, nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("unknown top-level operator %s: %w", key, domain.ErrInvalidSpec)
	}
	if err := document.ValidatePath(key); err != nil {
		return nil, err
	}
	if isOperatorDoc(v) {
		return p.parseOps(key, v.DocumentValue(), top)
	}
	return newPredicate(key, "$eq", v)
}

func (p *parser) parseList(op string, v document.Value, top bool) ([]Node, error) {
	if v.Kind() != document.KindArray || len(v.ArrayValue()) == 0 {
		return nil, fmt.Errorf("%s requires a non-empty array: %w", op, domain.ErrInvalidSpec)
	}
	out := make([]Node, 0, len(v.ArrayValue()))
	for _, e := range v.ArrayValue() {
		if e.Kind() != document.KindDocument {
			return nil, fmt.Errorf("%s entries must be objects: %w", op, domain.ErrInvalidSpec)
		}
		// conjuncts of a top-level $and are top-level too
		n, err := p.parseDoc(e.DocumentValue(), op == "$and" && top)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func isOperatorDoc(v document.Value) bool {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() == 0 {
		return false
	}
	return strings.HasPrefix(v.DocumentValue().Fields()[0].Key, "$")
}

func (p *parser) parseOps(path string, ops *document.Document, top bool) (Node, error) {
	var (
		children []Node
		options  string
		regexVal *document.Value
	)
	if o, ok := ops.Get("$options"); ok {
		if o.Kind() != document.KindString {
			return nil, fmt.Errorf("$options must be a string: %w", domain.ErrInvalidSpec)
		}
		options = o.StringValue()
	}
	for _, f := range ops.Fields() {
		if !strings.HasPrefix(f.Key, "$") {
			return nil, fmt.Errorf("cannot mix operators and fields under %q: %w", path, domain.ErrInvalidSpec)
		}
		switch f.Key {
		case "$options", "$maxDistance", "$minDistance":
			continue
		case "$regex":
			v := f.Value
			regexVal = &v
			continue
		case "$not":
			n, err := p.parseNot(path, f.Value)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
			continue
		case "$near", "$nearSphere":
			if !top {
				return nil, fmt.Errorf("%s must be a top-level predicate: %w", f.Key, domain.ErrInvalidSpec)
			}
			p.near++
			n, err := parseNear(path, f.Key, f.Value, ops)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
			continue
		case "$geoWithin", "$within":
			n, err := parseWithin(path, f.Value)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
			continue
		}
		n, err := newPredicate(path, f.Key, f.Value)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if regexVal != nil {
		n, err := newRegex(path, *regexVal, options)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	} else if options != "" {
		return nil, fmt.Errorf("$options without $regex: %w", domain.ErrInvalidSpec)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p *parser) parseNot(path string, v document.Value) (Node, error) {
	if !isOperatorDoc(v) {
		return nil, fmt.Errorf("$not requires an operator object: %w", domain.ErrInvalidSpec)
	}
	child, err := p.parseOps(path, v.DocumentValue(), false)
	if err != nil {
		return nil, err
	}
	return Not{Path: path, Child: child}, nil
}

func newPredicate(path, op string, v document.Value) (*Predicate, error) {
	p := &Predicate{Path: path, Op: op, Value: v}
	switch op {
	case "$eq", "$ne":
	case "$gt", "$gte", "$lt", "$lte":
		b := Bound{Value: v, Inclusive: op == "$gte" || op == "$lte"}
		p.interval = Interval{Low: Bound{Unbounded: true}, High: Bound{Unbounded: true}, Typed: true}
		if op == "$gt" || op == "$gte" {
			p.interval.Low = b
		} else {
			p.interval.High = b
		}
	case "$in", "$nin", "$all":
		if v.Kind() != document.KindArray {
			return nil, fmt.Errorf("%s requires an array: %w", op, domain.ErrInvalidSpec)
		}
		p.Values = v.ArrayValue()
	case "$exists":
	case "$type":
		if err := p.parseTypes(v); err != nil {
			return nil, err
		}
	case "$size":
		if !v.IsNumber() || v.FloatValue() < 0 || v.FloatValue() != math.Trunc(v.FloatValue()) {
			return nil, fmt.Errorf("$size requires a non-negative integer: %w", domain.ErrInvalidSpec)
		}
		p.Value = document.Int(v.IntValue())
	case "$mod":
		arr := v.ArrayValue()
		if v.Kind() != document.KindArray || len(arr) != 2 || !arr[0].IsNumber() || !arr[1].IsNumber() {
			return nil, fmt.Errorf("$mod requires [divisor, remainder]: %w", domain.ErrInvalidSpec)
		}
		if arr[0].IntValue() == 0 {
			return nil, fmt.Errorf("$mod divisor cannot be zero: %w", domain.ErrInvalidSpec)
		}
		p.Values = arr
	case "$elemMatch":
		if err := p.parseElemMatch(v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown query operator %s: %w", op, domain.ErrInvalidSpec)
	}
	return p, nil
}

func (p *Predicate) parseTypes(v document.Value) error {
	names := []document.Value{v}
	if v.Kind() == document.KindArray {
		names = v.ArrayValue()
	}
	for _, n := range names {
		if n.Kind() != document.KindString {
			return fmt.Errorf("$type requires type names: %w", domain.ErrInvalidSpec)
		}
		if n.StringValue() == "number" {
			p.numeric = true
			continue
		}
		k, ok := document.KindFromName(n.StringValue())
		if !ok {
			return fmt.Errorf("unknown type %q: %w", n.StringValue(), domain.ErrInvalidSpec)
		}
		p.kinds = append(p.kinds, k)
	}
	return nil
}

func (p *Predicate) parseElemMatch(v document.Value) error {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() == 0 {
		return fmt.Errorf("$elemMatch requires a non-empty object: %w", domain.ErrInvalidSpec)
	}
	d := v.DocumentValue()
	first := d.Fields()[0].Key
	if strings.HasPrefix(first, "$") && first != "$and" && first != "$or" && first != "$nor" && first != "$expr" {
		for _, f := range d.Fields() {
			op, err := newPredicate("", f.Key, f.Value)
			if err != nil {
				return fmt.Errorf("$elemMatch: %w", err)
			}
			p.elemOps = append(p.elemOps, op)
		}
		return nil
	}
	sub, err := Parse(d)
	if err != nil {
		return fmt.Errorf("$elemMatch: %w", err)
	}
	p.elemDoc = sub
	return nil
}

func newRegex(path string, v document.Value, options string) (*Predicate, error) {
	if v.Kind() != document.KindString {
		return nil, fmt.Errorf("$regex requires a string pattern: %w", domain.ErrInvalidSpec)
	}
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		default:
			return nil, fmt.Errorf("unsupported regex option %q: %w", o, domain.ErrInvalidSpec)
		}
	}
	pattern := v.StringValue()
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("$regex: %v: %w", err, domain.ErrInvalidSpec)
	}
	return &Predicate{Path: path, Op: "$regex", Value: v, re: re}, nil
}

func parseText(v document.Value) (Node, error) {
	if v.Kind() != document.KindDocument {
		return nil, fmt.Errorf("$text requires an object: %w", domain.ErrInvalidSpec)
	}
	s, ok := v.DocumentValue().Get("$search")
	if !ok || s.Kind() != document.KindString {
		return nil, fmt.Errorf("$text requires a $search string: %w", domain.ErrInvalidSpec)
	}
	return &Text{Search: s.StringValue(), Terms: Tokenize(s.StringValue())}, nil
}

func parseNear(path, op string, v document.Value, siblings *document.Document) (*Near, error) {
	n := &Near{Path: path, MaxDistance: math.Inf(1), Spherical: op == "$nearSphere"}
	var opts *document.Document
	switch {
	case v.Kind() == document.KindDocument && v.DocumentValue().Has("$geometry"):
		opts = v.DocumentValue()
		g, _ := opts.Get("$geometry")
		pt, ok := document.AsPoint(g)
		if !ok {
			return nil, fmt.Errorf("%s requires a GeoJSON point: %w", op, domain.ErrInvalidSpec)
		}
		n.Center = pt
	default:
		pt, ok := document.AsPoint(v)
		if !ok {
			return nil, fmt.Errorf("%s requires a point: %w", op, domain.ErrInvalidSpec)
		}
		n.Center = pt
		opts = siblings
	}
	var err error
	if n.MaxDistance, err = distanceOption(opts, "$maxDistance", n.MaxDistance); err != nil {
		return nil, err
	}
	if n.MinDistance, err = distanceOption(opts, "$minDistance", 0); err != nil {
		return nil, err
	}
	if n.MinDistance > n.MaxDistance {
		return nil, fmt.Errorf("$minDistance exceeds $maxDistance: %w", domain.ErrInvalidSpec)
	}
	return n, nil
}

func distanceOption(d *document.Document, key string, def float64) (float64, error) {
	v, ok := d.Get(key)
	if !ok {
		return def, nil
	}
	if !v.IsNumber() || v.FloatValue() < 0 || math.IsNaN(v.FloatValue()) {
		return 0, fmt.Errorf("%s must be a non-negative number: %w", key, domain.ErrInvalidSpec)
	}
	return v.FloatValue(), nil
}

func parseWithin(path string, v document.Value) (*Within, error) {
	if v.Kind() != document.KindDocument || v.DocumentValue().Len() != 1 {
		return nil, fmt.Errorf("$geoWithin requires exactly one shape: %w", domain.ErrInvalidSpec)
	}
	f := v.DocumentValue().Fields()[0]
	region, err := parseRegion(f.Key, f.Value)
	if err != nil {
		return nil, err
	}
	return &Within{Path: path, Region: region}, nil
}

func parseRegion(shape string, v document.Value) (geo.Region, error) {
	switch shape {
	case "$center", "$centerSphere":
		arr := v.ArrayValue()
		if v.Kind() != document.KindArray || len(arr) != 2 || !arr[1].IsNumber() || arr[1].FloatValue() < 0 {
			return nil, fmt.Errorf("%s requires [[lng, lat], radius]: %w", shape, domain.ErrInvalidSpec)
		}
		c, ok := document.AsPoint(arr[0])
		if !ok {
			return nil, fmt.Errorf("%s center: %w", shape, domain.ErrInvalidSpec)
		}
		if shape == "$center" {
			return geo.Circle{Center: c, RadiusDeg: arr[1].FloatValue()}, nil
		}
		return geo.SphereCircle{Center: c, RadiusRad: arr[1].FloatValue()}, nil
	case "$box":
		pts, ok := document.AsPointList(v)
		if !ok || len(pts) != 2 {
			return nil, fmt.Errorf("$box requires two corners: %w", domain.ErrInvalidSpec)
		}
		return geo.NewBox(pts[0], pts[1]), nil
	case "$polygon":
		pts, ok := document.AsPointList(v)
		if !ok {
			return nil, fmt.Errorf("$polygon requires [lng, lat] pairs: %w", domain.ErrInvalidSpec)
		}
		pg, err := geo.NewPolygon([][]geo.Point{pts})
		if err != nil {
			return nil, fmt.Errorf("$polygon: %v: %w", err, domain.ErrInvalidSpec)
		}
		return pg, nil
	case "$geometry":
		pg, ok := document.AsPolygon(v)
		if !ok {
			return nil, fmt.Errorf("$geometry must be a valid GeoJSON Polygon: %w", domain.ErrInvalidSpec)
		}
		return pg, nil
	}
	return nil, fmt.Errorf("unknown $geoWithin shape %s: %w", shape, domain.ErrInvalidSpec)
}

// Shape renders the filter with values erased, for plan caching.
func (f *Filter) Shape() string {
	var b strings.Builder
	writeShape(&b, f.root)
	return b.String()
}

func writeShape(b *strings.Builder, n Node) {
	list := func(tag string, children []Node) {
		b.WriteString(tag)
		b.WriteByte('(')
		for i, c := range children {
			if i > 0 {
				b.WriteByte(',')
			}
			writeShape(b, c)
		}
		b.WriteByte(')')
	}
	switch t := n.(type) {
	case And:
		list("and", t.Children)
	case Or:
		list("or", t.Children)
	case Nor:
		list("nor", t.Children)
	case Not:
		b.WriteString("not(")
		writeShape(b, t.Child)
		b.WriteByte(')')
	case *Predicate:
		b.WriteString(t.Path)
		b.WriteString(t.Op)
		if t.Value.IsNull() && (t.Op == "$eq" || t.Op == "$ne" || t.Op == "$gte" || t.Op == "$lte") {
			b.WriteString("null")
		}
		if t.Op == "$in" || t.Op == "$nin" {
			for _, v := range t.Values {
				if v.IsNull() || v.Kind() == document.KindArray {
					b.WriteString("special")
					break
				}
			}
		}
		if t.Op == "$eq" && t.Value.Kind() == document.KindArray {
			b.WriteString("array")
		}
	case *Within:
		b.WriteString(t.Path)
		b.WriteString("$geoWithin")
	case *Near:
		b.WriteString(t.Path)
		b.WriteString("$near")
	case *Text:
		b.WriteString("$text")
	case Expr:
		b.WriteString("$expr")
	}
}
