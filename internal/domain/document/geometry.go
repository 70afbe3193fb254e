package document

import (
	"github.com/kailas-cloud/docdex/internal/domain/geo"
)

// AsPoint interprets a value as a point. Accepted forms: a geometry point,
// a GeoJSON {type: "Point", coordinates: [lng, lat]} document, and a legacy
// [lng, lat] pair.
func AsPoint(v Value) (geo.Point, bool) {
	switch v.kind {
	case KindGeometry:
		if v.geom.IsPolygon() {
			return geo.Point{}, false
		}
		return v.geom.Point, true
	case KindArray:
		return pairToPoint(v.arr)
	case KindDocument:
		t, ok := v.doc.Get("type")
		if !ok || t.kind != KindString || t.s != "Point" {
			return geo.Point{}, false
		}
		c, ok := v.doc.Get("coordinates")
		if !ok || c.kind != KindArray {
			return geo.Point{}, false
		}
		return pairToPoint(c.arr)
	}
	return geo.Point{}, false
}

func pairToPoint(arr []Value) (geo.Point, bool) {
	if len(arr) != 2 || !arr[0].IsNumber() || !arr[1].IsNumber() {
		return geo.Point{}, false
	}
	p, err := geo.NewPoint(arr[0].FloatValue(), arr[1].FloatValue())
	if err != nil {
		return geo.Point{}, false
	}
	return p, true
}

// AsPolygon interprets a value as a polygon: a geometry polygon or a GeoJSON
// {type: "Polygon", coordinates: [[[lng, lat], ...], ...]} document.
func AsPolygon(v Value) (geo.Polygon, bool) {
	switch v.kind {
	case KindGeometry:
		if !v.geom.IsPolygon() {
			return geo.Polygon{}, false
		}
		return *v.geom.Polygon, true
	case KindDocument:
		t, ok := v.doc.Get("type")
		if !ok || t.kind != KindString || t.s != "Polygon" {
			return geo.Polygon{}, false
		}
		c, ok := v.doc.Get("coordinates")
		if !ok || c.kind != KindArray {
			return geo.Polygon{}, false
		}
		rings := make([][]geo.Point, 0, len(c.arr))
		for _, r := range c.arr {
			ring, ok := AsPointList(r)
			if !ok {
				return geo.Polygon{}, false
			}
			rings = append(rings, ring)
		}
		pg, err := geo.NewPolygon(rings)
		if err != nil {
			return geo.Polygon{}, false
		}
		return pg, true
	}
	return geo.Polygon{}, false
}

// AsPointList interprets an array of [lng, lat] pairs.
func AsPointList(v Value) ([]geo.Point, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]geo.Point, 0, len(v.arr))
	for _, e := range v.arr {
		p, ok := AsPoint(e)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// GeoJSON renders a geometry as its GeoJSON document.
func GeoJSON(g Geometry) *Document {
	if g.IsPolygon() {
		rings := make([]Value, len(g.Polygon.Rings))
		for i, ring := range g.Polygon.Rings {
			pts := make([]Value, 0, len(ring)+1)
			for _, p := range ring {
				pts = append(pts, Array(Float(p.Lng), Float(p.Lat)))
			}
			// GeoJSON rings are closed.
			pts = append(pts, Array(Float(ring[0].Lng), Float(ring[0].Lat)))
			rings[i] = Array(pts...)
		}
		return FromFields(Field{"type", String("Polygon")}, Field{"coordinates", Array(rings...)})
	}
	return FromFields(
		Field{"type", String("Point")},
		Field{"coordinates", Array(Float(g.Point.Lng), Float(g.Point.Lat))},
	)
}
