package geo

import (
	"fmt"
	"math"
)

const boundaryEpsilon = 1e-12

// Point is a GeoJSON position: longitude first, latitude second.
type Point struct {
	Lng float64
	Lat float64
}

// NewPoint validates coordinates and creates a Point.
func NewPoint(lng, lat float64) (Point, error) {
	if math.IsNaN(lng) || math.IsNaN(lat) || !ValidateCoordinates(lat, lng) {
		return Point{}, fmt.Errorf("coordinates out of range: [%g, %g]", lng, lat)
	}
	return Point{Lng: lng, Lat: lat}, nil
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Region is a bounded area with a membership test.
type Region interface {
	Contains(p Point) bool
	// Bounds returns a planar bounding box used to prune candidates.
	Bounds() Box
}

// Box is an axis-aligned rectangle in degrees.
type Box struct {
	Min Point
	Max Point
}

// NewBox normalizes two opposite corners into a Box.
func NewBox(a, b Point) Box {
	return Box{
		Min: Point{Lng: math.Min(a.Lng, b.Lng), Lat: math.Min(a.Lat, b.Lat)},
		Max: Point{Lng: math.Max(a.Lng, b.Lng), Lat: math.Max(a.Lat, b.Lat)},
	}
}

// World covers every valid coordinate.
func World() Box {
	return Box{Min: Point{Lng: -180, Lat: -90}, Max: Point{Lng: 180, Lat: 90}}
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p Point) bool {
	return p.Lng >= b.Min.Lng && p.Lng <= b.Max.Lng && p.Lat >= b.Min.Lat && p.Lat <= b.Max.Lat
}

// Bounds returns the box itself.
func (b Box) Bounds() Box { return b }

// Circle is a planar circle with a radius in degrees ($center).
type Circle struct {
	Center    Point
	RadiusDeg float64
}

// Contains reports whether p is within the planar radius.
func (c Circle) Contains(p Point) bool {
	dx := p.Lng - c.Center.Lng
	dy := p.Lat - c.Center.Lat
	return math.Sqrt(dx*dx+dy*dy) <= c.RadiusDeg+boundaryEpsilon
}

// Bounds returns the square enclosing the circle.
func (c Circle) Bounds() Box {
	return Box{
		Min: Point{Lng: c.Center.Lng - c.RadiusDeg, Lat: c.Center.Lat - c.RadiusDeg},
		Max: Point{Lng: c.Center.Lng + c.RadiusDeg, Lat: c.Center.Lat + c.RadiusDeg},
	}
}

// SphereCircle is a spherical cap with a radius in radians ($centerSphere).
type SphereCircle struct {
	Center    Point
	RadiusRad float64
}

// Contains reports whether the great-circle distance to p is within the radius.
func (c SphereCircle) Contains(p Point) bool {
	return DistanceMeters(c.Center, p) <= c.RadiusRad*EarthRadiusMeters+1e-6
}

// Bounds returns a conservative box around the cap.
func (c SphereCircle) Bounds() Box {
	rDeg := c.RadiusRad * 180 / math.Pi
	minLat := c.Center.Lat - rDeg
	maxLat := c.Center.Lat + rDeg
	if minLat <= -90 || maxLat >= 90 {
		return World()
	}
	cosLat := math.Min(math.Cos(minLat*math.Pi/180), math.Cos(maxLat*math.Pi/180))
	dLng := rDeg / cosLat
	if dLng >= 180 || c.Center.Lng-dLng < -180 || c.Center.Lng+dLng > 180 {
		return Box{Min: Point{Lng: -180, Lat: minLat}, Max: Point{Lng: 180, Lat: maxLat}}
	}
	return Box{
		Min: Point{Lng: c.Center.Lng - dLng, Lat: minLat},
		Max: Point{Lng: c.Center.Lng + dLng, Lat: maxLat},
	}
}

// Polygon is a simple polygon: the first ring is the shell, the rest are holes.
type Polygon struct {
	Rings [][]Point
}

// NewPolygon validates rings and creates a Polygon. Rings are closed implicitly.
func NewPolygon(rings [][]Point) (Polygon, error) {
	if len(rings) == 0 {
		return Polygon{}, fmt.Errorf("polygon requires at least one ring")
	}
	out := make([][]Point, len(rings))
	for i, ring := range rings {
		r := ring
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		if len(r) < 3 {
			return Polygon{}, fmt.Errorf("polygon ring %d requires at least 3 distinct vertices", i)
		}
		for _, p := range r {
			if !ValidateCoordinates(p.Lat, p.Lng) {
				return Polygon{}, fmt.Errorf("polygon vertex out of range: [%g, %g]", p.Lng, p.Lat)
			}
		}
		out[i] = append([]Point(nil), r...)
	}
	return Polygon{Rings: out}, nil
}

// Contains reports whether p is inside the shell and outside every hole.
// Points on the shell boundary are inside.
func (pg Polygon) Contains(p Point) bool {
	if len(pg.Rings) == 0 {
		return false
	}
	if !ringContains(pg.Rings[0], p) {
		return false
	}
	for _, hole := range pg.Rings[1:] {
		if ringContains(hole, p) && !onRing(hole, p) {
			return false
		}
	}
	return true
}

// Bounds returns the bounding box of the shell.
func (pg Polygon) Bounds() Box {
	if len(pg.Rings) == 0 {
		return Box{}
	}
	b := Box{Min: pg.Rings[0][0], Max: pg.Rings[0][0]}
	for _, v := range pg.Rings[0][1:] {
		b.Min.Lng = math.Min(b.Min.Lng, v.Lng)
		b.Min.Lat = math.Min(b.Min.Lat, v.Lat)
		b.Max.Lng = math.Max(b.Max.Lng, v.Lng)
		b.Max.Lat = math.Max(b.Max.Lat, v.Lat)
	}
	return b
}

func ringContains(ring []Point, p Point) bool {
	if onRing(ring, p) {
		return true
	}
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if p.Lng < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onRing(ring []Point, p Point) bool {
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		if onSegment(ring[j], ring[i], p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p Point) bool {
	cross := (b.Lng-a.Lng)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lng-a.Lng)
	if math.Abs(cross) > boundaryEpsilon {
		return false
	}
	return p.Lng >= math.Min(a.Lng, b.Lng)-boundaryEpsilon && p.Lng <= math.Max(a.Lng, b.Lng)+boundaryEpsilon &&
		p.Lat >= math.Min(a.Lat, b.Lat)-boundaryEpsilon && p.Lat <= math.Max(a.Lat, b.Lat)+boundaryEpsilon
}
