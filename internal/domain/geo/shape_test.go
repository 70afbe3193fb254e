package geo

import (
	"math"
	"testing"
)

func TestNewPoint_RejectsOutOfRange(t *testing.T) {
	if _, err := NewPoint(181, 0); err == nil {
		t.Fatal("expected error for longitude 181")
	}
	if _, err := NewPoint(0, -91); err == nil {
		t.Fatal("expected error for latitude -91")
	}
	if _, err := NewPoint(math.NaN(), 0); err == nil {
		t.Fatal("expected error for NaN")
	}
	p, err := NewPoint(-73.97, 40.77)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Lng != -73.97 || p.Lat != 40.77 {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestBox_Contains(t *testing.T) {
	b := NewBox(Point{Lng: 10, Lat: 10}, Point{Lng: 0, Lat: 0})
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{5, 5}, true},
		{Point{0, 0}, true},
		{Point{10, 10}, true},
		{Point{10.01, 5}, false},
		{Point{5, -0.01}, false},
	}
	for _, tt := range tests {
		if got := b.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestCircle_DegreeRadius(t *testing.T) {
	c := Circle{Center: Point{Lng: -73.97, Lat: 40.77}, RadiusDeg: 0.1}
	if !c.Contains(Point{Lng: -73.97, Lat: 40.77}) {
		t.Error("center must be inside")
	}
	if !c.Contains(Point{Lng: -73.90, Lat: 40.77}) {
		t.Error("0.07 degrees away must be inside")
	}
	if c.Contains(Point{Lng: -73.80, Lat: 40.77}) {
		t.Error("0.17 degrees away must be outside")
	}
	b := c.Bounds()
	if !b.Contains(Point{Lng: -73.87, Lat: 40.87}) {
		t.Error("bounds must enclose the circle")
	}
}

func TestSphereCircle_Radians(t *testing.T) {
	center := Point{Lng: 0, Lat: 0}
	// 100 km
	c := SphereCircle{Center: center, RadiusRad: 100_000 / EarthRadiusMeters}
	if !c.Contains(Point{Lng: 0.5, Lat: 0}) {
		t.Error("~55km away must be inside")
	}
	if c.Contains(Point{Lng: 1.5, Lat: 0}) {
		t.Error("~167km away must be outside")
	}
	if !c.Bounds().Contains(Point{Lng: 0.89, Lat: 0}) {
		t.Error("bounds must enclose the cap")
	}
}

func TestSphereCircle_BoundsNearPole(t *testing.T) {
	c := SphereCircle{Center: Point{Lng: 0, Lat: 89}, RadiusRad: 0.1}
	if c.Bounds() != World() {
		t.Errorf("expected world bounds near pole, got %+v", c.Bounds())
	}
}

func TestPolygon_Contains(t *testing.T) {
	pg, err := NewPolygon([][]Point{{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}})
	if err != nil {
		t.Fatalf("NewPolygon: %v", err)
	}
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"inside", Point{5, 5}, true},
		{"vertex", Point{0, 0}, true},
		{"edge", Point{10, 5}, true},
		{"outside", Point{11, 5}, false},
		{"below", Point{5, -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pg.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%+v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPolygon_Hole(t *testing.T) {
	pg, err := NewPolygon([][]Point{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}},
	})
	if err != nil {
		t.Fatalf("NewPolygon: %v", err)
	}
	if pg.Contains(Point{5, 5}) {
		t.Error("point inside hole must be outside polygon")
	}
	if !pg.Contains(Point{2, 2}) {
		t.Error("point between shell and hole must be inside")
	}
	if !pg.Contains(Point{4, 5}) {
		t.Error("point on hole boundary belongs to polygon")
	}
}

func TestPolygon_Concave(t *testing.T) {
	// U shape opening to the north.
	pg, err := NewPolygon([][]Point{{
		{0, 0}, {6, 0}, {6, 6}, {4, 6}, {4, 2}, {2, 2}, {2, 6}, {0, 6},
	}})
	if err != nil {
		t.Fatalf("NewPolygon: %v", err)
	}
	if pg.Contains(Point{3, 4}) {
		t.Error("notch must be outside")
	}
	if !pg.Contains(Point{1, 4}) || !pg.Contains(Point{5, 4}) {
		t.Error("arms must be inside")
	}
}

func TestNewPolygon_Invalid(t *testing.T) {
	if _, err := NewPolygon(nil); err == nil {
		t.Error("expected error for no rings")
	}
	if _, err := NewPolygon([][]Point{{{0, 0}, {1, 1}, {0, 0}}}); err == nil {
		t.Error("expected error for degenerate ring")
	}
	if _, err := NewPolygon([][]Point{{{0, 0}, {200, 1}, {1, 0}}}); err == nil {
		t.Error("expected error for out of range vertex")
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	a := Point{Lng: 32.4245, Lat: 34.7768}
	b := Point{Lng: 33.0413, Lat: 34.6786}
	if !almost(DistanceMeters(a, b), DistanceMeters(b, a), 1e-9) {
		t.Fatal("distance must be symmetric")
	}
}
