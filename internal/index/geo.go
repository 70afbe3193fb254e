package index

import (
	"cmp"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// cellDegrees is the side of one grid cell.
const cellDegrees = 1.0

// maxCellProbe bounds how many cells a lookup visits before scanning every row.
const maxCellProbe = 4096

type cell struct{ lat, lng int }

func cellOf(p geo.Point) cell {
	return cell{lat: int(math.Floor(p.Lat / cellDegrees)), lng: int(math.Floor(p.Lng / cellDegrees))}
}

type geoEntry struct {
	points []geo.Point
	ecef   [][3]float64
	// polygon shell vertices; they place a row in cells but never answer
	// proximity lookups
	vertices []geo.Point
}

// Geo is a 2dsphere index. Points are bucketed into a lat/lng grid, and each
// point keeps its ECEF vector so distance lookups can prune by chord length
// before computing the great-circle distance.
type Geo struct {
	spec    indexspec.Spec
	path    string
	cells   map[cell]*roaring.Bitmap
	entries map[RowID]geoEntry
	rows    *roaring.Bitmap
	resolve Resolver
}

// NewGeo creates an empty 2dsphere index.
func NewGeo(spec indexspec.Spec, resolve Resolver) *Geo {
	return &Geo{
		spec:    spec,
		path:    spec.Keys()[0].Path,
		cells:   make(map[cell]*roaring.Bitmap),
		entries: make(map[RowID]geoEntry),
		rows:    roaring.New(),
		resolve: resolve,
	}
}

// Spec implements Index.
func (g *Geo) Spec() indexspec.Spec { return g.spec }

// Path returns the indexed path.
func (g *Geo) Path() string { return g.path }

// Multikey implements Index. Geo indexes never satisfy sorts.
func (g *Geo) Multikey() bool { return true }

// Len implements Index.
func (g *Geo) Len() int { return int(g.rows.GetCardinality()) }

// Rows implements Index.
func (g *Geo) Rows() *roaring.Bitmap { return g.rows.Clone() }

func (g *Geo) shapesOf(d *document.Document) (points, vertices []geo.Point) {
	for _, v := range d.Resolve(g.path) {
		if pg, ok := document.AsPolygon(v); ok {
			vertices = append(vertices, pg.Rings[0]...)
			continue
		}
		points = append(points, filter.Points(v)...)
	}
	return points, vertices
}

func (g *Geo) addCell(p geo.Point, row RowID) {
	c := cellOf(p)
	bm, ok := g.cells[c]
	if !ok {
		bm = roaring.New()
		g.cells[c] = bm
	}
	bm.Add(row)
}

// Check implements Index. Documents without a valid point are not indexed.
func (g *Geo) Check(RowID, *document.Document) error { return nil }

// Add implements Index.
func (g *Geo) Add(row RowID, d *document.Document) {
	pts, verts := g.shapesOf(d)
	if len(pts) == 0 && len(verts) == 0 {
		return
	}
	e := geoEntry{points: pts, ecef: make([][3]float64, len(pts)), vertices: verts}
	for i, p := range pts {
		e.ecef[i] = geo.ToECEF(p.Lat, p.Lng)
		g.addCell(p, row)
	}
	for _, p := range verts {
		g.addCell(p, row)
	}
	g.entries[row] = e
	g.rows.Add(row)
}

// Remove implements Index.
func (g *Geo) Remove(row RowID, _ *document.Document) {
	e, ok := g.entries[row]
	if !ok {
		return
	}
	for _, p := range slices.Concat(e.points, e.vertices) {
		c := cellOf(p)
		if bm, ok := g.cells[c]; ok {
			bm.Remove(row)
			if bm.IsEmpty() {
				delete(g.cells, c)
			}
		}
	}
	delete(g.entries, row)
	g.rows.Remove(row)
}

// candidates returns rows with a point inside the box.
func (g *Geo) candidates(b geo.Box) *roaring.Bitmap {
	lo, hi := cellOf(b.Min), cellOf(b.Max)
	if (hi.lat-lo.lat+1)*(hi.lng-lo.lng+1) > maxCellProbe {
		return g.rows.Clone()
	}
	out := roaring.New()
	for lat := lo.lat; lat <= hi.lat; lat++ {
		for lng := lo.lng; lng <= hi.lng; lng++ {
			if bm, ok := g.cells[cell{lat, lng}]; ok {
				out.Or(bm)
			}
		}
	}
	return out
}

// Within returns candidate rows with any point inside the region. Callers
// re-check the full predicate.
func (g *Geo) Within(r geo.Region) *roaring.Bitmap {
	out := roaring.New()
	it := g.candidates(r.Bounds()).Iterator()
	for it.HasNext() {
		row := it.Next()
		e := g.entries[row]
		for _, p := range slices.Concat(e.points, e.vertices) {
			if r.Contains(p) {
				out.Add(row)
				break
			}
		}
	}
	return out
}

// Hit is one result of a proximity lookup.
type Hit struct {
	Row      RowID
	Distance float64
}

// Near returns rows whose nearest point lies within [minDist, maxDist] meters
// of center, ordered by distance and then by _id.
func (g *Geo) Near(center geo.Point, minDist, maxDist float64) []Hit {
	probe := g.rows
	maxChord := math.Inf(1)
	if !math.IsInf(maxDist, 1) {
		probe = g.candidates(geo.SphereCircle{Center: center, RadiusRad: maxDist / geo.EarthRadiusMeters}.Bounds())
		// small slack so rounding never prunes a boundary point
		maxChord = geo.MetersToL2(maxDist) + 1e-9
	}
	c := geo.ToECEF(center.Lat, center.Lng)

	var hits []Hit
	it := probe.Iterator()
	for it.HasNext() {
		row := it.Next()
		e := g.entries[row]
		best := math.Inf(1)
		for i, p := range e.points {
			if geo.ChordDistance(c, e.ecef[i]) > maxChord {
				continue
			}
			best = min(best, geo.DistanceMeters(center, p))
		}
		if len(e.points) > 0 && best >= minDist && best <= maxDist {
			hits = append(hits, Hit{Row: row, Distance: best})
		}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return g.compareIDs(a.Row, b.Row)
	})
	return hits
}

func (g *Geo) compareIDs(a, b RowID) int {
	da, okA := g.resolve(a)
	db, okB := g.resolve(b)
	if !okA || !okB {
		return cmp.Compare(a, b)
	}
	ia, _ := da.ID()
	ib, _ := db.ID()
	return document.Compare(ia, ib)
}
