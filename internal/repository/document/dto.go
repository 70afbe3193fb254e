package document

import (
	"fmt"
	"math"
	"time"

	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
)

// valueRow is the JSON-serializable form of a document value. The type tag
// keeps kinds that plain JSON would lose (int vs double, dates, geometry).
type valueRow struct {
	Type  domdoc.Kind `json:"t"`
	Bool  bool        `json:"b,omitempty"`
	Int   int64       `json:"i,omitempty"`
	Float uint64      `json:"f,omitempty"` // IEEE-754 bits, NaN and Inf survive
	Str   string      `json:"s,omitempty"`
	Arr   []valueRow  `json:"a,omitempty"`
	Doc   []fieldRow  `json:"o,omitempty"`
	Geo   *geoRow     `json:"g,omitempty"`
}

type fieldRow struct {
	Key   string   `json:"k"`
	Value valueRow `json:"v"`
}

type geoRow struct {
	Point [2]float64     `json:"p"`
	Rings [][][2]float64 `json:"r,omitempty"`
}

func docToRows(d *domdoc.Document) []fieldRow {
	rows := make([]fieldRow, d.Len())
	for i, f := range d.Fields() {
		rows[i] = fieldRow{Key: f.Key, Value: valueToRow(f.Value)}
	}
	return rows
}

func valueToRow(v domdoc.Value) valueRow {
	r := valueRow{Type: v.Kind()}
	switch v.Kind() {
	case domdoc.KindBool:
		r.Bool = v.BoolValue()
	case domdoc.KindInt:
		r.Int = v.IntValue()
	case domdoc.KindFloat:
		r.Float = math.Float64bits(v.FloatValue())
	case domdoc.KindString:
		r.Str = v.StringValue()
	case domdoc.KindDate:
		r.Str = v.TimeValue().Format(time.RFC3339Nano)
	case domdoc.KindArray:
		arr := v.ArrayValue()
		r.Arr = make([]valueRow, len(arr))
		for i, e := range arr {
			r.Arr[i] = valueToRow(e)
		}
	case domdoc.KindDocument:
		r.Doc = docToRows(v.DocumentValue())
	case domdoc.KindGeometry:
		g := v.GeometryValue()
		gr := &geoRow{Point: [2]float64{g.Point.Lng, g.Point.Lat}}
		if g.IsPolygon() {
			gr.Rings = make([][][2]float64, len(g.Polygon.Rings))
			for i, ring := range g.Polygon.Rings {
				gr.Rings[i] = make([][2]float64, len(ring))
				for j, p := range ring {
					gr.Rings[i][j] = [2]float64{p.Lng, p.Lat}
				}
			}
		}
		r.Geo = gr
	}
	return r
}

func rowsToDoc(rows []fieldRow) (*domdoc.Document, error) {
	fields := make([]domdoc.Field, len(rows))
	for i, r := range rows {
		v, err := rowToValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", r.Key, err)
		}
		fields[i] = domdoc.Field{Key: r.Key, Value: v}
	}
	return domdoc.FromFields(fields...), nil
}

func rowToValue(r valueRow) (domdoc.Value, error) {
	switch r.Type {
	case domdoc.KindNull:
		return domdoc.Null(), nil
	case domdoc.KindBool:
		return domdoc.Bool(r.Bool), nil
	case domdoc.KindInt:
		return domdoc.Int(r.Int), nil
	case domdoc.KindFloat:
		return domdoc.Float(math.Float64frombits(r.Float)), nil
	case domdoc.KindString:
		return domdoc.String(r.Str), nil
	case domdoc.KindDate:
		t, err := time.Parse(time.RFC3339Nano, r.Str)
		if err != nil {
			return domdoc.Value{}, fmt.Errorf("invalid date: %w", err)
		}
		return domdoc.Date(t), nil
	case domdoc.KindArray:
		arr := make([]domdoc.Value, len(r.Arr))
		for i, e := range r.Arr {
			v, err := rowToValue(e)
			if err != nil {
				return domdoc.Value{}, err
			}
			arr[i] = v
		}
		return domdoc.Array(arr...), nil
	case domdoc.KindDocument:
		d, err := rowsToDoc(r.Doc)
		if err != nil {
			return domdoc.Value{}, err
		}
		return domdoc.Doc(d), nil
	case domdoc.KindGeometry:
		if r.Geo == nil {
			return domdoc.Value{}, fmt.Errorf("geometry without coordinates")
		}
		if len(r.Geo.Rings) == 0 {
			return domdoc.PointValue(geo.Point{Lng: r.Geo.Point[0], Lat: r.Geo.Point[1]}), nil
		}
		rings := make([][]geo.Point, len(r.Geo.Rings))
		for i, ring := range r.Geo.Rings {
			rings[i] = make([]geo.Point, len(ring))
			for j, p := range ring {
				rings[i][j] = geo.Point{Lng: p[0], Lat: p[1]}
			}
		}
		return domdoc.PolygonValue(geo.Polygon{Rings: rings}), nil
	}
	return domdoc.Value{}, fmt.Errorf("unknown value type %d", r.Type)
}
