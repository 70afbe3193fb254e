package aggregation

import (
	"context"
	"math"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// GeoNear sources documents by proximity through a 2dsphere index.
type GeoNear struct {
	query         GeoNearQuery
	distanceField string
	includeLocs   string
}

func decodeGeoNear(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$geoNear takes an object")
	}
	g := &GeoNear{query: GeoNearQuery{MaxDistance: math.Inf(1)}}
	var hasNear bool
	for _, f := range body.DocumentValue().Fields() {
		switch f.Key {
		case "near":
			p, ok := document.AsPoint(f.Value)
			if !ok {
				return nil, stageErr("$geoNear near must be a point")
			}
			g.query.Near, hasNear = p, true
		case "distanceField":
			if f.Value.Kind() != document.KindString || document.ValidatePath(f.Value.StringValue()) != nil {
				return nil, stageErr("$geoNear distanceField must be a field name")
			}
			g.distanceField = f.Value.StringValue()
		case "maxDistance", "minDistance":
			if !f.Value.IsNumber() || f.Value.FloatValue() < 0 {
				return nil, stageErr("$geoNear %s must be a non-negative number", f.Key)
			}
			if f.Key == "maxDistance" {
				g.query.MaxDistance = f.Value.FloatValue()
			} else {
				g.query.MinDistance = f.Value.FloatValue()
			}
		case "query":
			if f.Value.Kind() != document.KindDocument {
				return nil, stageErr("$geoNear query must be an object")
			}
			q, err := filter.Parse(f.Value.DocumentValue())
			if err != nil {
				return nil, err
			}
			if q.Near() != nil || q.Text() != nil {
				return nil, stageErr("$geoNear query cannot use $near or $text")
			}
			g.query.Query = q
		case "key":
			if f.Value.Kind() != document.KindString || document.ValidatePath(f.Value.StringValue()) != nil {
				return nil, stageErr("$geoNear key must be a field name")
			}
			g.query.Key = f.Value.StringValue()
		case "includeLocs":
			if f.Value.Kind() != document.KindString || document.ValidatePath(f.Value.StringValue()) != nil {
				return nil, stageErr("$geoNear includeLocs must be a field name")
			}
			g.includeLocs = f.Value.StringValue()
		case "spherical":
			// distances are always spherical
		default:
			return nil, stageErr("$geoNear: unknown option %q", f.Key)
		}
	}
	if !hasNear || g.distanceField == "" {
		return nil, stageErr("$geoNear requires near and distanceField")
	}
	if g.query.MinDistance > g.query.MaxDistance {
		return nil, stageErr("$geoNear minDistance exceeds maxDistance")
	}
	return g, nil
}

// Name implements Stage.
func (*GeoNear) Name() string { return "$geoNear" }

// Query returns the proximity lookup the stage issues.
func (g *GeoNear) Query() GeoNearQuery { return g.query }

func (g *GeoNear) source(ctx context.Context, rt *runtime) Stream {
	return func(yield func(*document.Document, error) bool) {
		for hit, err := range rt.env.GeoNear(ctx, rt.collection, g.query) {
			if err != nil {
				yield(nil, err)
				return
			}
			out := hit.Doc.Clone()
			if g.includeLocs != "" {
				if loc, ok := hit.Doc.GetPath(hit.Key); ok {
					if err := out.SetPath(g.includeLocs, loc.Clone()); err != nil {
						yield(nil, err)
						return
					}
				}
			}
			if err := out.SetPath(g.distanceField, document.Float(hit.Distance)); err != nil {
				yield(nil, err)
				return
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

// run ignores its input; the stage always leads the pipeline.
func (g *GeoNear) run(ctx context.Context, rt *runtime, _ Stream) Stream {
	return g.source(ctx, rt)
}
