package planner

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/index"
)

// Kind is the access path of a plan.
type Kind string

// Plan kinds.
const (
	KindCollScan  Kind = "COLLSCAN"
	KindIndexScan Kind = "IXSCAN"
	KindGeoNear   Kind = "GEO_NEAR"
	KindGeoWithin Kind = "GEO_WITHIN"
	KindText      Kind = "TEXT"
)

// Plan is the chosen access path for one query. The exported fields are the
// explain output.
type Plan struct {
	Kind          Kind                `json:"kind"`
	Index         string              `json:"index,omitempty"`
	Bounds        map[string][]string `json:"bounds,omitempty"`
	SortSatisfied bool                `json:"sortSatisfied"`
	Reverse       bool                `json:"reverse"`
	Covered       bool                `json:"covered"`
	Score         int                 `json:"score"`
	Cached        bool                `json:"cached"`

	keyBounds  index.Bounds
	boundPaths []string
	near       *filter.Near
	text       *filter.Text
	within     *filter.Within
}

// Near returns the proximity predicate of a GEO_NEAR plan.
func (p *Plan) Near() *filter.Near { return p.near }

// Document renders the plan for explain.
func (p *Plan) Document() *document.Document {
	d := document.New()
	d.Set("kind", document.String(string(p.Kind)))
	if p.Index != "" {
		d.Set("index", document.String(p.Index))
	}
	if len(p.Bounds) > 0 {
		b := document.New()
		for _, path := range p.boundPaths {
			vals := make([]document.Value, len(p.Bounds[path]))
			for i, s := range p.Bounds[path] {
				vals[i] = document.String(s)
			}
			b.Set(path, document.Array(vals...))
		}
		d.Set("bounds", document.Doc(b))
	}
	d.Set("sortSatisfied", document.Bool(p.SortSatisfied))
	d.Set("reverse", document.Bool(p.Reverse))
	d.Set("covered", document.Bool(p.Covered))
	d.Set("score", document.Int(int64(p.Score)))
	return d
}

func renderBounds(paths []string, b index.Bounds) map[string][]string {
	if len(b) == 0 {
		return nil
	}
	out := make(map[string][]string, len(b))
	for i, ivs := range b {
		rendered := make([]string, len(ivs))
		for j, iv := range ivs {
			rendered[j] = renderInterval(iv)
		}
		out[paths[i]] = rendered
	}
	return out
}

func renderInterval(iv filter.Interval) string {
	lo, hi := "[", "]"
	loV, hiV := "-inf", "+inf"
	if !iv.Low.Unbounded {
		loV = valueString(iv.Low.Value)
		if !iv.Low.Inclusive {
			lo = "("
		}
	}
	if !iv.High.Unbounded {
		hiV = valueString(iv.High.Value)
		if !iv.High.Inclusive {
			hi = ")"
		}
	}
	return fmt.Sprintf("%s%s, %s%s", lo, loV, hiV, hi)
}

func valueString(v document.Value) string {
	b, err := v.MarshalJSON()
	if err != nil {
		return v.Kind().String()
	}
	return string(b)
}
