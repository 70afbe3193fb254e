package aggregation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Facet runs independent sub-pipelines over one snapshot of its input.
type Facet struct {
	names     []string
	pipelines []*Pipeline
}

func decodeFacet(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument || body.DocumentValue().Len() == 0 {
		return nil, stageErr("$facet takes a non-empty object")
	}
	f := &Facet{}
	for _, fld := range body.DocumentValue().Fields() {
		docs, err := stageDocs(fld.Value)
		if err != nil {
			return nil, err
		}
		p, err := parse(docs, true)
		if err != nil {
			return nil, err
		}
		f.names = append(f.names, fld.Key)
		f.pipelines = append(f.pipelines, p)
	}
	return f, nil
}

// Name implements Stage.
func (*Facet) Name() string { return "$facet" }

func (f *Facet) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		snapshot, err := buffer(ctx, rt, in)
		if err != nil {
			yield(nil, err)
			return
		}
		results := make([][]*document.Document, len(f.pipelines))
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range f.pipelines {
			g.Go(func() error {
				docs, err := Collect(chain(gctx, rt, p.stages, 0, fromSlice(snapshot)))
				if err != nil {
					return err
				}
				results[i] = docs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			yield(nil, err)
			return
		}
		out := document.New()
		for i, name := range f.names {
			vals := make([]document.Value, len(results[i]))
			for j, d := range results[i] {
				vals[j] = document.Doc(d)
			}
			out.Set(name, document.Array(vals...))
		}
		yield(out, nil)
	}
}
