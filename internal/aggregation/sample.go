package aggregation

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Sample picks size documents uniformly without replacement.
type Sample struct {
	size int64
}

func decodeSample(body document.Value) (Stage, error) {
	if body.Kind() != document.KindDocument {
		return nil, stageErr("$sample takes {size: n}")
	}
	d := body.DocumentValue()
	v, ok := d.Get("size")
	if !ok || d.Len() != 1 {
		return nil, stageErr("$sample takes {size: n}")
	}
	n, err := positiveInt("$sample size", v, false)
	if err != nil {
		return nil, err
	}
	return &Sample{size: n}, nil
}

// Name implements Stage.
func (*Sample) Name() string { return "$sample" }

func (s *Sample) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		rnd := rt.env.Rand()
		tick := rt.every(ctx)
		var (
			reservoir []*document.Document
			seen      int64
		)
		for d, err := range in {
			if err == nil {
				err = tick()
			}
			if err != nil {
				yield(nil, err)
				return
			}
			seen++
			if int64(len(reservoir)) < s.size {
				reservoir = append(reservoir, d)
				continue
			}
			if j := rnd.Int64N(seen); j < s.size {
				reservoir[j] = d
			}
		}
		rnd.Shuffle(len(reservoir), func(i, j int) {
			reservoir[i], reservoir[j] = reservoir[j], reservoir[i]
		})
		fromSlice(reservoir)(yield)
	}
}
