// Package aggregation decodes and runs aggregation pipelines.
//
// A pipeline is decoded and validated as a whole before anything runs. Each
// stage turns an input stream into an output stream; streams are lazy
// iter.Seq2 sequences, so stages that do not need the whole input (match,
// project, limit, unwind...) process one document at a time. Stages that do
// (group, sort, facet, out...) buffer and check the context while they do.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// DefaultBatchSize is how many documents pass between context checks.
const DefaultBatchSize = 128

// Stream is a lazy sequence of documents. A non-nil error ends the stream.
type Stream = iter.Seq2[*document.Document, error]

// GeoNearQuery is a proximity lookup issued by a leading $geoNear stage.
type GeoNearQuery struct {
	// Key is the indexed path; empty means the only 2dsphere index.
	Key         string
	Near        geo.Point
	MinDistance float64
	MaxDistance float64
	Query       *filter.Filter
}

// GeoHit is one document of a proximity lookup with its distance in meters.
type GeoHit struct {
	Doc      *document.Document
	Distance float64
	Key      string
}

// Env is the database a pipeline reads from and writes to.
type Env interface {
	// Find streams the documents of a collection that match f. A missing
	// collection yields nothing.
	Find(ctx context.Context, collection string, f *filter.Filter) Stream
	// GeoNear streams the documents nearest to a point, closest first.
	GeoNear(ctx context.Context, collection string, q GeoNearQuery) iter.Seq2[GeoHit, error]
	// ReplaceAll atomically replaces the contents of a collection.
	ReplaceAll(ctx context.Context, collection string, docs []*document.Document) error
	// Merge atomically upserts documents into a collection.
	Merge(ctx context.Context, collection string, docs []*document.Document, opts MergeOptions) error
	// Rand returns a random source for one stage. It is not shared.
	Rand() *rand.Rand
}

// Stage is one decoded pipeline stage. The set of stages is closed.
type Stage interface {
	// Name returns the stage operator, e.g. "$match".
	Name() string
	run(ctx context.Context, rt *runtime, in Stream) Stream
}

// Pipeline is a decoded, validated pipeline.
type Pipeline struct {
	stages []Stage
}

// Stages returns the decoded stages in order.
func (p *Pipeline) Stages() []Stage { return p.stages }

// StageNames returns the stage operators in order.
func (p *Pipeline) StageNames() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Options tune execution.
type Options struct {
	BatchSize int
}

type runtime struct {
	env        Env
	collection string
	batch      int
}

// every returns a function reporting the context error every batch calls.
func (rt *runtime) every(ctx context.Context) func() error {
	n := 0
	return func() error {
		n++
		if n%rt.batch == 0 {
			return ctx.Err()
		}
		return nil
	}
}

// Run executes the pipeline over a collection. The returned stream is lazy;
// $out and $merge commit when the stream is drained.
func (p *Pipeline) Run(ctx context.Context, env Env, collection string, opts Options) Stream {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	rt := &runtime{env: env, collection: collection, batch: opts.BatchSize}
	var s Stream
	rest := p.stages
	switch first := firstStage(p.stages).(type) {
	case *GeoNear:
		s = wrapStage(0, first, first.source(ctx, rt))
		rest = rest[1:]
	case *Match:
		s = wrapStage(0, first, env.Find(ctx, collection, first.filter))
		rest = rest[1:]
	default:
		s = env.Find(ctx, collection, nil)
	}
	offset := len(p.stages) - len(rest)
	return chain(ctx, rt, rest, offset, s)
}

func firstStage(stages []Stage) Stage {
	if len(stages) == 0 {
		return nil
	}
	return stages[0]
}

// chain connects stages, checking the context between them.
func chain(ctx context.Context, rt *runtime, stages []Stage, offset int, s Stream) Stream {
	for i, st := range stages {
		s = wrapStage(offset+i, st, st.run(ctx, rt, guard(ctx, s)))
	}
	return s
}

// guard stops a stream once the context is done.
func guard(ctx context.Context, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		in(yield)
	}
}

// wrapStage attributes errors to the stage that raised them.
func wrapStage(index int, st Stage, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		for d, err := range in {
			if err != nil {
				var se *domain.StageError
				if !errors.As(err, &se) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					err = &domain.StageError{Index: index, Stage: st.Name(), Err: err}
				}
				yield(nil, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Collect drains a stream into a slice.
func Collect(s Stream) ([]*document.Document, error) {
	var out []*document.Document
	for d, err := range s {
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func fromSlice(docs []*document.Document) Stream {
	return func(yield func(*document.Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func fail(err error) Stream {
	return func(yield func(*document.Document, error) bool) {
		yield(nil, err)
	}
}

// buffer drains in with periodic context checks.
func buffer(ctx context.Context, rt *runtime, in Stream) ([]*document.Document, error) {
	tick := rt.every(ctx)
	var out []*document.Document
	for d, err := range in {
		if err != nil {
			return nil, err
		}
		if err := tick(); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func stageErr(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrInvalidStageSpec)...)
}
