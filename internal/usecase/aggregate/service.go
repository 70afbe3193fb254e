package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/metrics"
	"github.com/kailas-cloud/docdex/internal/usecase/observe"
)

// Service runs aggregation pipelines.
type Service struct {
	db Catalog
}

// New creates an aggregate service.
func New(db Catalog) *Service {
	return &Service{db: db}
}

// Run decodes stages and returns the lazy output stream. Decoding errors are
// returned immediately; stage errors surface from the stream. The operation
// is observed once the stream is drained or abandoned.
func (s *Service) Run(ctx context.Context, name string, stages []*domdoc.Document) (aggregation.Stream, error) {
	start := time.Now()
	p, err := aggregation.Parse(stages)
	if err != nil {
		observe.Op(ctx, name, "aggregate", start, err)
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	names := p.StageNames()
	metrics.ObservePipeline(names)

	out := s.db.Aggregate(ctx, name, p)
	return func(yield func(*domdoc.Document, error) bool) {
		var (
			n      int
			runErr error
		)
		defer func() {
			observe.Op(ctx, name, "aggregate", start, runErr,
				zap.Strings("stages", names), zap.Int("results", n))
		}()
		for d, err := range out {
			if err != nil {
				runErr = err
				yield(nil, err)
				return
			}
			n++
			if !yield(d, nil) {
				return
			}
		}
	}, nil
}
