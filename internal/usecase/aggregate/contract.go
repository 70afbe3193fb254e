package aggregate

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/aggregation"
)

// Catalog runs decoded pipelines.
type Catalog interface {
	Aggregate(ctx context.Context, name string, p *aggregation.Pipeline) aggregation.Stream
}
