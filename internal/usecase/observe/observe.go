// Package observe records the outcome of use-case operations in logs and
// metrics.
package observe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/logger"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// Op logs one finished operation at Debug, or Warn on failure, and records
// its metrics. The logger comes from ctx.
func Op(ctx context.Context, collection, op string, start time.Time, err error, fields ...zap.Field) {
	metrics.ObserveOperation(collection, op, start, err)

	fields = append(fields,
		zap.String("collection", collection),
		zap.String("op", op),
		zap.Duration("duration", time.Since(start)),
	)
	log := logger.FromContext(ctx)
	if err != nil {
		log.Warn("operation failed", append(fields, zap.Error(err))...)
		return
	}
	log.Debug("operation completed", fields...)
}
