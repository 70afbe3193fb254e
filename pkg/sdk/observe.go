package docdex

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/docdex/internal/metrics"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	written    *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdex",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total SDK operations by collection, type and status.",
		}, []string{"collection", "operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docdex",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdex",
			Subsystem: "sdk",
			Name:      "documents_written_total",
			Help:      "Documents inserted, modified or deleted through the SDK.",
		}, []string{"collection", "operation"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.written); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("docdex: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("docdex: register metric: %w", err)
	}
	return nil
}

// observer logs SDK operations and records them per collection.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(collection, op string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(collection, op, metrics.Status(err)).Inc()
		o.metrics.duration.WithLabelValues(collection, op).Observe(dur.Seconds())
	}

	if o.logger != nil {
		if err != nil {
			o.logger.Warn("docdex operation failed",
				"collection", collection,
				"op", op,
				"duration", dur,
				"error", err,
			)
		} else {
			o.logger.Debug("docdex operation completed",
				"collection", collection,
				"op", op,
				"duration", dur,
			)
		}
	}
}

// written counts documents a write operation changed.
func (o *observer) written(collection, op string, n int) {
	if o == nil || o.metrics == nil || n <= 0 {
		return
	}
	o.metrics.written.WithLabelValues(collection, op).Add(float64(n))
}
