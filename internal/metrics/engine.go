package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/planner"
)

// Engine Prometheus metrics.
var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "operations_total",
			Help:      "Total number of engine operations",
		},
		[]string{"collection", "op", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docdex",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op"},
	)

	PlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "plans_total",
			Help:      "Query plans chosen, by access path",
		},
		[]string{"collection", "kind"},
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "capped_evictions_total",
			Help:      "Documents evicted from capped collections",
		},
		[]string{"collection"},
	)

	PipelineStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "pipeline_stages_total",
			Help:      "Aggregation stages executed",
		},
		[]string{"stage"},
	)
)

var registerEngine sync.Once

// RegisterEngineMetrics registers engine metrics on the default registry.
// Safe to call more than once.
func RegisterEngineMetrics() {
	registerEngine.Do(func() {
		prometheus.MustRegister(OperationsTotal)
		prometheus.MustRegister(OperationDuration)
		prometheus.MustRegister(PlansTotal)
		prometheus.MustRegister(EvictionsTotal)
		prometheus.MustRegister(PipelineStagesTotal)
	})
}

// Status classifies an operation error into a low-cardinality label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "exists"
	case errors.Is(err, domain.ErrInvalidSpec), errors.Is(err, domain.ErrInvalidStageSpec),
		errors.Is(err, domain.ErrUnknownStage), errors.Is(err, domain.ErrTypeMismatch),
		errors.Is(err, domain.ErrMissingIndex):
		return "invalid"
	}
	return "error"
}

// ObserveOperation records the outcome and latency of one operation.
func ObserveOperation(collection, op string, start time.Time, err error) {
	OperationsTotal.WithLabelValues(collection, op, Status(err)).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObservePipeline counts the stages of an executed pipeline.
func ObservePipeline(stages []string) {
	for _, s := range stages {
		PipelineStagesTotal.WithLabelValues(s).Inc()
	}
}

// CatalogObserver feeds catalog events into the engine metrics.
type CatalogObserver struct{}

// Evicted counts capped evictions.
func (CatalogObserver) Evicted(collection string, n int) {
	EvictionsTotal.WithLabelValues(collection).Add(float64(n))
}

// Planned counts chosen plans.
func (CatalogObserver) Planned(collection string, kind planner.Kind) {
	PlansTotal.WithLabelValues(collection, string(kind)).Inc()
}
