package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/planner"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("get: %w", domain.ErrCollectionNotFound), "not_found"},
		{domain.ErrIndexNotFound, "not_found"},
		{&domain.DuplicateKeyError{Collection: "c", Index: "_id_"}, "duplicate_key"},
		{domain.ErrValidation, "validation"},
		{domain.ErrAlreadyExists, "exists"},
		{domain.ErrMissingIndex, "invalid"},
		{domain.ErrUnknownStage, "invalid"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("users", "insert", "ok"))
	ObserveOperation("users", "insert", time.Now(), nil)
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("users", "insert", "ok"))
	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %f", after-before)
	}
	if testutil.CollectAndCount(OperationDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestCatalogObserver(t *testing.T) {
	var o CatalogObserver
	o.Evicted("logs", 3)
	o.Planned("logs", planner.KindIndexScan)

	if got := testutil.ToFloat64(EvictionsTotal.WithLabelValues("logs")); got != 3 {
		t.Errorf("evictions = %f, want 3", got)
	}
	if got := testutil.ToFloat64(PlansTotal.WithLabelValues("logs", "IXSCAN")); got != 1 {
		t.Errorf("plans = %f, want 1", got)
	}
}

func TestObservePipeline(t *testing.T) {
	ObservePipeline([]string{"$match", "$group", "$match"})
	if got := testutil.ToFloat64(PipelineStagesTotal.WithLabelValues("$match")); got < 2 {
		t.Errorf("$match stages = %f, want >= 2", got)
	}
}

func TestRegisterEngineMetrics_Idempotent(t *testing.T) {
	RegisterEngineMetrics()
	RegisterEngineMetrics()
}
