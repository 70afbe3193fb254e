package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Unhealthy indicates the persistence backend is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status      Status
	Checks      map[string]CheckResult
	Collections int
}

// Service coordinates health checks.
type Service struct {
	store Pinger
	db    Catalog
}

// New creates a Service.
func New(store Pinger, db Catalog) *Service {
	return &Service{store: store, db: db}
}

// Check pings the persistence backend and counts loaded collections.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{"persistence": CheckOK}
	status := Healthy
	if err := s.store.Ping(ctx); err != nil {
		checks["persistence"] = CheckError
		status = Unhealthy
	}
	return Report{Status: status, Checks: checks, Collections: len(s.db.ListCollections())}
}
