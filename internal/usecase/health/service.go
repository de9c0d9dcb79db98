package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional dependency is failing.
	Degraded Status = "degraded"
	// NotReady indicates no searchable index is loaded.
	NotReady Status = "not_ready"
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
	Status Status
	Items  int
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index     IndexReader
	cache     DBPinger
	embedding EmbeddingChecker
}

// New creates a Service. cache and embedding can be nil.
func New(index IndexReader, cache DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{index: index, cache: cache, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	items := 0

	ready := s.index != nil && !s.index.Closed()
	if ready {
		items = s.index.Len()
		ready = items > 0
	}
	if ready {
		checks["index"] = CheckOK
	} else {
		checks["index"] = CheckError
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	if !ready {
		status = NotReady
	} else {
		for _, v := range checks {
			if v == CheckError {
				status = Degraded
				break
			}
		}
	}

	return Report{Status: status, Items: items, Checks: checks}
}
