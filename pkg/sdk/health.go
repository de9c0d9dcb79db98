package ragdex

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

// HealthStatus represents the aggregated index health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "not_ready"
	Items  int               // records loaded
	Checks map[string]string // component → "ok"/"error"
}

// Health checks the loaded index and, when supported, the embedding provider.
func (i *Index) Health(ctx context.Context) HealthStatus {
	var embedding healthuc.EmbeddingChecker
	if hc, ok := i.embed.(domain.HealthChecker); ok {
		embedding = hc
	}

	report := healthuc.New(i.engine, nil, embedding).Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Items:  report.Items,
		Checks: checks,
	}
}
