package embedding

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
)

// ChainOptions configure the decorators around a provider embedder.
type ChainOptions struct {
	Provider     string
	Model        string
	MaxBatchSize int
	Retry        RetryPolicy
	// Cache enables the key-value embedding cache when non-nil.
	Cache db.KVStore
}

// NewChain assembles provider -> cache -> instrumented -> retrying -> newline.
// Retries wrap the cache so a replayed call can still hit entries stored by its first attempt.
func NewChain(base domain.Embedder, opts ChainOptions, logger *zap.Logger) domain.Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}

	embedder := base
	if opts.Cache != nil {
		embedder = embcache.New(embedder, opts.Cache, opts.Model, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = NewInstrumentedEmbedder(embedder, opts.Provider, opts.Model, opts.MaxBatchSize, logger)

	if opts.Retry.MaxRetries > 0 {
		embedder = NewRetryingEmbedder(embedder, opts.Retry, logger)
	}

	return domain.NewNewlineEmbedder(embedder)
}
