package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// RetryPolicy bounds retries of retryable gateway failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at 200ms, capped at 5s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

// BackOff returns a doubling, unjittered schedule bounded by MaxRetries.
func (p RetryPolicy) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// RetryingEmbedder retries calls that fail with domain.ErrGatewayFailure using exponential backoff.
// Other errors, and context cancellation, return immediately.
type RetryingEmbedder struct {
	inner  domain.Embedder
	policy RetryPolicy
	logger *zap.Logger
	timer  backoff.Timer
}

// NewRetryingEmbedder wraps inner with retries.
func NewRetryingEmbedder(inner domain.Embedder, policy RetryPolicy, logger *zap.Logger) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, policy: policy, logger: logger}
}

// Embed retries the inner Embed.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var res domain.EmbeddingResult
	err := r.do(ctx, "embed", func() error {
		var err error
		res, err = r.inner.Embed(ctx, text)
		return err
	})
	return res, err
}

// BatchEmbed retries the whole batch; a batch either succeeds as a unit or fails.
func (r *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	err := r.do(ctx, "batch_embed", func() error {
		var err error
		res, err = domain.EmbedBatch(ctx, r.inner, texts)
		return err
	})
	return res, err
}

// HealthCheck delegates without retries.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (r *RetryingEmbedder) do(ctx context.Context, op string, call func() error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := call()
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		metrics.EmbeddingRetriesTotal.WithLabelValues(op).Inc()
		r.logger.Warn("Retrying embedding call",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(r.policy.BackOff(), ctx), notify, r.timer)
	if err != nil && attempts > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
	}
	return err
}
