package domain

import (
	"context"
	"sync/atomic"
)

type embeddingUsageKey struct{}

// EmbeddingUsage collects the embedding tokens spent on behalf of one request.
// Safe for concurrent use.
type EmbeddingUsage struct {
	tokens atomic.Int64
	calls  atomic.Int64
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext returns the collector of ctx, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// Record adds one completed embedding call. A nil collector ignores it.
func (u *EmbeddingUsage) Record(tokens int) {
	if u == nil {
		return
	}
	u.tokens.Add(int64(tokens))
	u.calls.Add(1)
}

// Tokens is the total reported by the provider. Cache hits add zero.
func (u *EmbeddingUsage) Tokens() int {
	if u == nil {
		return 0
	}
	return int(u.tokens.Load())
}

// Used reports whether any embedding call completed.
func (u *EmbeddingUsage) Used() bool {
	return u != nil && u.calls.Load() > 0
}
