package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// recordingEmbedder remembers every text it was asked for and fails the first failures batches.
type recordingEmbedder struct {
	mu       sync.Mutex
	failures int
	calls    int
	texts    []string
}

func (r *recordingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := r.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

func (r *recordingEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("503: %w", domain.ErrGatewayFailure)
	}
	r.texts = append(r.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapKV() *mapKV { return &mapKV{data: map[string][]byte{}} }

func (m *mapKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mapKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapKV) SetWithTTL(ctx context.Context, key string, value []byte, _ time.Duration) error {
	return m.Set(ctx, key, value)
}

func (m *mapKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestNewChain_FlattensNewlinesBeforeProvider(t *testing.T) {
	base := &recordingEmbedder{}
	chain := NewChain(base, ChainOptions{Provider: "test", Model: "m"}, zap.NewNop())

	if _, ok := chain.(*domain.NewlineEmbedder); !ok {
		t.Fatalf("outermost decorator must be NewlineEmbedder, got %T", chain)
	}

	if _, err := domain.EmbedBatch(context.Background(), chain, []string{"a\nb", "c\r\nd"}); err != nil {
		t.Fatal(err)
	}
	if len(base.texts) != 2 || base.texts[0] != "a b" || base.texts[1] != "c d" {
		t.Fatalf("provider saw %q", base.texts)
	}
}

func TestNewChain_RetriesGatewayFailures(t *testing.T) {
	base := &recordingEmbedder{failures: 2}
	chain := NewChain(base, ChainOptions{
		Provider: "test",
		Model:    "m",
		Retry:    RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, zap.NewNop())

	res, err := chain.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if base.calls != 3 || len(res.Embedding) != 2 {
		t.Fatalf("calls=%d res=%v", base.calls, res)
	}
}

func TestNewChain_NoRetryWhenDisabled(t *testing.T) {
	base := &recordingEmbedder{failures: 1}
	chain := NewChain(base, ChainOptions{Provider: "test", Model: "m"}, nil)

	_, err := chain.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrGatewayFailure) {
		t.Fatalf("expected ErrGatewayFailure, got %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected a single call, got %d", base.calls)
	}
}

func TestNewChain_CacheServesRepeats(t *testing.T) {
	base := &recordingEmbedder{}
	chain := NewChain(base, ChainOptions{Provider: "test", Model: "m", Cache: newMapKV()}, zap.NewNop())

	for range 3 {
		if _, err := chain.Embed(context.Background(), "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if len(base.texts) != 1 {
		t.Fatalf("expected one provider call for repeated text, got %d", len(base.texts))
	}
}
