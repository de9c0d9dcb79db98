package embcache

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// mockEmbedder returns a vector derived from the text so tests can check order.
type mockEmbedder struct {
	tokensPerText int
	err           error
	embedCalls    int
	batchCalls    int
	batchTexts    [][]string
}

func vecFor(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: vecFor(text), PromptTokens: m.tokensPerText, TotalTokens: m.tokensPerText}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchTexts = append(m.batchTexts, texts)
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		out.Embeddings[i] = vecFor(text)
	}
	out.PromptTokens = m.tokensPerText * len(texts)
	out.TotalTokens = m.tokensPerText * len(texts)
	return out, nil
}

// memStore is an in-memory KV store with optional fault injection.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(inner, ms, "test-model", nil, zap.NewNop()), ms
}
