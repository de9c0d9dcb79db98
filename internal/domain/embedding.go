package domain

import (
	"context"
	"fmt"
	"strings"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Output has the same length and order as the input.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the raw embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple raw embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per text. Safety net for providers without native batching.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// EmbedBatch uses the native batch call when e supports it, BatchFallback otherwise.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return BatchFallback(ctx, e, texts)
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FlattenNewlines collapses line breaks into single spaces.
func FlattenNewlines(text string) string {
	return newlineReplacer.Replace(text)
}

// NewlineEmbedder is a domain decorator that flattens line breaks before embedding.
// Embedding providers degrade on raw newlines.
type NewlineEmbedder struct {
	inner Embedder
}

// NewNewlineEmbedder creates a decorator that flattens newlines.
func NewNewlineEmbedder(inner Embedder) *NewlineEmbedder {
	return &NewlineEmbedder{inner: inner}
}

// Embed flattens newlines and delegates to the inner embedder.
func (e *NewlineEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, FlattenNewlines(text))
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("newline embed: %w", err)
	}
	return result, nil
}

// BatchEmbed flattens newlines in each text and delegates to the inner embedder.
func (e *NewlineEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	flat := make([]string, len(texts))
	for i, t := range texts {
		flat[i] = FlattenNewlines(t)
	}

	res, err := EmbedBatch(ctx, e.inner, flat)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("newline batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (e *NewlineEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
