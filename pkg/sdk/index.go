package ragdex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	"github.com/kailas-cloud/ragdex/internal/usecase/query"
)

// Index is an opened, read-only pair. Safe for concurrent use.
type Index struct {
	engine *query.Engine
	embed  domain.Embedder
	obs    *observer
}

// Search embeds text and returns up to k hits. k <= 0 uses the client default.
func (i *Index) Search(ctx context.Context, text string, k int) (hits []Hit, err error) {
	start := time.Now()
	defer func() { i.obs.observeSearch("search", start, len(hits), err) }()

	res, err := i.engine.Search(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return toHits(res), nil
}

// SearchVector ranks a precomputed query vector. The vector is normalized first.
func (i *Index) SearchVector(vec []float32, k int) (hits []Hit, err error) {
	start := time.Now()
	defer func() { i.obs.observeSearch("search_vector", start, len(hits), err) }()

	res, err := i.engine.SearchVector(vec, k)
	if err != nil {
		return nil, fmt.Errorf("search vector: %w", err)
	}
	return toHits(res), nil
}

// Stats describes the loaded pair.
func (i *Index) Stats() Stats {
	s := i.engine.Stats()
	return Stats{Vectors: s.Vectors, Records: s.Records, Dimension: s.Dimension, LoadedAt: s.LoadedAt}
}

// Close releases the index. Later searches fail with ErrEngineClosed.
func (i *Index) Close() error {
	return i.engine.Close()
}

func toHits(res []record.Hit) []Hit {
	out := make([]Hit, len(res))
	for n, h := range res {
		out[n] = Hit{
			Score: h.Score,
			Record: Record{
				Title:   h.Title,
				Source:  h.Source,
				ChunkID: h.ChunkID,
				Text:    h.Text,
			},
		}
	}
	return out
}
