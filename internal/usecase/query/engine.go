package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/index"
	"github.com/kailas-cloud/ragdex/internal/repository/metastore"
)

// DefaultTopK is used when a search asks for k <= 0.
const DefaultTopK = 6

// Options tune a query engine.
type Options struct {
	TopK int
}

// Stats describes the loaded pair.
type Stats struct {
	Vectors   int
	Records   int
	Dimension int
	LoadedAt  time.Time
}

// Engine answers nearest-neighbor queries against a loaded index/metadata pair.
// The pair is read-only after construction, so Search is safe for concurrent use.
type Engine struct {
	idx      *index.Index
	meta     *metastore.Store
	embed    domain.Embedder
	topK     int
	loadedAt time.Time
	closed   atomic.Bool
}

// Open loads the persisted pair and verifies that both halves have the same length.
func Open(
	ctx context.Context, indexPath, metaPath string, embed domain.Embedder, opts Options,
) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := index.Load(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	meta, err := metastore.Load(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}

	e, err := NewEngine(idx, meta, embed, opts)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Index loaded",
		zap.String("index_path", indexPath),
		zap.String("meta_path", metaPath),
		zap.Int("vectors", idx.Len()),
		zap.Int("dimension", idx.Dim()),
	)
	return e, nil
}

// NewEngine wraps an in-memory pair. The integrity check is the same as Open's.
func NewEngine(idx *index.Index, meta *metastore.Store, embed domain.Embedder, opts Options) (*Engine, error) {
	if idx.Len() != meta.Len() {
		return nil, domain.NewInconsistentStore(idx.Len(), meta.Len())
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	metrics.IndexVectors.Set(float64(idx.Len()))
	return &Engine{idx: idx, meta: meta, embed: embed, topK: topK, loadedAt: time.Now()}, nil
}

// Search embeds text and returns the k nearest records, best first.
func (e *Engine) Search(ctx context.Context, text string, k int) ([]record.Hit, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrInvalidQuery)
	}
	if e.embed == nil {
		return nil, fmt.Errorf("%w: engine has no embedder", domain.ErrInvalidConfig)
	}

	res, err := e.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.SearchVector(res.Embedding, k)
}

// SearchVector runs the search for a precomputed raw vector.
func (e *Engine) SearchVector(vec []float32, k int) ([]record.Hit, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	if k <= 0 {
		k = e.topK
	}

	start := time.Now()
	matches, err := e.idx.Search(vector.Normalize(vec), k)
	if err != nil {
		metrics.SearchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("search index: %w", err)
	}

	hits := make([]record.Hit, 0, len(matches))
	for _, m := range matches {
		rec, err := e.meta.Get(m.Position)
		if errors.Is(err, domain.ErrOutOfRange) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, record.Hit{Score: m.Score, Record: rec})
	}

	metrics.SearchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	return hits, nil
}

// Stats reports the size of the loaded pair.
func (e *Engine) Stats() Stats {
	return Stats{
		Vectors:   e.idx.Len(),
		Records:   e.meta.Len(),
		Dimension: e.idx.Dim(),
		LoadedAt:  e.loadedAt,
	}
}

// Len returns the number of searchable records.
func (e *Engine) Len() int { return e.meta.Len() }

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool { return e.closed.Load() }

// Close releases the engine. Later searches fail with ErrEngineClosed.
func (e *Engine) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		metrics.IndexVectors.Set(0)
	}
	return nil
}
