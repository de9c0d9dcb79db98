package ragdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	"github.com/kailas-cloud/ragdex/internal/repository/buildlock"
	"github.com/kailas-cloud/ragdex/internal/repository/corpus"
	openaiGw "github.com/kailas-cloud/ragdex/internal/transport/openai"
	builduc "github.com/kailas-cloud/ragdex/internal/usecase/build"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	"github.com/kailas-cloud/ragdex/internal/usecase/query"
)

const (
	defaultChunkSize   = 1000
	defaultOverlap     = 200
	defaultBatchSize   = 64
	defaultConcurrency = 4
	defaultProvider    = "sdk"
)

// Client builds and opens ragdex indexes.
type Client struct {
	embed       domain.Embedder
	model       string
	chunkSize   int
	overlap     int
	batchSize   int
	concurrency int
	topK        int
	lockTimeout time.Duration
	obs         *observer
}

// New creates a Client. An embedder is required, via WithEmbedder or WithOpenAI.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		chunkSize:   defaultChunkSize,
		overlap:     defaultOverlap,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		topK:        query.DefaultTopK,
		lockTimeout: builduc.DefaultLockTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	base, provider, model, err := baseEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	if err := chunk.Validate(cfg.chunkSize, cfg.overlap); err != nil {
		return nil, fmt.Errorf("ragdex: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	embed := embeddinguc.NewChain(base, embeddinguc.ChainOptions{
		Provider: provider,
		Model:    model,
		Retry: embeddinguc.RetryPolicy{
			MaxRetries: cfg.maxRetries,
			BaseDelay:  cfg.retryBase,
			MaxDelay:   cfg.retryMax,
		},
	}, nil)

	return &Client{
		embed:       embed,
		model:       model,
		chunkSize:   cfg.chunkSize,
		overlap:     cfg.overlap,
		batchSize:   cfg.batchSize,
		concurrency: cfg.concurrency,
		topK:        cfg.topK,
		lockTimeout: cfg.lockTimeout,
		obs:         obs,
	}, nil
}

func baseEmbedder(cfg *clientConfig) (domain.Embedder, string, string, error) {
	switch {
	case cfg.embedder != nil && cfg.openai != nil:
		return nil, "", "", errors.New("ragdex: WithEmbedder and WithOpenAI are mutually exclusive")
	case cfg.embedder != nil:
		return adaptEmbedder(cfg.embedder), defaultProvider, "custom", nil
	case cfg.openai != nil:
		if cfg.openai.model == "" {
			return nil, "", "", errors.New("ragdex: WithOpenAI requires a model")
		}
		return openaiGw.NewEmbedder(&openaiGw.Config{
			APIKey:   cfg.openai.apiKey,
			BaseURL:  cfg.openai.baseURL,
			Model:    cfg.openai.model,
			Provider: "openai",
		}), "openai", cfg.openai.model, nil
	default:
		return nil, "", "", errors.New("ragdex: embedder required (use WithEmbedder or WithOpenAI)")
	}
}

// Build chunks and embeds the corpus and replaces the pair at req.IndexPath and req.MetaPath.
// A failed build leaves the previously persisted pair untouched.
func (c *Client) Build(ctx context.Context, req BuildRequest) (res BuildResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("build", start, err, "chunks", res.Chunks, "index_path", req.IndexPath) }()

	src := corpus.Source{
		Dir:        req.Dir,
		Extensions: req.Extensions,
		JSONFile:   req.JSONFile,
		JSONFields: corpus.DefaultJSONFields,
	}
	if len(req.JSONFields) > 0 {
		src.JSONFields = make([]chunk.Field, len(req.JSONFields))
		for i, f := range req.JSONFields {
			src.JSONFields[i] = chunk.ParseField(f)
		}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	out, err := builduc.New(c.embed).WithLockTimeout(c.lockTimeout).Build(ctx, builduc.Request{
		Corpus:      src,
		IndexPath:   req.IndexPath,
		MetaPath:    req.MetaPath,
		ChunkSize:   c.chunkSize,
		Overlap:     c.overlap,
		BatchSize:   c.batchSize,
		Concurrency: c.concurrency,
		Model:       model,
	})
	if err != nil {
		return BuildResult{}, fmt.Errorf("build: %w", err)
	}
	return BuildResult{
		BuildID:   out.BuildID,
		Documents: out.Documents,
		Chunks:    out.Chunks,
		Dimension: out.Dimension,
		Duration:  out.Duration,
	}, nil
}

// Open loads a persisted pair for searching. The pair must agree on its record count.
func (c *Client) Open(ctx context.Context, indexPath, metaPath string) (idx *Index, err error) {
	start := time.Now()
	defer func() { c.obs.observe("open", start, err) }()

	engine, err := query.Open(ctx, indexPath, metaPath, c.embed, query.Options{TopK: c.topK})
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return &Index{engine: engine, embed: c.embed, obs: c.obs}, nil
}

// History lists up to limit builds of the target at indexPath, newest first.
func (c *Client) History(indexPath string, limit int) (_ []BuildRecord, err error) {
	start := time.Now()
	defer func() { c.obs.observe("history", start, err) }()

	entries, err := buildlock.ReadHistory(indexPath, limit, c.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]BuildRecord, len(entries))
	for i, e := range entries {
		out[i] = BuildRecord{
			ID:         e.ID,
			Status:     e.Status,
			Model:      e.Model,
			Documents:  e.Documents,
			Chunks:     e.Chunks,
			Dimension:  e.Dimension,
			Error:      e.Error,
			StartedAt:  e.StartedAt,
			FinishedAt: e.FinishedAt,
		}
	}
	return out, nil
}
