package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbValkey "github.com/kailas-cloud/ragdex/internal/db/valkey"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/corpus"
	openaiGw "github.com/kailas-cloud/ragdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	"github.com/kailas-cloud/ragdex/internal/usecase/query"
)

// openCache connects the Valkey embedding cache when enabled. A nil store means no cache.
func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (db.Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.Cache.Addrs,
		Username: cfg.Cache.Username,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		TTL:      time.Duration(cfg.Cache.TTLSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("cache not ready: %w", err)
	}
	logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
	return store, nil
}

// gatewayConfig is the provider config shared by embedding and chat clients.
func gatewayConfig(cfg config.Config, model string, logger *zap.Logger) openaiGw.Config {
	return openaiGw.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      model,
		Dimensions: cfg.Embedding.Dimensions,
		User:       cfg.Embedding.User,
		Provider:   cfg.Embedding.Provider,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	}
}

// buildEmbedder assembles the decorator chain around the OpenAI-compatible provider.
// store may be nil.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	metrics.RegisterGatewayMetrics()

	gw := gatewayConfig(cfg, cfg.Embedding.Model, logger)
	base := openaiGw.NewEmbedder(&gw)

	// A typed nil *Store inside the interface would defeat the nil check in NewChain.
	var cache db.KVStore
	if store != nil {
		cache = store
	}

	return embeddinguc.NewChain(base, embeddinguc.ChainOptions{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		Retry: embeddinguc.RetryPolicy{
			MaxRetries: cfg.Embedding.MaxRetries,
			BaseDelay:  time.Duration(cfg.Embedding.RetryBaseMs) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Embedding.RetryMaxMs) * time.Millisecond,
		},
		Cache: cache,
	}, logger)
}

func buildChat(cfg config.Config, logger *zap.Logger) *openaiGw.Chat {
	return openaiGw.NewChat(&openaiGw.ChatConfig{
		Config:      gatewayConfig(cfg, cfg.Chat.Model, logger),
		Temperature: *cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
	})
}

func newCorpus(cfg config.Config) corpus.Source {
	var fields []chunk.Field
	if len(cfg.Corpus.JSONFields) > 0 {
		fields = make([]chunk.Field, len(cfg.Corpus.JSONFields))
		for i, f := range cfg.Corpus.JSONFields {
			fields[i] = chunk.ParseField(f)
		}
	} else {
		fields = corpus.DefaultJSONFields
	}

	return corpus.Source{
		Dir:        cfg.Corpus.Dir,
		Extensions: cfg.Corpus.Extensions,
		JSONFile:   cfg.Corpus.JSONFile,
		JSONFields: fields,
	}
}

// backend bundles an opened engine with the resources behind it.
type backend struct {
	engine *query.Engine
	store  db.Store // nil without cache
	embed  domain.Embedder
}

// Close releases the engine and the cache store.
func (b *backend) Close() {
	_ = b.engine.Close()
	if b.store != nil {
		b.store.Close()
	}
}

// embeddingHealth exposes the provider health check of the chain, nil when unsupported.
func (b *backend) embeddingHealth() domain.HealthChecker {
	hc, _ := b.embed.(domain.HealthChecker)
	return hc
}

// openEngine loads the persisted pair behind the configured embedder chain.
func openEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	metrics.RegisterIndexMetrics()

	store, err := openCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embed := buildEmbedder(cfg, store, logger)
	engine, err := query.Open(ctx, cfg.IndexPath(), cfg.MetaPath(), embed, query.Options{TopK: cfg.Index.TopK})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return &backend{engine: engine, store: store, embed: embed}, nil
}
