package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/usecase/build"
)

func runBuild(ctx context.Context, c *cli, args []string) error {
	fs, cfgPath := c.flags("build")
	batch := fs.Int("batch", 0, "chunks per embedding request (default from config)")
	concurrency := fs.Int("concurrency", 0, "embedding requests in flight (default from config)")
	dir := fs.String("corpus", "", "corpus directory (default from config)")
	jsonFile := fs.String("json", "", "optional JSON array of structured records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cfg, err := c.setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	if *batch > 0 {
		cfg.Index.BatchSize = *batch
	}
	if *concurrency > 0 {
		cfg.Index.Concurrency = *concurrency
	}
	if *dir != "" {
		cfg.Corpus.Dir = *dir
	}
	if *jsonFile != "" {
		cfg.Corpus.JSONFile = *jsonFile
	}

	metrics.RegisterIndexMetrics()
	store, err := openCache(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	svc := build.New(buildEmbedder(cfg, store, c.logger)).WithLockTimeout(cfg.LockTimeout())
	res, err := svc.Build(ctx, build.Request{
		Corpus:      newCorpus(cfg),
		IndexPath:   cfg.IndexPath(),
		MetaPath:    cfg.MetaPath(),
		ChunkSize:   cfg.Index.ChunkSize,
		Overlap:     cfg.Overlap(),
		BatchSize:   cfg.Index.BatchSize,
		Concurrency: cfg.Index.Concurrency,
		Model:       cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	c.logger.Info("Index built", zap.String("build_id", res.BuildID))
	fmt.Fprintf(c.stdout, "built %d chunks from %d documents (dim=%d) in %s\n",
		res.Chunks, res.Documents, res.Dimension, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(c.stdout, "index:    %s\nmetadata: %s\n", cfg.IndexPath(), cfg.MetaPath())
	return nil
}
