package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/atomicfile"
	"github.com/kailas-cloud/ragdex/internal/repository/buildlock"
	"github.com/kailas-cloud/ragdex/internal/repository/index"
	"github.com/kailas-cloud/ragdex/internal/repository/metastore"
)

// DefaultLockTimeout bounds the wait for a build lock held by another process.
const DefaultLockTimeout = time.Second

// Request describes one full index build.
type Request struct {
	Corpus      Corpus
	IndexPath   string
	MetaPath    string
	ChunkSize   int
	Overlap     int
	BatchSize   int
	Concurrency int
	// Model is recorded in the build manifest.
	Model string
}

// Validate checks the request before any work is done.
func (r *Request) Validate() error {
	if err := chunk.Validate(r.ChunkSize, r.Overlap); err != nil {
		return err
	}
	if r.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", domain.ErrInvalidConfig, r.BatchSize)
	}
	if r.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", domain.ErrInvalidConfig, r.Concurrency)
	}
	if r.IndexPath == "" || r.MetaPath == "" {
		return fmt.Errorf("%w: index and metadata paths are required", domain.ErrInvalidConfig)
	}
	if r.IndexPath == r.MetaPath {
		return fmt.Errorf("%w: index and metadata paths must differ", domain.ErrInvalidConfig)
	}
	if r.Corpus == nil {
		return fmt.Errorf("%w: corpus is required", domain.ErrInvalidConfig)
	}
	return nil
}

// Result summarizes a committed build.
type Result struct {
	BuildID   string
	Documents int
	Chunks    int
	Dimension int
	Duration  time.Duration
}

// Service builds the index and metadata pair from a corpus.
type Service struct {
	embed       domain.Embedder
	lockTimeout time.Duration
}

// New creates a build service.
func New(embed domain.Embedder) *Service {
	return &Service{embed: embed, lockTimeout: DefaultLockTimeout}
}

// WithLockTimeout configures the cross-process lock wait.
func (s *Service) WithLockTimeout(d time.Duration) *Service {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

// pending is a chunk waiting for its vector.
type pending struct {
	text string
	rec  record.Record
}

// Build chunks the corpus, embeds it and replaces the persisted pair.
// An empty corpus fails before anything touches the disk. On any later error
// the previously persisted pair is left as it was.
func (s *Service) Build(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	items, nDocs, err := prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		metrics.BuildsTotal.WithLabelValues("empty").Inc()
		return Result{Documents: nDocs}, fmt.Errorf("%w: %d documents produced no chunks", domain.ErrEmptyCorpus, nDocs)
	}

	lock, err := buildlock.Acquire(req.IndexPath, s.lockTimeout)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("rejected").Inc()
		return Result{}, fmt.Errorf("acquire build lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	entry, err := lock.Begin(buildlock.Entry{
		IndexPath: req.IndexPath,
		MetaPath:  req.MetaPath,
		Model:     req.Model,
		Documents: nDocs,
		Chunks:    len(items),
	})
	if err != nil {
		return Result{}, err
	}

	ctx, log := logger.With(ctx, zap.String("build_id", entry.ID))
	log.Info("Build started",
		zap.String("index_path", req.IndexPath),
		zap.String("meta_path", req.MetaPath),
		zap.Int("documents", nDocs),
		zap.Int("chunks", len(items)),
		zap.Int("batch_size", req.BatchSize),
		zap.Int("concurrency", req.Concurrency),
	)

	res := Result{BuildID: entry.ID, Documents: nDocs, Chunks: len(items)}
	res.Dimension, err = s.embedAndPersist(ctx, req, items)
	res.Duration = time.Since(entry.StartedAt)
	entry.Dimension = res.Dimension

	if err != nil {
		entry.Status = buildlock.StatusFailed
		entry.Error = err.Error()
		metrics.BuildsTotal.WithLabelValues("failed").Inc()
		log.Error("Build failed", zap.Duration("duration", res.Duration), zap.Error(err))
	} else {
		entry.Status = buildlock.StatusSucceeded
		metrics.BuildsTotal.WithLabelValues("succeeded").Inc()
		metrics.BuildChunksTotal.Add(float64(res.Chunks))
		log.Info("Build finished",
			zap.Int("dimension", res.Dimension),
			zap.Duration("duration", res.Duration),
		)
	}

	if ferr := lock.Finish(entry); ferr != nil {
		log.Warn("Failed to record build manifest", zap.Error(ferr))
	}
	return res, err
}

// prepare reads the corpus and chunks every document in corpus order.
func prepare(ctx context.Context, req Request) ([]pending, int, error) {
	docs, err := req.Corpus.Documents(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read corpus: %w", err)
	}

	var items []pending
	for _, doc := range docs {
		chunks, err := chunk.SplitSource(doc.Source, doc.Text, req.ChunkSize, req.Overlap)
		if err != nil {
			return nil, 0, fmt.Errorf("chunk %s: %w", doc.Source, err)
		}
		for _, c := range chunks {
			items = append(items, pending{
				text: c.Text,
				rec:  record.Record{Title: doc.Title, Source: doc.Source, ChunkID: c.Index, Text: c.Text},
			})
		}
	}
	return items, len(docs), nil
}

func (s *Service) embedAndPersist(ctx context.Context, req Request, items []pending) (int, error) {
	idx, meta, err := s.embedAll(ctx, items, req.BatchSize, req.Concurrency)
	if err != nil {
		return 0, err
	}
	if err := persist(ctx, idx, meta, req.IndexPath, req.MetaPath); err != nil {
		return idx.Dim(), err
	}
	return idx.Dim(), nil
}

// embedAll embeds batches with bounded parallelism. Each batch lands in its own slot,
// and slots are appended in submission order so vector N always matches record N.
func (s *Service) embedAll(
	ctx context.Context, items []pending, batchSize, concurrency int,
) (*index.Index, *metastore.Store, error) {
	log := logger.FromContext(ctx)

	nBatches := (len(items) + batchSize - 1) / batchSize
	slots := make([][][]float32, nBatches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for b := range nBatches {
		batch := items[b*batchSize : min((b+1)*batchSize, len(items))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, it := range batch {
				texts[i] = it.text
			}

			res, err := domain.EmbedBatch(gctx, s.embed, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d: %w", b, err)
			}
			if len(res.Embeddings) != len(batch) {
				return fmt.Errorf("embed batch %d: %d vectors for %d chunks: %w",
					b, len(res.Embeddings), len(batch), domain.ErrGatewayFailure)
			}
			slots[b] = res.Embeddings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	idx := index.New(0)
	meta := metastore.New()
	for b, vecs := range slots {
		normalized := make([][]float32, len(vecs))
		for i, v := range vecs {
			normalized[i] = vector.Normalize(v)
		}
		if err := idx.Add(normalized...); err != nil {
			return nil, nil, fmt.Errorf("add batch %d: %w", b, err)
		}
		for _, it := range items[b*batchSize : b*batchSize+len(vecs)] {
			meta.Append(it.rec)
		}
		log.Debug("Batch committed", zap.Int("batch", b), zap.Int("vectors", idx.Len()))
	}

	if idx.Len() != meta.Len() {
		return nil, nil, domain.NewInconsistentStore(idx.Len(), meta.Len())
	}
	return idx, meta, nil
}

// persist stages both files completely before renaming either of them,
// index first, then metadata.
func persist(ctx context.Context, idx *index.Index, meta *metastore.Store, indexPath, metaPath string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	idxTmp, err := atomicfile.Stage(indexPath, idx)
	if err != nil {
		return fmt.Errorf("stage index: %w", err)
	}
	defer idxTmp.Abort()

	metaTmp, err := atomicfile.Stage(metaPath, meta)
	if err != nil {
		return fmt.Errorf("stage metadata: %w", err)
	}
	defer metaTmp.Abort()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := idxTmp.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	if err := metaTmp.Commit(); err != nil {
		return fmt.Errorf("commit metadata after index: %w", errors.Join(err, domain.ErrInconsistentStore))
	}
	return nil
}
