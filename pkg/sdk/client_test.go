package ragdex

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// hashEmbedder maps each text to a deterministic vector.
type hashEmbedder struct {
	batchCalls atomic.Int32
	err        error
}

func (h *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, 8)
	for i := range v {
		f := fnv.New32a()
		_, _ = f.Write([]byte{byte(i)})
		_, _ = f.Write([]byte(text))
		v[i] = float32(f.Sum32()%1000) - 500
	}
	return v
}

func (h *hashEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	if h.err != nil {
		return EmbeddingResult{}, h.err
	}
	return EmbeddingResult{Embedding: h.vector(text)}, nil
}

func (h *hashEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	h.batchCalls.Add(1)
	if h.err != nil {
		return BatchEmbeddingResult{}, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return BatchEmbeddingResult{Embeddings: out}, nil
}

// singleEmbedder has no batch support.
type singleEmbedder struct {
	hashEmbedder
}

func (s *singleEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return s.hashEmbedder.Embed(ctx, text)
}

var corpusDocs = map[string]string{
	"alpha.md": "Rotate signing keys every ninety days.",
	"beta.md":  "Backups are written to cold storage nightly.",
	"gamma.md": "On-call engineers acknowledge pages within five minutes.",
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range corpusDocs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func buildRequest(t *testing.T) BuildRequest {
	t.Helper()
	out := t.TempDir()
	return BuildRequest{
		Dir:       writeCorpus(t),
		IndexPath: filepath.Join(out, "index.bin"),
		MetaPath:  filepath.Join(out, "meta.jsonl"),
	}
}

func TestNew_RequiresEmbedder(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without embedder")
	}
}

func TestNew_ExclusiveEmbedders(t *testing.T) {
	_, err := New(WithEmbedder(&hashEmbedder{}), WithOpenAI("key", "", "text-embedding-3-small"))
	if err == nil {
		t.Fatal("expected error for two embedders")
	}
}

func TestNew_OpenAIRequiresModel(t *testing.T) {
	if _, err := New(WithOpenAI("key", "", "")); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestNew_OpenAI(t *testing.T) {
	c, err := New(WithOpenAI("key", "http://localhost:1/v1", "text-embedding-3-small"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != "text-embedding-3-small" {
		t.Errorf("model = %q", c.model)
	}
}

func TestNew_InvalidChunking(t *testing.T) {
	_, err := New(WithEmbedder(&hashEmbedder{}), WithChunking(100, 100))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}
	for _, o := range []Option{
		WithChunking(500, 50),
		WithBatching(16, 2),
		WithTopK(3),
		WithLockTimeout(2 * time.Second),
		WithRetries(3, 10*time.Millisecond, time.Second),
		WithLogger(slog.Default()),
	} {
		o.apply(cfg)
	}

	if cfg.chunkSize != 500 || cfg.overlap != 50 {
		t.Errorf("chunking = %d/%d", cfg.chunkSize, cfg.overlap)
	}
	if cfg.batchSize != 16 || cfg.concurrency != 2 {
		t.Errorf("batching = %d/%d", cfg.batchSize, cfg.concurrency)
	}
	if cfg.topK != 3 {
		t.Errorf("topK = %d", cfg.topK)
	}
	if cfg.lockTimeout != 2*time.Second {
		t.Errorf("lockTimeout = %v", cfg.lockTimeout)
	}
	if cfg.maxRetries != 3 || cfg.retryBase != 10*time.Millisecond || cfg.retryMax != time.Second {
		t.Errorf("retries = %d/%v/%v", cfg.maxRetries, cfg.retryBase, cfg.retryMax)
	}
	if cfg.logger == nil {
		t.Error("logger not set")
	}
}

func TestBuildOpenSearch(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	c, err := New(WithEmbedder(emb), WithBatching(2, 2))
	if err != nil {
		t.Fatal(err)
	}

	req := buildRequest(t)
	res, err := c.Build(ctx, req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Documents != 3 || res.Chunks != 3 || res.Dimension != 8 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.BuildID == "" {
		t.Error("expected build id")
	}
	if emb.batchCalls.Load() == 0 {
		t.Error("expected native batch calls")
	}

	idx, err := c.Open(ctx, req.IndexPath, req.MetaPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = idx.Close() }()

	hits, err := idx.Search(ctx, corpusDocs["beta.md"], 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "beta" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("score = %f, want ~1", hits[0].Score)
	}

	all, err := idx.SearchVector(emb.vector(corpusDocs["gamma.md"]), 0)
	if err != nil {
		t.Fatalf("search vector: %v", err)
	}
	if len(all) != 3 || all[0].Title != "gamma" {
		t.Fatalf("unexpected vector hits: %+v", all)
	}

	st := idx.Stats()
	if st.Vectors != 3 || st.Records != 3 || st.Dimension != 8 {
		t.Errorf("unexpected stats: %+v", st)
	}

	h := idx.Health(ctx)
	if h.Status != "ok" || h.Items != 3 || h.Checks["index"] != "ok" {
		t.Errorf("unexpected health: %+v", h)
	}

	hist, err := c.History(req.IndexPath, 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != "succeeded" || hist[0].Chunks != 3 || hist[0].Model != "custom" {
		t.Errorf("unexpected history: %+v", hist)
	}
}

func TestBuild_SingleEmbedderFallback(t *testing.T) {
	c, err := New(WithEmbedder(&singleEmbedder{}))
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Build(context.Background(), buildRequest(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Chunks != 3 {
		t.Errorf("chunks = %d", res.Chunks)
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	c, err := New(WithEmbedder(&hashEmbedder{}))
	if err != nil {
		t.Fatal(err)
	}
	req := buildRequest(t)
	req.Dir = t.TempDir()

	_, err = c.Build(context.Background(), req)
	if !errors.Is(err, ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
	if _, statErr := os.Stat(req.IndexPath); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("index must not be written for an empty corpus")
	}
}

func TestBuild_GatewayFailure(t *testing.T) {
	c, err := New(WithEmbedder(&hashEmbedder{err: ErrGatewayFailure}))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Build(context.Background(), buildRequest(t))
	if !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("expected ErrGatewayFailure, got %v", err)
	}
}

func TestOpen_Missing(t *testing.T) {
	c, err := New(WithEmbedder(&hashEmbedder{}))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if _, err := c.Open(context.Background(), filepath.Join(dir, "i.bin"), filepath.Join(dir, "m.jsonl")); err == nil {
		t.Fatal("expected error for missing pair")
	}
}

func TestIndex_Closed(t *testing.T) {
	ctx := context.Background()
	c, err := New(WithEmbedder(&hashEmbedder{}))
	if err != nil {
		t.Fatal(err)
	}
	req := buildRequest(t)
	if _, err := c.Build(ctx, req); err != nil {
		t.Fatal(err)
	}
	idx, err := c.Open(ctx, req.IndexPath, req.MetaPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Search(ctx, "keys", 1); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	if h := idx.Health(ctx); h.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", h.Status)
	}
}

func TestHistory_NeverBuilt(t *testing.T) {
	c, err := New(WithEmbedder(&hashEmbedder{}))
	if err != nil {
		t.Fatal(err)
	}
	hist, err := c.History(filepath.Join(t.TempDir(), "index.bin"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("expected no history, got %d", len(hist))
	}
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(WithEmbedder(&hashEmbedder{}), WithPrometheus(reg))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Build(context.Background(), buildRequest(t)); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Open(context.Background(), "/nonexistent/i.bin", "/nonexistent/m.jsonl")

	ops := c.obs.metrics.operations
	if got := testutil.ToFloat64(ops.WithLabelValues("build", "ok")); got != 1 {
		t.Errorf("build ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues("open", "error")); got != 1 {
		t.Errorf("open error = %v, want 1", got)
	}

	// A second client on the same registry reuses the collectors.
	c2, err := New(WithEmbedder(&hashEmbedder{}), WithPrometheus(reg))
	if err != nil {
		t.Fatalf("second client: %v", err)
	}
	if c2.obs.metrics.operations != ops {
		t.Error("expected shared collector")
	}
}

func TestObserver_Nil(t *testing.T) {
	var o *observer
	o.observe("noop", time.Now(), nil)
}

func TestObserver_LogsAndCountsSearches(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := prometheus.NewRegistry()

	ctx := context.Background()
	c, err := New(WithEmbedder(&hashEmbedder{}), WithLogger(logger), WithPrometheus(reg))
	if err != nil {
		t.Fatal(err)
	}
	req := buildRequest(t)
	if _, err := c.Build(ctx, req); err != nil {
		t.Fatal(err)
	}
	idx, err := c.Open(ctx, req.IndexPath, req.MetaPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = idx.Close() }()

	if _, err := idx.Search(ctx, "backups", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search(ctx, "   ", 2); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}

	if got := testutil.CollectAndCount(c.obs.metrics.results); got != 1 {
		t.Errorf("results histogram series = %d, want 1", got)
	}
	out := buf.String()
	for _, want := range []string{"op=build", "chunks=3", "op=search", "hits=2", "ragdex operation failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
