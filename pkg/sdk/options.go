package ragdex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	embedder Embedder
	openai   *openAIConfig

	chunkSize   int
	overlap     int
	batchSize   int
	concurrency int
	topK        int
	lockTimeout time.Duration

	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

type openAIConfig struct {
	apiKey  string
	baseURL string
	model   string
}

// WithEmbedder sets the text embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAI uses an OpenAI-compatible embeddings endpoint.
// An empty baseURL selects the public OpenAI API.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openai = &openAIConfig{apiKey: apiKey, baseURL: baseURL, model: model}
	})
}

// WithChunking sets the chunk size and overlap in characters.
// Defaults: 1000 and 200.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.overlap = overlap
	})
}

// WithBatching sets chunks per embedding request and requests in flight.
// Defaults: 64 and 4.
func WithBatching(batchSize, concurrency int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = batchSize
		c.concurrency = concurrency
	})
}

// WithTopK sets the result count used when a search passes k <= 0.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithLockTimeout bounds the wait for a build lock held by another process.
func WithLockTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.lockTimeout = d
	})
}

// WithRetries retries failed embedding calls with exponential backoff.
// Disabled by default.
func WithRetries(maxRetries int, base, maxDelay time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxRetries = maxRetries
		c.retryBase = base
		c.retryMax = maxDelay
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
