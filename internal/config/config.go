package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the ragdex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Index     IndexConfig     `yaml:"index"`
	Cache     CacheConfig     `yaml:"cache"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"` // label for logs and metrics
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"` // 0 = model default
	User         string `yaml:"user"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	MaxBatchSize int    `yaml:"max_batch_size"` // per API call
	MaxRetries   int    `yaml:"max_retries"`
	RetryBaseMs  int    `yaml:"retry_base_ms"`
	RetryMaxMs   int    `yaml:"retry_max_ms"`
}

// ChatConfig holds chat completion settings for POST /answer and the answer command.
type ChatConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Model        string   `yaml:"model"`
	Temperature  *float32 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
	Instructions []string `yaml:"instructions"`
}

// CorpusConfig describes where documents are read from.
type CorpusConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	JSONFile   string   `yaml:"json_file"`
	JSONFields []string `yaml:"json_fields"` // key:Label
}

// IndexConfig holds the persisted pair location and build parameters.
type IndexConfig struct {
	DataDir       string `yaml:"data_dir"`
	IndexFile     string `yaml:"index_file"`
	MetaFile      string `yaml:"meta_file"`
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  *int   `yaml:"chunk_overlap"`
	BatchSize     int    `yaml:"batch_size"`
	Concurrency   int    `yaml:"concurrency"`
	TopK          int    `yaml:"top_k"`
	LockTimeoutMs int    `yaml:"lock_timeout_ms"`
}

// CacheConfig holds the optional Valkey embedding cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLSec           int      `yaml:"ttl_sec"` // 0 = no expiry
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// DefaultTemperature is the chat sampling temperature when none is configured.
const DefaultTemperature float32 = 0.2

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path. A .env file in the
// working directory, if present, is loaded into the environment first.
func LoadFile(configPath string) (Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 256
	}
	if c.Embedding.MaxRetries < 0 {
		c.Embedding.MaxRetries = 0
	}
	if c.Embedding.RetryBaseMs <= 0 {
		c.Embedding.RetryBaseMs = 200
	}
	if c.Embedding.RetryMaxMs <= 0 {
		c.Embedding.RetryMaxMs = 5000
	}

	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
	if c.Chat.Temperature == nil {
		t := DefaultTemperature
		c.Chat.Temperature = &t
	}

	if c.Corpus.Dir == "" {
		c.Corpus.Dir = "corpus"
	}
	if len(c.Corpus.Extensions) == 0 {
		c.Corpus.Extensions = []string{".md"}
	}

	if c.Index.DataDir == "" {
		c.Index.DataDir = "data"
	}
	if c.Index.IndexFile == "" {
		c.Index.IndexFile = "ragdex.index"
	}
	if c.Index.MetaFile == "" {
		c.Index.MetaFile = "meta.jsonl"
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = 1000
	}
	if c.Index.ChunkOverlap == nil {
		o := 200
		c.Index.ChunkOverlap = &o
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 5
	}
	if c.Index.Concurrency <= 0 {
		c.Index.Concurrency = 1
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 6
	}
	if c.Index.LockTimeoutMs <= 0 {
		c.Index.LockTimeoutMs = 1000
	}

	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize))
	}
	if o := c.Overlap(); o < 0 || o >= c.Index.ChunkSize {
		errs = append(errs, fmt.Errorf("index.chunk_overlap must be in [0, %d), got %d", c.Index.ChunkSize, o))
	}
	if c.Index.IndexFile == c.Index.MetaFile {
		errs = append(errs, fmt.Errorf("index.index_file and index.meta_file must differ"))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions))
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		errs = append(errs, fmt.Errorf("cache.addrs is required when cache.enabled is true"))
	}
	if t := c.Chat.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("chat.temperature must be between 0 and 2, got %g", *t))
	}
	for _, f := range c.Corpus.JSONFields {
		if k, _, _ := strings.Cut(f, ":"); strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Errorf("corpus.json_fields entry %q has no key", f))
		}
	}

	return errors.Join(errs...)
}

// IndexPath is the index file location, resolved against the data dir.
func (c *Config) IndexPath() string {
	return resolve(c.Index.DataDir, c.Index.IndexFile)
}

// MetaPath is the metadata file location, resolved against the data dir.
func (c *Config) MetaPath() string {
	return resolve(c.Index.DataDir, c.Index.MetaFile)
}

// Overlap is the configured chunk overlap, zero when unset.
func (c *Config) Overlap() int {
	if c.Index.ChunkOverlap == nil {
		return 0
	}
	return *c.Index.ChunkOverlap
}

// LockTimeout is the build lock wait.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Index.LockTimeoutMs) * time.Millisecond
}

func resolve(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
