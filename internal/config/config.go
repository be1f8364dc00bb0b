// Package config resolves voxcheck settings from defaults, a YAML file,
// VOXCHECK_* environment variables and CLI flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attest-ai/voxcheck/internal/embedding"
	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/internal/similarity"
	"github.com/attest-ai/voxcheck/pkg/types"
)

const (
	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"
	// FormatMarkdown renders a Markdown report.
	FormatMarkdown = "markdown"

	// DefaultFile is the config file looked up in the working directory.
	DefaultFile = "voxcheck.yaml"
)

// Config captures all engine settings.
type Config struct {
	Scoring   ScoringConfig   `yaml:"scoring"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Store     StoreConfig     `yaml:"store"`
	Runner    RunnerConfig    `yaml:"runner"`

	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// ScoringConfig controls step validation and aggregation.
type ScoringConfig struct {
	DefaultThreshold float64       `yaml:"default_threshold"`
	Aggregation      string        `yaml:"aggregation"`
	StepTimeout      time.Duration `yaml:"step_timeout"`
	InitTimeout      time.Duration `yaml:"init_timeout"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	ModelDir          string  `yaml:"onnx_model_dir"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	MaxRetries        int     `yaml:"max_retries"`
	FaultErrorRate    float64 `yaml:"fault_error_rate"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	Disabled bool   `yaml:"disabled"`
	Dir      string `yaml:"dir"`
	MaxMB    int    `yaml:"max_mb"`
}

// StoreConfig locates the execution store.
type StoreConfig struct {
	Path         string        `yaml:"path"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// RunnerConfig sizes the worker pool and result sink.
type RunnerConfig struct {
	Workers    int           `yaml:"workers"`
	SinkBuffer int           `yaml:"sink_buffer"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

// Default returns the baseline configuration used when nothing else specifies values.
func Default() Config {
	home := homeDir()
	return Config{
		Scoring: ScoringConfig{
			DefaultThreshold: types.DefaultToleranceThreshold,
			Aggregation:      string(scenario.AggregateMean),
			StepTimeout:      30 * time.Second,
			InitTimeout:      2 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:          embedding.ProviderAuto,
			RequestsPerMinute: embedding.DefaultRateLimiterConfig.RequestsPerMinute,
			Burst:             embedding.DefaultRateLimiterConfig.Burst,
			MaxRetries:        embedding.DefaultRateLimiterConfig.MaxRetries,
		},
		Cache: CacheConfig{
			Dir:   filepath.Join(home, ".voxcheck", "cache"),
			MaxMB: 500,
		},
		Store: StoreConfig{
			Path:         filepath.Join(home, ".voxcheck", "voxcheck.db"),
			FetchTimeout: 10 * time.Second,
		},
		Runner: RunnerConfig{
			Workers:    4,
			SinkBuffer: 256,
			SinkTimeout: 10 * time.Second,
		},
		Format: FormatPretty,
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Load reads the YAML file at path over the defaults. A missing file is
// ignored unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if th := c.Scoring.DefaultThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("scoring.default_threshold %v outside [0, 1]", th))
	}
	if _, err := scenario.ParseAggregation(c.Scoring.Aggregation); err != nil {
		errs = append(errs, fmt.Errorf("scoring.aggregation: %w", err))
	}
	switch c.Embedding.Provider {
	case embedding.ProviderAuto, embedding.ProviderOpenAI, embedding.ProviderONNX, embedding.ProviderHash:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q (want auto, openai, onnx or hash)", c.Embedding.Provider))
	}
	if r := c.Embedding.FaultErrorRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("embedding.fault_error_rate %v outside [0, 1]", r))
	}
	if c.Runner.Workers < 1 {
		errs = append(errs, fmt.Errorf("runner.workers must be >= 1, got %d", c.Runner.Workers))
	}
	switch c.Format {
	case FormatPretty, FormatJSON, FormatMarkdown:
	default:
		errs = append(errs, fmt.Errorf("format %q (want pretty, json or markdown)", c.Format))
	}
	return errors.Join(errs...)
}

// Aggregation returns the parsed aggregation policy.
func (c *Config) Aggregation() scenario.Aggregation {
	a, err := scenario.ParseAggregation(c.Scoring.Aggregation)
	if err != nil {
		return scenario.AggregateMean
	}
	return a
}

// Backend converts the embedding settings for the similarity scorer.
func (c *Config) Backend() similarity.BackendConfig {
	e := c.Embedding
	rl := embedding.DefaultRateLimiterConfig
	if e.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = e.RequestsPerMinute
	}
	if e.Burst > 0 {
		rl.Burst = e.Burst
	}
	rl.MaxRetries = e.MaxRetries

	return similarity.BackendConfig{
		EmbedderConfig: embedding.EmbedderConfig{
			Provider: e.Provider,
			Model:    e.Model,
			APIKey:   e.APIKey,
			BaseURL:  e.BaseURL,
			ModelDir: e.ModelDir,
		},
		RateLimit: rl,
		Fault:     embedding.FaultConfig{ErrorRate: e.FaultErrorRate},
	}
}

// CachePath returns the embedding cache database path.
func (c *Config) CachePath() string {
	return filepath.Join(c.Cache.Dir, "embeddings.db")
}
