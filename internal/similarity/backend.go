package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attest-ai/voxcheck/internal/embedding"
)

// ErrNoBackend is returned by a backend initializer when no primary embedding
// backend can be configured. The scorer then runs in degraded mode.
var ErrNoBackend = errors.New("no embedding backend available")

// BackendConfig selects and configures the primary embedding backend.
type BackendConfig struct {
	embedding.EmbedderConfig
	RateLimit embedding.RateLimiterConfig
	Fault     embedding.FaultConfig
}

// NewBackend returns an initializer that constructs the configured backend.
//
// Provider "auto" prefers the OpenAI-compatible API when an API key is set,
// then the local ONNX model when compiled in. Remote backends are wrapped in
// a rate-limited retrying embedder, and any configured fault injection wraps
// the result.
func NewBackend(cfg BackendConfig, logger *slog.Logger) InitFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (embedding.Embedder, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, name, err := selectBackend(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Fault.Enabled() {
			logger.Warn("fault injection enabled on embedding backend",
				"error_rate", cfg.Fault.ErrorRate, "panic_rate", cfg.Fault.PanicRate)
			e = embedding.NewFaultEmbedder(e, cfg.Fault)
		}
		logger.Info("embedding backend ready", "provider", name, "model", e.Model())
		return e, nil
	}
}

func selectBackend(cfg BackendConfig) (embedding.Embedder, string, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = embedding.ProviderAuto
	}

	switch provider {
	case embedding.ProviderHash:
		return embedding.NewHashEmbedder(), provider, nil
	case embedding.ProviderOpenAI:
		e, err := openAIBackend(cfg)
		return e, provider, err
	case embedding.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(cfg.EmbedderConfig)
		return e, provider, err
	case embedding.ProviderAuto:
		if cfg.APIKey != "" {
			e, err := openAIBackend(cfg)
			return e, embedding.ProviderOpenAI, err
		}
		if embedding.ONNXAvailable {
			e, err := embedding.NewONNXEmbedder(cfg.EmbedderConfig)
			return e, embedding.ProviderONNX, err
		}
		return nil, provider, ErrNoBackend
	default:
		return nil, provider, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

func openAIBackend(cfg BackendConfig) (embedding.Embedder, error) {
	oa, err := embedding.NewOpenAIEmbedder(cfg.EmbedderConfig)
	if err != nil {
		return nil, err
	}
	rl := cfg.RateLimit
	if rl.RequestsPerMinute <= 0 {
		rl = embedding.DefaultRateLimiterConfig
	}
	return embedding.NewRateLimitedEmbedder(oa, rl)
}
