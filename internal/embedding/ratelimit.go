package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig controls request pacing and retry for a remote Embedder.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// DefaultRateLimiterConfig is used for remote backends when nothing is configured.
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerMinute: 3000,
	Burst:             50,
	MaxRetries:        2,
	InitialBackoff:    200 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
}

// RateLimitedEmbedder paces calls to inner with a token bucket and retries
// transient failures with capped exponential backoff.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
	cfg     RateLimiterConfig
}

// NewRateLimitedEmbedder wraps inner. RequestsPerMinute must be positive.
func NewRateLimitedEmbedder(inner Embedder, cfg RateLimiterConfig) (*RateLimitedEmbedder, error) {
	if inner == nil {
		return nil, errors.New("rate limiter: inner embedder is nil")
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limiter: RequestsPerMinute must be > 0, got %d", cfg.RequestsPerMinute)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRateLimiterConfig.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(perSecond, cfg.Burst),
		cfg:     cfg,
	}, nil
}

// Model delegates to the inner embedder.
func (r *RateLimitedEmbedder) Model() string { return r.inner.Model() }

// Embed waits for a rate-limit token, then calls the inner embedder, retrying
// transient errors up to MaxRetries times.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	backoff := r.cfg.InitialBackoff

	for attempt := 0; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: wait: %w", err)
		}

		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if attempt >= r.cfg.MaxRetries || !retryable(ctx, err) {
			return nil, fmt.Errorf("rate limiter: %d attempt(s): %w", attempt+1, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("rate limiter: backoff: %w", ctx.Err())
		}
		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
