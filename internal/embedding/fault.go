package embedding

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// FaultConfig defines the fault injection parameters for a FaultEmbedder.
type FaultConfig struct {
	ErrorRate     float64       // Probability [0,1] of returning an error
	LatencyJitter time.Duration // Random additional latency [0, LatencyJitter)
	PanicRate     float64       // Probability [0,1] of panicking instead of returning
	TimeoutAfter  time.Duration // If > 0, blocks this long then returns context.DeadlineExceeded
}

// Enabled reports whether any fault is configured.
func (c FaultConfig) Enabled() bool {
	return c.ErrorRate > 0 || c.LatencyJitter > 0 || c.PanicRate > 0 || c.TimeoutAfter > 0
}

// FaultEmbedder wraps an Embedder and injects configurable faults. It is used
// for chaos runs and for exercising the scorer's failure handling.
type FaultEmbedder struct {
	inner  Embedder
	config FaultConfig
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewFaultEmbedder creates a FaultEmbedder with a time-based seed.
func NewFaultEmbedder(inner Embedder, config FaultConfig) *FaultEmbedder {
	return NewFaultEmbedderWithSeed(inner, config, time.Now().UnixNano())
}

// NewFaultEmbedderWithSeed creates a FaultEmbedder with a deterministic seed for testing.
func NewFaultEmbedderWithSeed(inner Embedder, config FaultConfig, seed int64) *FaultEmbedder {
	return &FaultEmbedder{
		inner:  inner,
		config: config,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec
	}
}

// Model returns the inner model name prefixed with "fault:".
func (f *FaultEmbedder) Model() string {
	return "fault:" + f.inner.Model()
}

// Embed injects faults according to FaultConfig before delegating to the inner embedder.
func (f *FaultEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	errorRoll := f.rng.Float64()
	panicRoll := f.rng.Float64()
	var jitter time.Duration
	if f.config.LatencyJitter > 0 {
		jitter = time.Duration(f.rng.Int63n(int64(f.config.LatencyJitter)))
	}
	f.mu.Unlock()

	if f.config.PanicRate > 0 && panicRoll < f.config.PanicRate {
		panic("injected fault: embedder panic")
	}

	if f.config.ErrorRate > 0 && errorRoll < f.config.ErrorRate {
		return nil, fmt.Errorf("injected fault: simulated embedding error")
	}

	if f.config.TimeoutAfter > 0 {
		select {
		case <-time.After(f.config.TimeoutAfter):
			return nil, context.DeadlineExceeded
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if jitter > 0 {
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.inner.Embed(ctx, text)
}
