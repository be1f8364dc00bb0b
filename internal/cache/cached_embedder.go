package cache

import (
	"context"
	"log/slog"

	"github.com/attest-ai/voxcheck/internal/embedding"
)

// CachedEmbedder consults an EmbeddingCache before calling the wrapped Embedder.
type CachedEmbedder struct {
	inner  embedding.Embedder
	cache  *EmbeddingCache
	logger *slog.Logger
}

// NewCachedEmbedder wraps inner with c. When c is nil, inner is returned unchanged.
func NewCachedEmbedder(inner embedding.Embedder, c *EmbeddingCache, logger *slog.Logger) embedding.Embedder {
	if c == nil {
		return inner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: c, logger: logger}
}

// Model returns the wrapped embedder's model; cache entries are keyed by it.
func (e *CachedEmbedder) Model() string { return e.inner.Model() }

// Embed returns the cached vector for text, computing and storing it on a miss.
// Cache read and write failures are logged and never fail the call.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := ContentHash(text)
	model := e.inner.Model()

	cached, err := e.cache.Get(ctx, h, model)
	if err != nil {
		e.logger.Warn("embedding cache read error", "model", model, "err", err)
	} else if cached != nil {
		return cached, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if putErr := e.cache.Put(ctx, h, model, vec); putErr != nil {
		e.logger.Error("embedding cache write error", "model", model, "err", putErr)
	}
	return vec, nil
}
