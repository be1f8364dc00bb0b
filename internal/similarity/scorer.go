// Package similarity scores the semantic closeness of two utterances.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attest-ai/voxcheck/internal/cache"
	"github.com/attest-ai/voxcheck/internal/embedding"
	"github.com/attest-ai/voxcheck/internal/resilience"
)

// InitFunc constructs the primary embedding backend.
type InitFunc func(ctx context.Context) (embedding.Embedder, error)

// Options configures a Scorer. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// Guard wraps backend initialization. Nil uses a guard with InitTimeout.
	Guard       *resilience.Guard
	InitTimeout time.Duration
	// CallTimeout bounds a single Score call. Zero leaves the caller's deadline.
	CallTimeout time.Duration
	// Cache, when set, is consulted before the backend on every embedding.
	Cache *cache.EmbeddingCache
}

// Scorer maps two strings to a similarity in [0, 1]. The backend is loaded
// once and shared read-only; a Scorer is safe for concurrent use.
type Scorer struct {
	embedder    embedding.Embedder
	degraded    bool
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewScorer initializes the backend through the resilience guard. If init
// fails or panics, the scorer falls back to the deterministic hashing
// embedder; the failure is logged and never returned.
func NewScorer(ctx context.Context, init InitFunc, opts Options) *Scorer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard := opts.Guard
	if guard == nil {
		guard = resilience.NewGuard(logger, opts.InitTimeout)
	}

	s := &Scorer{logger: logger, callTimeout: opts.CallTimeout}

	var e embedding.Embedder
	var err error
	if init == nil {
		err = ErrNoBackend
	} else {
		e, err = resilience.Do(ctx, guard, resilience.Call{Op: "similarity.init", Kind: "embedder"}, func(ctx context.Context) (embedding.Embedder, error) {
			e, err := init(ctx)
			if err == nil && e == nil {
				err = ErrNoBackend
			}
			return e, err
		})
	}
	if err != nil {
		logger.Debug("similarity scorer running in degraded mode",
			"err", resilience.ErrScoringDegraded, "cause", err)
		e = embedding.NewHashEmbedder()
		s.degraded = true
	}

	s.embedder = cache.NewCachedEmbedder(e, opts.Cache, logger)
	return s
}

// NewStaticScorer wraps an already constructed embedder without a guard.
// Tests and embedders that cannot fail to load use it.
func NewStaticScorer(e embedding.Embedder, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{embedder: e, logger: logger}
}

// Model returns the model name of the active backend.
func (s *Scorer) Model() string { return s.embedder.Model() }

// Degraded reports whether the scorer fell back to the hashing embedder.
func (s *Scorer) Degraded() bool { return s.degraded }

// Score returns the similarity of a and b in [0, 1].
//
// Two blank strings score 1.0 and exactly one blank string scores 0.0.
// Otherwise the cosine similarity of the two embeddings is returned, clamped
// to [0, 1]. Backend errors and panics yield 0.0.
func (s *Scorer) Score(ctx context.Context, a, b string) float64 {
	emptyA := strings.TrimSpace(a) == ""
	emptyB := strings.TrimSpace(b) == ""
	switch {
	case emptyA && emptyB:
		return 1.0
	case emptyA || emptyB:
		return 0.0
	}

	sim, err := s.compare(ctx, a, b)
	if err != nil {
		s.logger.Warn("similarity scoring failed", "model", s.embedder.Model(), "err", err)
		return 0.0
	}
	return sim
}

func (s *Scorer) compare(ctx context.Context, a, b string) (sim float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			sim, err = 0, fmt.Errorf("similarity: panic: %v", r)
		}
	}()

	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	va, err := s.embedder.Embed(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("similarity: embed expected: %w", err)
	}
	vb, err := s.embedder.Embed(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("similarity: embed actual: %w", err)
	}
	cos, err := embedding.CosineSimilarity(va, vb)
	if err != nil {
		return 0, fmt.Errorf("similarity: %w", err)
	}
	return embedding.Clamp01(cos), nil
}
