package similarity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/attest-ai/voxcheck/internal/embedding"
)

func TestNewBackend_Hash(t *testing.T) {
	init := NewBackend(BackendConfig{EmbedderConfig: embedding.EmbedderConfig{Provider: embedding.ProviderHash}}, nil)
	e, err := init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if e.Model() != "hash-ngram-v1" {
		t.Errorf("Model() = %q", e.Model())
	}
}

func TestNewBackend_OpenAIIsRateLimited(t *testing.T) {
	init := NewBackend(BackendConfig{EmbedderConfig: embedding.EmbedderConfig{
		Provider: embedding.ProviderOpenAI,
		APIKey:   "sk-test",
	}}, nil)
	e, err := init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, ok := e.(*embedding.RateLimitedEmbedder); !ok {
		t.Errorf("expected *RateLimitedEmbedder, got %T", e)
	}
	if e.Model() != "text-embedding-3-small" {
		t.Errorf("Model() = %q", e.Model())
	}
}

func TestNewBackend_OpenAIWithoutKeyFails(t *testing.T) {
	init := NewBackend(BackendConfig{EmbedderConfig: embedding.EmbedderConfig{Provider: embedding.ProviderOpenAI}}, nil)
	if _, err := init(context.Background()); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestNewBackend_AutoWithoutKeyOrONNX(t *testing.T) {
	if embedding.ONNXAvailable {
		t.Skip("onnx build selects the local model")
	}
	init := NewBackend(BackendConfig{}, nil)
	if _, err := init(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
}

func TestNewBackend_UnknownProvider(t *testing.T) {
	init := NewBackend(BackendConfig{EmbedderConfig: embedding.EmbedderConfig{Provider: "word2vec"}}, nil)
	_, err := init(context.Background())
	if err == nil || !strings.Contains(err.Error(), "word2vec") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestNewBackend_FaultWrapper(t *testing.T) {
	init := NewBackend(BackendConfig{
		EmbedderConfig: embedding.EmbedderConfig{Provider: embedding.ProviderHash},
		Fault:          embedding.FaultConfig{ErrorRate: 1},
	}, nil)
	e, err := init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.HasPrefix(e.Model(), "fault:") {
		t.Errorf("Model() = %q, want fault: prefix", e.Model())
	}

	s := NewScorer(context.Background(), init, Options{})
	if s.degraded {
		t.Fatal("fault injection applies per call, init should succeed")
	}
	if got := s.Score(context.Background(), "Step 1", "Step 1"); got != 0.0 {
		t.Errorf("Score under always-failing backend = %f, want 0.0", got)
	}
}
