package embedding

import (
	"context"
	"errors"
)

// Embedder produces vector embeddings for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Backend names accepted in EmbedderConfig.Provider.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderHash   = "hash"
)

var errONNXNotAvailable = errors.New("onnx embedding: not compiled, rebuild with -tags onnx")

// EmbedderConfig holds configuration for creating an Embedder.
type EmbedderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	ModelDir string
}
