package embedding

import (
	"context"
	"fmt"
	"sync"
)

// MockEmbedder implements Embedder with configurable vectors for testing.
type MockEmbedder struct {
	mu          sync.Mutex
	ModelName   string
	Vectors     map[string][]float32
	Errors      []error // per-call errors by call index; nil entries fall through
	Err         error   // returned on every call when set
	CallCount   int
	TextHistory []string
}

// NewMockEmbedder creates a MockEmbedder returning the given vectors by text.
// Texts without a vector fall back to the hashing embedder.
func NewMockEmbedder(vectors map[string][]float32) *MockEmbedder {
	return &MockEmbedder{ModelName: "mock-embedding", Vectors: vectors}
}

// NewFailingEmbedder creates a MockEmbedder that fails every call with err.
func NewFailingEmbedder(err error) *MockEmbedder {
	return &MockEmbedder{ModelName: "mock-embedding", Err: err}
}

func (m *MockEmbedder) Model() string { return m.ModelName }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	idx := m.CallCount
	m.CallCount++
	m.TextHistory = append(m.TextHistory, text)

	if m.Err != nil {
		m.mu.Unlock()
		return nil, m.Err
	}
	if idx < len(m.Errors) && m.Errors[idx] != nil {
		err := m.Errors[idx]
		m.mu.Unlock()
		return nil, err
	}
	vec, ok := m.Vectors[text]
	m.mu.Unlock()

	if ok {
		if len(vec) == 0 {
			return nil, fmt.Errorf("mock embedder: empty vector for %q", text)
		}
		return append([]float32(nil), vec...), nil
	}
	return NewHashEmbedder().Embed(ctx, text)
}

// GetCallCount returns the number of times Embed has been called.
func (m *MockEmbedder) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
