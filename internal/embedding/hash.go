package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
)

const (
	hashModelName = "hash-ngram-v1"
	hashDim       = 2048

	wordWeight    = 1.0
	trigramWeight = 0.5
)

// HashEmbedder is the deterministic fallback backend. It projects word and
// character-trigram features into a fixed-size signed vector using xxh3, so
// identical text always yields an identical unit vector and no model is needed.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder with the default dimensionality.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{dim: hashDim}
}

// Model returns the fallback model name.
func (e *HashEmbedder) Model() string { return hashModelName }

// Embed returns an L2-normalized sparse vector for text. Text with no
// tokens yields a zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, w := range splitTokens(strings.ToLower(text)) {
		e.add(vec, "w:"+w, wordWeight)

		runes := []rune("^" + w + "$")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "c:"+string(runes[i:i+3]), trigramWeight)
		}
	}
	Normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := xxh3.HashString(feature)
	idx := h % uint64(e.dim)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// splitTokens splits text into word and punctuation tokens.
func splitTokens(text string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsSpace(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			continue
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
