package embedding

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLengthMismatch is returned when vectors have different dimensions.
	ErrLengthMismatch = errors.New("vectors must have the same length")
	// ErrZeroMagnitude is returned when a vector has no direction.
	ErrZeroMagnitude = errors.New("vector has zero magnitude")
)

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	norms := dot(a, a) * dot(b, b)
	if norms == 0 {
		return 0, ErrZeroMagnitude
	}
	return dot(a, b) / math.Sqrt(norms), nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Clamp01 bounds a similarity to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

// Normalize scales vec to unit length in place. Zero vectors are left untouched.
func Normalize(vec []float32) {
	n := math.Sqrt(dot(vec, vec))
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / n)
	}
}
