package core

import (
	"fmt"
	"math"
)

// CosineDistance returns 1 - cos(a, b). The result lies in [0, 2]:
// 0 for identical direction, 2 for opposite direction.
// A zero vector is treated as orthogonal to everything (distance 1).
func CosineDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push cos slightly outside [-1, 1]
	cos = math.Max(-1, math.Min(1, cos))
	return float32(1 - cos), nil
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}
