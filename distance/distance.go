// Package distance provides the vector distance calculations used by the
// index. The heavy kernels (magnitude, cosine) are delegated to the
// SIMD-accelerated implementations in github.com/viant/vec.
package distance

import (
	"math"

	"github.com/viant/vec/search"
)

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float32 {
	return search.Float32s(v).Magnitude()
}

// IsZero reports whether v has zero L2 norm.
func IsZero(v []float32) bool {
	return Magnitude(v) == 0
}

// Cosine returns the cosine distance (1 - cosine similarity) between a and b.
// Assumes vectors are the same length (caller's responsibility).
func Cosine(a, b []float32) float32 {
	va := search.Float32s(a)
	return va.CosineDistanceWithMagnitude(b, va.Magnitude(), search.Float32s(b).Magnitude())
}

// CosineWithMagnitudes is Cosine with precomputed norms, for callers that
// amortize magnitude computation across many comparisons.
func CosineWithMagnitudes(a, b []float32, ma, mb float32) float32 {
	return search.Float32s(a).CosineDistanceWithMagnitude(b, ma, mb)
}

// Angular converts a cosine distance to the angular distance used for
// neighbor ranking: sqrt(2 * (1 - cos)). Exact duplicates score 0,
// opposite vectors score 2.
func Angular(cosineDistance float32) float32 {
	if cosineDistance < 0 {
		cosineDistance = 0
	}
	return float32(math.Sqrt(float64(2 * cosineDistance)))
}

// AngularBetween returns the angular distance between a and b.
func AngularBetween(a, b []float32) float32 {
	return Angular(Cosine(a, b))
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
