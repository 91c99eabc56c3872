package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Magnitude([]float32{3, 4}), 1e-6)
	assert.Equal(t, float32(0), Magnitude([]float32{0, 0, 0}))
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero([]float32{0, 0, 0, 0}))
	assert.False(t, IsZero([]float32{0, 0, 1e-3, 0}))
}

func TestAngular(t *testing.T) {
	// Identical direction.
	assert.InDelta(t, 0, AngularBetween([]float32{1, 0}, []float32{2, 0}), 1e-5)

	// Orthogonal: cos distance 1 -> sqrt(2).
	assert.InDelta(t, math.Sqrt2, float64(AngularBetween([]float32{1, 0}, []float32{0, 1})), 1e-5)

	// Opposite: cos distance 2 -> 2.
	assert.InDelta(t, 2, AngularBetween([]float32{1, 0}, []float32{-1, 0}), 1e-5)
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 11, Dot([]float32{1, 2, 3}, []float32{3, 1, 2}), 1e-6)
}
