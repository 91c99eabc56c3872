package extractor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, err := ByName("LIGHTWEIGHT_FAST_SMALL_PRECISION")
	require.NoError(t, err)
	assert.Equal(t, LightweightFastSmallPrecision, c)
	assert.Equal(t, 2048, c.Dimension())

	_, err = ByName("SUPERHEAVYWEIGHT_INSTANT_PERFECT_PRECISION")
	require.ErrorIs(t, err, ErrUnknownCharacteristic)
}

func TestCharacteristicDimension(t *testing.T) {
	assert.Equal(t, 1024, MinimumWeightFastSmallPrecision.Dimension())
	assert.Equal(t, 1280, HeavyWeightSlowHugePrecision.Dimension())
	assert.Equal(t, 0, Characteristic("BOGUS").Dimension())
}

func TestSaveLoadVector(t *testing.T) {
	p := filepath.Join(t.TempDir(), "0.vec")
	want := []float32{0.25, -1.5, 3.75, 0}

	require.NoError(t, SaveVector(p, want))

	got, err := LoadVector(p, len(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("WrongDimension", func(t *testing.T) {
		_, err := LoadVector(p, 8)
		assert.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadVector(filepath.Join(t.TempDir(), "missing.vec"), 4)
		assert.Error(t, err)
	})
}
