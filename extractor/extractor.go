package extractor

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownCharacteristic is returned for characteristic names not
	// in the supported set.
	ErrUnknownCharacteristic = errors.New("unknown characteristic")

	// ErrNotImage signals that the source behind a URI is not an image
	// the extraction network can consume.
	ErrNotImage = errors.New("file is not an image")
)

// Characteristic names an extraction profile: the trade-off between
// network weight, extraction speed and embedding precision.
type Characteristic string

const (
	// MobileNet
	MinimumWeightFastSmallPrecision Characteristic = "MINIMUMWEIGHT_FAST_SMALL_PRECISION"
	// ResNet50V2
	LightweightFastSmallPrecision Characteristic = "LIGHTWEIGHT_FAST_SMALL_PRECISION"
	// ResNet101V2
	LightweightFastShortPrecision Characteristic = "LIGHTWEIGHT_FAST_SHORT_PRECISION"
	// DenseNet169
	LightweightQuickShortPrecision Characteristic = "LIGHTWEIGHT_QUICK_SHORT_PRECISION"
	// DenseNet201
	MediumWeightQuickGoodPrecision Characteristic = "MEDIUMWEIGHT_QUICK_GOOD_PRECISION"
	// InceptionV3
	MiddleWeightQuickGoodPrecision Characteristic = "MIDDLEWEIGHT_QUICK_GOOD_PRECISION"
	// Xception
	MiddleWeightSlowGoodPrecision Characteristic = "MIDDLEWEIGHT_SLOW_GOOD_PRECISION"
	// EfficientNetV2M
	HeavyWeightSlowGoodPrecision Characteristic = "HEAVYWEIGHT_SLOW_GOOD_PRECISION"
	// EfficientNetV2L
	HeavyWeightSlowHugePrecision Characteristic = "HEAVYWEIGHT_SLOW_HUGE_PRECISION"
)

// DefaultCharacteristic is used when no profile is configured.
const DefaultCharacteristic = LightweightFastSmallPrecision

// characteristicDimensions maps each profile to its embedding dimension.
var characteristicDimensions = map[Characteristic]int{
	MinimumWeightFastSmallPrecision: 1024,
	LightweightFastSmallPrecision:   2048,
	LightweightFastShortPrecision:   2048,
	LightweightQuickShortPrecision:  1664,
	MediumWeightQuickGoodPrecision:  1920,
	MiddleWeightQuickGoodPrecision:  2048,
	MiddleWeightSlowGoodPrecision:   2048,
	HeavyWeightSlowGoodPrecision:    1280,
	HeavyWeightSlowHugePrecision:    1280,
}

// ByName returns the characteristic with the given name.
func ByName(name string) (Characteristic, error) {
	c := Characteristic(name)
	if _, ok := characteristicDimensions[c]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCharacteristic, name)
	}
	return c, nil
}

// Dimension returns the embedding dimension of the characteristic, or 0
// if it is unknown.
func (c Characteristic) Dimension() int {
	return characteristicDimensions[c]
}

// String implements fmt.Stringer.
func (c Characteristic) String() string {
	return string(c)
}

// Extractor turns image URIs into fixed-dimension embeddings.
type Extractor interface {
	// Extract returns the embedding of the image behind uri. It fails
	// with an error wrapping ErrNotImage for non-image sources.
	Extract(ctx context.Context, uri string) ([]float32, error)

	// Dimension returns the fixed length of extracted embeddings.
	Dimension() int

	// Characteristic identifies the extraction profile, for the
	// collection config sidecar.
	Characteristic() Characteristic
}
