package testutil

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixelsift/pixelsift/extractor"
)

// StubExtractor derives a deterministic unit vector from each URI, so
// identical URIs always embed identically and distinct URIs almost never
// collide. It never touches the bytes behind the URI.
type StubExtractor struct {
	Dim int

	// FailFor lists URIs whose extraction fails with ErrNotImage.
	FailFor map[string]bool

	// EmbedAs pins specific URIs to fixed embeddings, overriding the
	// hash-derived vector.
	EmbedAs map[string][]float32
}

var _ extractor.Extractor = (*StubExtractor)(nil)

// NewStubExtractor creates a stub extractor with the given embedding
// dimension.
func NewStubExtractor(dim int) *StubExtractor {
	return &StubExtractor{Dim: dim}
}

// Extract returns the deterministic embedding of uri.
func (e *StubExtractor) Extract(_ context.Context, uri string) ([]float32, error) {
	if e.FailFor[uri] {
		return nil, fmt.Errorf("%w: %s", extractor.ErrNotImage, uri)
	}
	if pinned, ok := e.EmbedAs[uri]; ok {
		return pinned, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(uri))
	rng := NewRNG(int64(h.Sum64() % math.MaxInt64))
	return rng.UnitVector(e.Dim), nil
}

// Dimension returns the fixed embedding length.
func (e *StubExtractor) Dimension() int {
	return e.Dim
}

// Characteristic identifies the stub profile.
func (e *StubExtractor) Characteristic() extractor.Characteristic {
	return extractor.DefaultCharacteristic
}

// WritePNG writes a tiny solid-color PNG fixture to dir and returns its
// path. The color varies with n so fixtures have distinct bytes.
func WritePNG(t *testing.T, dir string, n int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	shade := color.RGBA{R: uint8(37 * n), G: uint8(91 * n), B: uint8(151 * n), A: 255}
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, shade)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	p := filepath.Join(dir, fmt.Sprintf("fixture%d.png", n))
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return p
}
