// Package testutil provides testing utilities for pixelsift.
//
// This package is intended for use in tests only. It provides seeded
// random vector generation, a deterministic stub extractor, and tiny
// image fixtures for exercising the store and the indexing pipeline
// without a real extraction network.
package testutil
