package pixelsift

import (
	"runtime"

	"github.com/pixelsift/pixelsift/fetch"
	"github.com/pixelsift/pixelsift/imagestore"
	"github.com/pixelsift/pixelsift/index"
)

// Options contains configuration options for an ImageSearch instance.
type Options struct {
	// ImportImages controls whether payload bytes are copied into the
	// store. Overridden by a persisted collection config.
	ImportImages bool

	// BucketSize is how many records share one storage subdirectory.
	BucketSize int

	// Density drives the tree count of the persisted index.
	Density float64

	// Workers bounds the import and extraction worker pools.
	Workers int

	// Fetcher loads source bytes and metadata.
	Fetcher fetch.Fetcher

	// Progress renders a progress bar during bulk indexing.
	Progress bool

	// Logger is the logger to use.
	Logger *Logger
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	ImportImages: true,
	BucketSize:   imagestore.DefaultBucketSize,
	Density:      index.DefaultDensity,
	Workers:      runtime.GOMAXPROCS(0),
}

// WithImportImages controls whether payload bytes are copied into the store.
func WithImportImages(importImages bool) func(o *Options) {
	return func(o *Options) {
		o.ImportImages = importImages
	}
}

// WithBucketSize overrides how many records share one storage subdirectory.
func WithBucketSize(size int) func(o *Options) {
	return func(o *Options) {
		o.BucketSize = size
	}
}

// WithDensity overrides the index tree density.
func WithDensity(density float64) func(o *Options) {
	return func(o *Options) {
		o.Density = density
	}
}

// WithWorkers bounds the import and extraction worker pools.
func WithWorkers(workers int) func(o *Options) {
	return func(o *Options) {
		o.Workers = workers
	}
}

// WithFetcher overrides the source fetcher.
func WithFetcher(f fetch.Fetcher) func(o *Options) {
	return func(o *Options) {
		o.Fetcher = f
	}
}

// WithProgress renders a progress bar during bulk indexing.
func WithProgress() func(o *Options) {
	return func(o *Options) {
		o.Progress = true
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}
