package index

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDataDir is returned when a permanent index is opened without a
	// data directory.
	ErrNoDataDir = errors.New("permanent index requires a data directory")

	// ErrVolatileDataDir is returned when a volatile index is opened with
	// an explicit data directory.
	ErrVolatileDataDir = errors.New("volatile index cannot take a data directory")

	// ErrNotADirectory is returned when the data directory path collides
	// with an existing regular file.
	ErrNotADirectory = errors.New("index data directory is not a directory")

	// ErrCorruptIndex is returned when an existing index file cannot be
	// parsed as the expected format.
	ErrCorruptIndex = errors.New("file is not a recognized index")

	// ErrNullVector is returned when appending an all-zero vector. A zero
	// vector is the extractor's failure sentinel, never a real embedding.
	ErrNullVector = errors.New("cannot index a null vector")

	// ErrNotBuiltYet is returned when removing from an index that never
	// had anything appended.
	ErrNotBuiltYet = errors.New("index not built yet")

	// ErrEmptyIndex is returned by group-by when one or fewer items are
	// indexed, and by Nearest on an empty index.
	ErrEmptyIndex = errors.New("not enough indexed items")

	// ErrInvalidTopCount is returned by group-by when top is zero or below.
	ErrInvalidTopCount = errors.New("top must be positive")

	// ErrInvalidK is returned when a search is requested with k <= 0.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when operating on a closed index.
	ErrClosed = errors.New("index is closed")
)

// ErrOutOfRange indicates an id outside the dense 0..N-1 range.
type ErrOutOfRange struct {
	ID     int
	Length int
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("id %d out of range for index of length %d", e.ID, e.Length)
}

// ErrDimensionMismatch indicates a vector whose length differs from the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
