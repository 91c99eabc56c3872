package imagestore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for the requested id.
	ErrNotFound = errors.New("image not found")

	// ErrNotImage is returned when a source does not hold a recognized
	// image format.
	ErrNotImage = errors.New("file is not an image")
)

// ErrOutOfRange indicates an id at or beyond the number of stored records.
type ErrOutOfRange struct {
	ID     int
	Length int
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("id %d out of range [0, %d)", e.ID, e.Length)
}

func (e *ErrOutOfRange) Unwrap() error {
	return ErrNotFound
}
