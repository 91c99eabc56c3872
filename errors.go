package pixelsift

import (
	"errors"
	"fmt"
)

// ErrConfigMismatch is returned when a collection is reopened with an
// extractor that does not match its persisted configuration.
var ErrConfigMismatch = errors.New("extractor does not match persisted configuration")

func characteristicMismatch(persisted, given string) error {
	return fmt.Errorf("%w: indexed with characteristic %s, opened with %s",
		ErrConfigMismatch, persisted, given)
}

func featureSizeMismatch(persisted, given int) error {
	return fmt.Errorf("%w: indexed with feature size %d, opened with %d",
		ErrConfigMismatch, persisted, given)
}
