package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrStorageStateInvalid = errors.New("storage state invalid")
	ErrCancelled           = errors.New("capture cancelled")
	ErrNotFound            = errors.New("not found")
)

// InvalidInput wraps a validation message in ErrInvalidInput.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
