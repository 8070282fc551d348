package retry

import "errors"

var (
	// ErrInvalidMaxAttempts indicates MaxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidDelay indicates a negative base delay.
	ErrInvalidDelay = errors.New("base delay must not be negative")

	// ErrInvalidMultiplier indicates a multiplier below 1.
	ErrInvalidMultiplier = errors.New("multiplier must be at least 1")
)
