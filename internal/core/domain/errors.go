package domain

import "errors"

// Domain errors shared across services and adapters.
var (
	// ErrInvalidInput indicates a caller supplied a malformed or missing value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured indicates the server has no usable connection settings.
	ErrNotConfigured = errors.New("not configured")
)
