package models

import "errors"

// Error kinds shared by the store, the scheduler and the HTTP layer.
// Wrap them with context and test with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPartialWrite        = errors.New("partial write failure")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrConflict            = errors.New("concurrent modification")
)
