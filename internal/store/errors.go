package store

import "errors"

// Common store errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateKey is returned when attempting to create a resource with a duplicate key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConcurrentModification is returned when a guarded claim transition
	// finds the stored status no longer matches the expected prior status.
	ErrConcurrentModification = errors.New("resource was modified by another request")
)
