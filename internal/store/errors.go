package store

import "errors"

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a write that collides with an existing record.
	ErrConflict = errors.New("conflict")
)
