package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrSessionNotFound indicates the session directory does not exist.
	ErrSessionNotFound = errors.New("store: session not found")
)
