// Package store holds the error vocabulary shared by every relational
// backend (store/postgres, store/memory) and the domain services on top
// of them.
package store

import "errors"

var (
	// ErrNotFound reports a missing row, or a row that exists but is no
	// longer live for the requested operation.
	ErrNotFound = errors.New("record not found")
	// ErrConflict reports a unique constraint violation not covered by a
	// more specific domain error.
	ErrConflict = errors.New("record conflict")
	// ErrUnavailable wraps driver, network and timeout failures.
	ErrUnavailable = errors.New("store unavailable")
)
