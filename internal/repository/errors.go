// Package repository defines error types that are reused across multiple
// repositories and stores.  These sentinel values allow the service layer
// to distinguish a missing row from a duplicate write or a lock that could
// not be acquired in time, and translate each into its own taxonomy.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such
// as a duplicate check-in code or a second payment for the same order.
var ErrConflict = errors.New("conflict")

// ErrLockTimeout is returned when a row lock could not be acquired before
// the caller's deadline or the database lock wait timeout.  The operation
// may be retried.
var ErrLockTimeout = errors.New("lock wait timeout")
