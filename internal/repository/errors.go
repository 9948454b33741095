// Package repository defines error types that are reused across the
// userdata store implementations.  These sentinel values allow higher
// layers such as handlers to distinguish between different failure
// scenarios without knowing which backend is in use.
package repository

import "errors"

// ErrNotFound is returned when no record matches the given internal id or
// registration id.  Handlers should translate this into an HTTP 404.
var ErrNotFound = errors.New("userdata not found")

// ErrConflict is returned when a create or update would duplicate the
// registration id of another record.  No mutation has been applied when
// this error is returned.
var ErrConflict = errors.New("registrationid already exists")
