package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned when an insert collides with an existing row,
// e.g. a session uploaded twice with the same client-supplied ID.
var ErrDuplicate = errors.New("storage: duplicate")
