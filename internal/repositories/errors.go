package repositories

import "errors"

// ErrNotFound is returned when a requested record does not exist (or belongs
// to a different organization than the caller).
var ErrNotFound = errors.New("repositories: not found")

// ErrConflict is returned when a write would violate a uniqueness constraint
// (e.g. a duplicate org/username pair, a duplicate session key).
var ErrConflict = errors.New("repositories: conflict")
