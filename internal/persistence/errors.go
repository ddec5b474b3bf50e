package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConflict is returned when a conditional update lost a race with a
	// concurrent writer.
	ErrConflict = errors.New("persistence: concurrent modification")
)
