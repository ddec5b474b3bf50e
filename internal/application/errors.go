package application

import (
	"errors"
	"sort"
	"strings"

	"github.com/example/studio-scheduler/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a record with the same id is already stored.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrBusy is returned when another propagation run holds the same company month.
	ErrBusy = errors.New("application: propagation already running")
	// ErrInvalidRequest is returned for malformed input that is not tied to one field.
	ErrInvalidRequest = errors.New("application: invalid request")
	// ErrConflict is returned when an event changed between being read and written.
	ErrConflict = errors.New("application: event changed concurrently")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// NewValidationError builds a ValidationError from a field map, returning
// nil when fields is empty.
func NewValidationError(fields map[string]string) *ValidationError {
	if len(fields) == 0 {
		return nil
	}
	v := &ValidationError{}
	for field, msg := range fields {
		v.add(field, msg)
	}
	return v
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// Fields returns the offending field names in sorted order.
func (v *ValidationError) Fields() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, ErrConflict), errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	}
	return err
}

// normalizeIDs trims ids and drops blanks and duplicates, keeping first-seen order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
