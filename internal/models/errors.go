package models

import "errors"

var (
	// ErrNotFound is returned when a referenced article does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is a business-rule conflict such as a url path already in use
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrConcurrencyConflict is returned when a row changed since it was read
	ErrConcurrencyConflict = errors.New("concurrency conflict: row was modified by another save")

	// ErrTransient is an infrastructure failure; the whole command may be retried
	ErrTransient = errors.New("transient store failure, try again")
)

// IsConflict reports whether err should prompt a reload-and-retry
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidOperation) || errors.Is(err, ErrConcurrencyConflict)
}
