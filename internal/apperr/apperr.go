// Package apperr defines the error taxonomy shared across printstage.
// Callers match sentinel values with errors.Is and pull typed errors out
// with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means no valid caller identity was presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the user or referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means a required field is missing or malformed.
	ErrValidation = errors.New("missing required fields")
)

// FetchError reports that a file's remote content could not be
// retrieved (transport failure, timeout, or non-2xx status).
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports that a staged copy could not be written.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write staged copy %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// StorageError reports a record-store read or write failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
