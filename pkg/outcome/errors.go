package outcome

import (
	"errors"
	"fmt"
)

// ErrStopScan stops a Scan cleanly from inside the callback, e.g. when the
// simulator's row budget is exhausted.
var ErrStopScan = errors.New("stop scan")

// StorageError wraps an outcome store failure.
type StorageError struct {
	Backend   string // "memory" or "sqlite"
	Operation string // Operation that failed
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("outcome storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}
