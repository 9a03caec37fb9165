package policy

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a policy id does not exist in the store.
var ErrNotFound = errors.New("policy not found")

// ErrVersionConflict is returned when a compare-and-swap write observes a
// version other than the one it read. The caller re-reads and retries;
// it never force-overwrites.
var ErrVersionConflict = errors.New("policy version conflict")

// ErrInsufficientData is the explicit "hold" outcome: not enough samples in
// the window to make a control decision. It is a valid state, not a failure,
// and absence of data is never treated as success.
var ErrInsufficientData = errors.New("insufficient data")

// ConfigurationError reports malformed thresholds, ladder, or rule
// definitions. A policy with a configuration error stays in its current
// stage; the controllers raise an alert and attempt no transition.
type ConfigurationError struct {
	PolicyID string // Affected policy (may be empty for standalone thresholds)
	Field    string // Offending field
	Message  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.PolicyID != "" {
		return fmt.Sprintf("configuration error [policy=%s, field=%s]: %s", e.PolicyID, e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error [field=%s]: %s", e.Field, e.Message)
}

// StoreError wraps a transient storage failure. Controllers retry on the
// next tick; a transient read failure never causes an implicit promotion
// or rollback.
type StoreError struct {
	Backend   string // Storage backend ("memory", "sqlite")
	Operation string // Operation that failed ("get", "list", "cas", ...)
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("policy store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{Backend: backend, Operation: operation, Cause: cause}
}
