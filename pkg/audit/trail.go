package audit

import (
	"context"
	"fmt"
	"time"

	"veridion-hq/sentinel/pkg/policy"
)

// Query filters a trail scan. Zero times mean unbounded on that side.
type Query struct {
	PolicyID string    // Optional: restrict to one policy
	Start    time.Time // Inclusive
	End      time.Time // Exclusive
	Limit    int       // Optional row cap (0 = no cap)
}

// Trail is the append-only transition record store.
type Trail interface {
	// Append persists one transition record.
	Append(ctx context.Context, rec *policy.TransitionRecord) error

	// Scan streams matching records in timestamp order, invoking fn for
	// each. fn returning an error stops the scan and propagates it.
	Scan(ctx context.Context, q Query, fn func(*policy.TransitionRecord) error) error

	// Count returns the number of matching records.
	Count(ctx context.Context, q Query) (int64, error)

	// Close releases backend resources.
	Close() error
}

// ExportError reports a failure while exporting the trail.
type ExportError struct {
	Format      string // Export format ("json", "csv")
	RecordCount int    // Records written before the failure
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("audit export error [format=%s, records=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}
