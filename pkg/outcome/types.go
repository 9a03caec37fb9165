package outcome

import (
	"context"
	"time"
)

// Record is one append-only evaluation outcome.
type Record struct {
	// ID is a UUID assigned when the record is emitted.
	ID string `json:"id"`

	// PolicyID and PolicyVersion identify exactly which rule produced
	// this outcome.
	PolicyID      string `json:"policy_id"`
	PolicyVersion int64  `json:"policy_version"`

	// AgentID is the acting agent the decision applied to.
	AgentID string `json:"agent_id"`

	// Timestamp is when the evaluation happened.
	Timestamp time.Time `json:"timestamp"`

	// WouldBlock is what the rule said.
	WouldBlock bool `json:"would_block"`

	// EnforcedBlock is what actually happened, after stage, tier cohort,
	// and circuit state were applied.
	EnforcedBlock bool `json:"enforced_block"`

	// TierPercent is the enforcement percentage in effect at evaluation
	// time; metric windows are keyed by it.
	TierPercent int `json:"tier_percent"`

	// Failed marks a backend or evaluation error (as opposed to a clean
	// decision either way).
	Failed bool `json:"failed"`

	// Error holds the failure message when Failed is set.
	Error string `json:"error,omitempty"`

	// Latency is the evaluation duration.
	Latency time.Duration `json:"latency"`

	// Attributes is the request attribute set the rule saw (jurisdiction,
	// business function, endpoint, ...). Retained for simulator replay.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Query filters a history scan. Zero times mean unbounded on that side.
type Query struct {
	PolicyID string    // Optional: restrict to one policy
	Start    time.Time // Inclusive
	End      time.Time // Exclusive
	Limit    int       // Optional row cap (0 = no cap)
}

// Store is the append-only outcome history store.
type Store interface {
	// Append persists one record.
	Append(ctx context.Context, rec *Record) error

	// Scan streams matching records in timestamp order, invoking fn for
	// each. fn returning an error stops the scan and propagates it;
	// returning ErrStopScan stops cleanly.
	Scan(ctx context.Context, q Query, fn func(*Record) error) error

	// Count returns the number of matching records.
	Count(ctx context.Context, q Query) (int64, error)

	// Prune deletes records older than cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}
