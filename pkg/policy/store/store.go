package store

import (
	"context"
	"errors"
	"fmt"

	"veridion-hq/sentinel/pkg/policy"
)

// Store is the durable policy record store with compare-and-swap writes.
type Store interface {
	// Create inserts a new policy at version 1 and records its first
	// PolicyVersion snapshot. The policy must validate.
	Create(ctx context.Context, p *policy.Policy) error

	// Get returns a copy of the policy, or policy.ErrNotFound.
	Get(ctx context.Context, id string) (*policy.Policy, error)

	// List returns copies of all policies, in unspecified order.
	List(ctx context.Context) ([]*policy.Policy, error)

	// CompareAndSwap writes p iff the stored version equals
	// expectedVersion, bumping p.Version to expectedVersion+1 and
	// appending a PolicyVersion snapshot. Returns
	// policy.ErrVersionConflict when the stored version moved, and
	// policy.ErrNotFound when the id does not exist.
	CompareAndSwap(ctx context.Context, p *policy.Policy, expectedVersion int64) error

	// Versions returns the immutable snapshot history, oldest first.
	Versions(ctx context.Context, id string) ([]*policy.PolicyVersion, error)

	// Close releases backend resources.
	Close() error
}

// DefaultCASRetries bounds the read-mutate-write loop in Apply. Conflicts
// are rare (two controllers and the occasional operator per policy), so a
// handful of retries is plenty before surfacing the conflict.
const DefaultCASRetries = 5

// Apply runs a read-mutate-CAS loop for a single policy: it reads the
// current record, applies mutate to a private copy, and writes it back
// conditioned on the version it read. On policy.ErrVersionConflict it
// re-reads and tries again, up to maxRetries attempts.
//
// mutate may return ErrNoTransition to abort without writing, which Apply
// passes through; any other mutate error aborts the loop unchanged.
func Apply(ctx context.Context, s Store, id string, maxRetries int, mutate func(*policy.Policy) error) (*policy.Policy, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultCASRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		expected := current.Version
		if err := mutate(current); err != nil {
			return nil, err
		}

		if err := s.CompareAndSwap(ctx, current, expected); err != nil {
			if errors.Is(err, policy.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return current, nil
	}
	return nil, fmt.Errorf("compare-and-swap for policy %s exhausted %d attempts: %w", id, maxRetries, lastErr)
}

// ErrNoTransition aborts an Apply loop without writing. It signals that the
// mutate callback decided, on fresh data, that no state change is needed.
var ErrNoTransition = errors.New("no transition")
