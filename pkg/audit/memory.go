package audit

import (
	"context"
	"sort"
	"sync"

	"veridion-hq/sentinel/pkg/policy"
)

// MemoryTrail is an in-memory Trail for tests and ephemeral deployments.
type MemoryTrail struct {
	mu      sync.RWMutex
	records []*policy.TransitionRecord
}

// NewMemoryTrail creates an empty in-memory trail.
func NewMemoryTrail() *MemoryTrail {
	return &MemoryTrail{}
}

// Append implements the Trail interface.
func (m *MemoryTrail) Append(_ context.Context, rec *policy.TransitionRecord) error {
	cp := *rec
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &cp)
	return nil
}

func (q Query) matches(rec *policy.TransitionRecord) bool {
	if q.PolicyID != "" && rec.PolicyID != q.PolicyID {
		return false
	}
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !rec.Timestamp.Before(q.End) {
		return false
	}
	return true
}

// Scan implements the Trail interface.
func (m *MemoryTrail) Scan(ctx context.Context, q Query, fn func(*policy.TransitionRecord) error) error {
	m.mu.RLock()
	matched := make([]*policy.TransitionRecord, 0, len(m.records))
	for _, rec := range m.records {
		if q.matches(rec) {
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	for _, rec := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := *rec
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

// Count implements the Trail interface.
func (m *MemoryTrail) Count(_ context.Context, q Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.records {
		if q.matches(rec) {
			n++
		}
	}
	return n, nil
}

// Close implements the Trail interface.
func (m *MemoryTrail) Close() error {
	return nil
}
