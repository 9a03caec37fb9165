package outcome

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryStore creates an empty in-memory outcome store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists one record.
func (m *MemoryStore) Append(ctx context.Context, rec *Record) error {
	cp := *rec
	if rec.Attributes != nil {
		cp.Attributes = make(map[string]string, len(rec.Attributes))
		for k, v := range rec.Attributes {
			cp.Attributes[k] = v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &cp)
	return nil
}

func (q Query) matches(rec *Record) bool {
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

// Scan streams matching records in timestamp order.
func (m *MemoryStore) Scan(ctx context.Context, q Query, fn func(*Record) error) error {
	m.mu.RLock()
	matched := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		if q.matches(rec) {
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	for _, rec := range matched {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cp := *rec
		if err := fn(&cp); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Count returns the number of matching records.
func (m *MemoryStore) Count(ctx context.Context, q Query) (int64, error) {
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

// Prune deletes records older than cutoff.
func (m *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var deleted int64
	for _, rec := range m.records {
		if rec.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return deleted, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
