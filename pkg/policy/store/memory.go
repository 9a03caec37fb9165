package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"veridion-hq/sentinel/pkg/policy"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
// It is safe for concurrent use and hands out deep copies so callers can
// never mutate shared state outside the CAS path.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*policy.Policy
	versions map[string][]*policy.PolicyVersion
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]*policy.Policy),
		versions: make(map[string][]*policy.PolicyVersion),
	}
}

// Create inserts a new policy at version 1.
func (m *MemoryStore) Create(ctx context.Context, p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.policies[p.ID]; exists {
		return policy.NewStoreError("memory", "create", fmt.Errorf("policy %s already exists", p.ID))
	}

	now := time.Now().UTC()
	stored := p.Clone()
	stored.Version = 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.policies[p.ID] = stored
	m.versions[p.ID] = []*policy.PolicyVersion{stored.Snapshot()}

	p.Version = stored.Version
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

// Get returns a copy of the policy.
func (m *MemoryStore) Get(ctx context.Context, id string) (*policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, policy.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns copies of all policies.
func (m *MemoryStore) List(ctx context.Context) ([]*policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*policy.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p.Clone())
	}
	return out, nil
}

// CompareAndSwap writes p conditioned on the stored version.
func (m *MemoryStore) CompareAndSwap(ctx context.Context, p *policy.Policy, expectedVersion int64) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.policies[p.ID]
	if !ok {
		return policy.ErrNotFound
	}
	if current.Version != expectedVersion {
		return policy.ErrVersionConflict
	}

	stored := p.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	m.policies[p.ID] = stored
	m.versions[p.ID] = append(m.versions[p.ID], stored.Snapshot())

	p.Version = stored.Version
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

// Versions returns the snapshot history, oldest first.
func (m *MemoryStore) Versions(ctx context.Context, id string) ([]*policy.PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, ok := m.versions[id]
	if !ok {
		return nil, policy.ErrNotFound
	}
	out := make([]*policy.PolicyVersion, len(history))
	copy(out, history)
	return out, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
