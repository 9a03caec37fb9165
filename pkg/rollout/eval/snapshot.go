package eval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/store"
)

// SnapshotConfig configures the policy snapshot cache.
type SnapshotConfig struct {
	// RefreshInterval is how often the snapshot is rebuilt from the store.
	// Default: 5 seconds
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// StaleAfter is the age past which the snapshot is no longer trusted
	// and lookups fail safe. It must comfortably exceed RefreshInterval so
	// a single slow refresh does not trip it.
	// Default: 1 minute
	StaleAfter time.Duration `yaml:"stale_after"`
}

func (c *SnapshotConfig) withDefaults() SnapshotConfig {
	cfg := *c
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Minute
	}
	return cfg
}

// Snapshot is a copy-on-write in-memory view of the policy set. Readers get
// the current map under an RLock; refreshes build a fresh map off to the
// side and swap it in, so a slow store read never stalls evaluations.
type Snapshot struct {
	cfg    SnapshotConfig
	store  store.Store
	logger *slog.Logger

	mu       sync.RWMutex
	policies map[string]*policy.Policy
	loadedAt time.Time

	poke chan struct{}

	stopOnce sync.Once
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewSnapshot creates a snapshot cache over the given store. Call Refresh
// once for an initial load, then Start for background refreshing.
func NewSnapshot(cfg SnapshotConfig, s store.Store) *Snapshot {
	return &Snapshot{
		cfg:      cfg.withDefaults(),
		store:    s,
		logger:   slog.Default().With("component", "eval.snapshot"),
		policies: make(map[string]*policy.Policy),
		poke:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

// Refresh rebuilds the snapshot from the store.
func (s *Snapshot) Refresh(ctx context.Context) error {
	list, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*policy.Policy, len(list))
	for _, p := range list {
		next[p.ID] = p
	}

	s.mu.Lock()
	s.policies = next
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Invalidate requests an immediate out-of-band refresh. Controllers call it
// after committing a transition so evaluators pick the change up without
// waiting out the refresh interval. Non-blocking; a refresh already pending
// absorbs the request.
func (s *Snapshot) Invalidate() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// Get returns the cached policy and whether the snapshot is still within
// its staleness bound. A missing id returns (nil, fresh).
func (s *Snapshot) Get(id string) (*policy.Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fresh := !s.loadedAt.IsZero() && time.Since(s.loadedAt) < s.cfg.StaleAfter
	return s.policies[id], fresh
}

// Age returns how old the current snapshot is.
func (s *Snapshot) Age() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.loadedAt.IsZero() {
		return s.cfg.StaleAfter
	}
	return time.Since(s.loadedAt)
}

// Start begins the background refresh loop.
func (s *Snapshot) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the refresh loop.
func (s *Snapshot) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}

func (s *Snapshot) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		case <-s.poke:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshInterval)
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("snapshot refresh failed", "error", err, "age", s.Age())
		}
		cancel()
	}
}
