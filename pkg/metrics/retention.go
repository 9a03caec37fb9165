package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"veridion-hq/sentinel/pkg/outcome"
)

// RetentionConfig controls pruning of the outcome history store.
type RetentionConfig struct {
	// Schedule is a standard cron expression, e.g. "0 3 * * *" for daily
	// at 3 AM. Empty disables scheduled pruning.
	Schedule string `yaml:"schedule"`

	// RetainFor is how long outcome records are kept.
	// Default: 30 days
	RetainFor time.Duration `yaml:"retain_for"`
}

// RetentionScheduler prunes the outcome history on a cron schedule.
// Windows are rebuildable from history, so pruning past the horizon only
// trims the simulator's reachable backtest range.
type RetentionScheduler struct {
	config  RetentionConfig
	history outcome.Store
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewRetentionScheduler creates a retention scheduler for the given store.
func NewRetentionScheduler(config RetentionConfig, history outcome.Store) *RetentionScheduler {
	if config.RetainFor <= 0 {
		config.RetainFor = 30 * 24 * time.Hour
	}
	return &RetentionScheduler{
		config:  config,
		history: history,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "metrics.retention"),
	}
}

// Start begins scheduled pruning. A missing schedule is not an error; the
// scheduler simply stays idle.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("retention schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.runPruning(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule retention pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.config.Schedule,
		"retain_for", s.config.RetainFor,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *RetentionScheduler) runPruning(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.RetainFor)
	deleted, err := s.history.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled outcome pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("outcome history pruned", "deleted_count", deleted, "cutoff", cutoff)
	} else {
		s.logger.Debug("outcome history pruning found nothing to delete")
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning returns true while the scheduler is active.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
