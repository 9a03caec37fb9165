package canary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"veridion-hq/sentinel/pkg/alert"
	"veridion-hq/sentinel/pkg/audit"
	"veridion-hq/sentinel/pkg/metrics"
	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/store"
)

// Metrics is the windowed counter view the controller reads.
type Metrics interface {
	TierCounts(policyID string, tierPercent int, window time.Duration) metrics.Counts
}

// Invalidator pokes the evaluation snapshot after a committed transition.
type Invalidator interface {
	Invalidate()
}

// Config contains configuration for the canary controller.
type Config struct {
	// Interval is the tick cadence. The engine schedules ticks; the value
	// here is informational and used for defaults in standalone runs.
	// Default: 5 minutes
	Interval time.Duration `yaml:"interval"`

	// CASRetries bounds compare-and-swap retries per policy per tick.
	// Default: store.DefaultCASRetries
	CASRetries int `yaml:"cas_retries"`
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CASRetries <= 0 {
		cfg.CASRetries = store.DefaultCASRetries
	}
	return cfg
}

// Controller promotes and rolls back canary tiers.
type Controller struct {
	cfgMu   sync.RWMutex
	cfg     Config
	store   store.Store
	metrics Metrics
	trail   audit.Trail
	alerter alert.Alerter
	inval   Invalidator
	logger  *slog.Logger

	// tickMu enforces skip-if-running: a tick that overruns its period is
	// never double-scheduled.
	tickMu sync.Mutex
}

// NewController creates a canary controller. trail, alerter, and inval may
// be nil in tests.
func NewController(cfg Config, s store.Store, m Metrics, trail audit.Trail, alerter alert.Alerter, inval Invalidator) *Controller {
	return &Controller{
		cfg:     cfg.withDefaults(),
		store:   s,
		metrics: m,
		trail:   trail,
		alerter: alerter,
		inval:   inval,
		logger:  slog.Default().With("component", "canary"),
	}
}

// Interval returns the configured tick cadence.
func (c *Controller) Interval() time.Duration {
	return c.config().Interval
}

// UpdateConfig swaps the controller settings. Threshold and retry changes
// take effect on the next tick; the tick cadence is read by the scheduler
// at startup and changes there need a restart.
func (c *Controller) UpdateConfig(cfg Config) {
	next := cfg.withDefaults()
	c.cfgMu.Lock()
	c.cfg = next
	c.cfgMu.Unlock()
	c.logger.Info("settings updated", "interval", next.Interval, "cas_retries", next.CASRetries)
}

func (c *Controller) config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Tick runs one pass over all CANARY policies. A tick already in progress
// makes the new one return immediately.
func (c *Controller) Tick(ctx context.Context) {
	if !c.tickMu.TryLock() {
		c.logger.Warn("canary tick still running, skipping")
		return
	}
	defer c.tickMu.Unlock()

	policies, err := c.store.List(ctx)
	if err != nil {
		// Transient store failure: retry next tick, never transition.
		c.logger.Error("policy list failed, retrying next tick", "error", err)
		return
	}

	for _, p := range policies {
		if p.Stage != policy.StageCanary {
			continue
		}
		if err := c.evaluatePolicy(ctx, p.ID); err != nil {
			c.logger.Error("canary evaluation failed",
				"policy_id", p.ID,
				"error", err,
			)
		}
	}
}

// decision is the outcome of one policy's ladder check.
type decision struct {
	promote bool
	reason  string
}

// evaluatePolicy applies the decision table to one policy, committing at
// most one ladder step via compare-and-swap.
func (c *Controller) evaluatePolicy(ctx context.Context, id string) error {
	var (
		rec *policy.TransitionRecord
		dec decision
	)

	updated, err := store.Apply(ctx, c.store, id, c.config().CASRetries, func(p *policy.Policy) error {
		// Decide on the fresh record each attempt so a concurrent circuit
		// open or manual override is never stepped on.
		if p.Stage != policy.StageCanary {
			return store.ErrNoTransition
		}
		if p.CircuitState != policy.CircuitClosed {
			// An open, half-open, or manually pinned breaker means the
			// window does not reflect normal enforcement.
			return store.ErrNoTransition
		}
		if err := p.Thresholds.Validate(); err != nil {
			return err
		}

		counts := c.metrics.TierCounts(p.ID, p.TierPercent(), p.Thresholds.EvaluationWindow)
		if counts.Total < p.Thresholds.MinSampleSize {
			c.logger.Debug("holding tier",
				"policy_id", p.ID,
				"total", counts.Total,
				"min_sample_size", p.Thresholds.MinSampleSize,
			)
			return policy.ErrInsufficientData
		}

		successRate := counts.SuccessRate()
		from := policy.StageState(p.Stage, p.TierPercent())

		switch {
		case successRate >= p.Thresholds.PromoteSuccessRate:
			dec = decision{
				promote: true,
				reason:  fmt.Sprintf("promote: success_rate %.2f >= %.2f", successRate, p.Thresholds.PromoteSuccessRate),
			}
			if p.AtLastTier() {
				p.Stage = policy.StageEnforcing
			} else {
				p.TierIndex++
			}
		case successRate < p.Thresholds.RollbackSuccessRate:
			dec = decision{
				promote: false,
				reason:  fmt.Sprintf("rollback: success_rate %.2f < %.2f", successRate, p.Thresholds.RollbackSuccessRate),
			}
			if p.AtFirstTier() {
				p.Stage = policy.StageShadow
				p.TierIndex = 0
			} else {
				p.TierIndex--
			}
		default:
			return store.ErrNoTransition
		}

		rec = &policy.TransitionRecord{
			ID:          uuid.NewString(),
			PolicyID:    p.ID,
			FromState:   from,
			ToState:     policy.StageState(p.Stage, p.TierPercent()),
			Reason:      dec.reason,
			TriggeredBy: policy.TriggerCanary,
			Timestamp:   time.Now().UTC(),
		}
		return nil
	})
	// Both hold outcomes leave the policy where it is until the next tick.
	if errors.Is(err, store.ErrNoTransition) || errors.Is(err, policy.ErrInsufficientData) {
		return nil
	}
	if err != nil {
		var cerr *policy.ConfigurationError
		if errors.As(err, &cerr) {
			// Malformed thresholds: stay put, alert, attempt nothing.
			c.alertConfigError(ctx, id, cerr)
			return nil
		}
		return err
	}

	rec.PolicyVersion = updated.Version
	c.commit(ctx, updated, rec, dec)
	return nil
}

// commit records the transition and notifies downstream consumers. The
// state change itself is already durable; trail or alert failures are
// logged, not rolled back.
func (c *Controller) commit(ctx context.Context, p *policy.Policy, rec *policy.TransitionRecord, dec decision) {
	c.logger.Info("canary transition",
		"policy_id", p.ID,
		"from", rec.FromState,
		"to", rec.ToState,
		"reason", rec.Reason,
	)

	if c.trail != nil {
		if err := c.trail.Append(ctx, rec); err != nil {
			c.logger.Error("transition record write failed", "policy_id", p.ID, "error", err)
		}
	}
	if c.inval != nil {
		c.inval.Invalidate()
	}
	if c.alerter != nil {
		severity := alert.SeverityInfo
		if !dec.promote {
			severity = alert.SeverityWarning
		}
		c.alerter.Alert(ctx, alert.Event{
			PolicyID:   p.ID,
			PolicyName: p.Name,
			Severity:   severity,
			Message:    rec.Reason,
			Transition: rec,
			Timestamp:  rec.Timestamp,
		})
	}
}

func (c *Controller) alertConfigError(ctx context.Context, id string, cerr *policy.ConfigurationError) {
	c.logger.Error("configuration error, holding stage", "policy_id", id, "error", cerr)
	if c.alerter != nil {
		c.alerter.Alert(ctx, alert.Event{
			PolicyID:  id,
			Severity:  alert.SeverityWarning,
			Message:   cerr.Error(),
			Timestamp: time.Now().UTC(),
		})
	}
}
