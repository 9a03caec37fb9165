package circuit

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

// OnClose selects where a recovering policy resumes.
type OnClose string

const (
	// OnCloseResume returns to the stage and tier held before the open.
	OnCloseResume OnClose = "resume"

	// OnCloseSafeTier drops a CANARY policy to the configured safe tier
	// before resuming, trading rollout progress for caution.
	OnCloseSafeTier OnClose = "safe_tier"
)

// Metrics is the windowed counter view the controller reads.
type Metrics interface {
	PolicyCounts(policyID string, window time.Duration) metrics.Counts
}

// Invalidator pokes the evaluation snapshot after a committed transition.
type Invalidator interface {
	Invalidate()
}

// Config contains configuration for the circuit breaker controller.
type Config struct {
	// RecoveryInterval is the cooldown-handling tick cadence.
	// Default: 1 minute
	RecoveryInterval time.Duration `yaml:"recovery_interval"`

	// MinSamples is the minimum windowed total before an error rate is
	// trusted, for both the trip check and the HALF_OPEN trial.
	// Default: 20
	MinSamples int64 `yaml:"min_samples"`

	// MaxCooldown caps the exponential backoff.
	// Default: 4 hours
	MaxCooldown time.Duration `yaml:"max_cooldown"`

	// OnClose selects the recovery target: resume at the prior tier or
	// drop to SafeTierIndex first.
	// Default: resume
	OnClose OnClose `yaml:"on_close"`

	// SafeTierIndex is the ladder index used when OnClose is safe_tier.
	// Default: 0
	SafeTierIndex int `yaml:"safe_tier_index"`

	// CheckInterval throttles the fast path: one policy is breach-checked
	// at most once per interval however fast outcomes arrive.
	// Default: 1 second
	CheckInterval time.Duration `yaml:"check_interval"`

	// CASRetries bounds compare-and-swap retries per transition.
	// Default: store.DefaultCASRetries
	CASRetries int `yaml:"cas_retries"`
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = time.Minute
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 20
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 4 * time.Hour
	}
	if cfg.OnClose == "" {
		cfg.OnClose = OnCloseResume
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.CASRetries <= 0 {
		cfg.CASRetries = store.DefaultCASRetries
	}
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.OnClose {
	case "", OnCloseResume, OnCloseSafeTier:
	default:
		return &policy.ConfigurationError{Field: "on_close", Message: fmt.Sprintf("unknown mode %q", c.OnClose)}
	}
	if c.SafeTierIndex < 0 {
		return &policy.ConfigurationError{Field: "safe_tier_index", Message: "must be >= 0"}
	}
	return nil
}

// Controller trips and recovers circuit breakers.
type Controller struct {
	cfgMu   sync.RWMutex
	cfg     Config
	store   store.Store
	metrics Metrics
	trail   audit.Trail
	alerter alert.Alerter
	inval   Invalidator
	logger  *slog.Logger

	// tickMu enforces skip-if-running for the recovery tick.
	tickMu sync.Mutex

	// lastCheck throttles the fast path per policy.
	checkMu   sync.Mutex
	lastCheck map[string]time.Time

	checks chan string

	stopOnce sync.Once
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewController creates a circuit breaker controller. trail, alerter, and
// inval may be nil in tests.
func NewController(cfg Config, s store.Store, m Metrics, trail audit.Trail, alerter alert.Alerter, inval Invalidator) *Controller {
	return &Controller{
		cfg:       cfg.withDefaults(),
		store:     s,
		metrics:   m,
		trail:     trail,
		alerter:   alerter,
		inval:     inval,
		logger:    slog.Default().With("component", "circuit"),
		lastCheck: make(map[string]time.Time),
		checks:    make(chan string, 256),
		quit:      make(chan struct{}),
	}
}

// Interval returns the configured recovery tick cadence.
func (c *Controller) Interval() time.Duration {
	return c.config().RecoveryInterval
}

// UpdateConfig validates and swaps the controller settings. Thresholds,
// backoff caps, and recovery targets take effect on the next tick or
// fast-path check; the recovery cadence is read by the scheduler at
// startup and changes there need a restart.
func (c *Controller) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	next := cfg.withDefaults()
	c.cfgMu.Lock()
	c.cfg = next
	c.cfgMu.Unlock()
	c.logger.Info("settings updated",
		"min_samples", next.MinSamples,
		"max_cooldown", next.MaxCooldown,
		"on_close", next.OnClose,
	)
	return nil
}

func (c *Controller) config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Start begins the fast-path worker. The recovery tick is scheduled
// externally via Tick.
func (c *Controller) Start() {
	c.wg.Add(1)
	go c.runFastPath()
}

// Stop stops the fast-path worker.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	c.wg.Wait()
}

// Observe is the metrics ingest listener. It enqueues a throttled breach
// check and returns immediately; it never blocks the aggregator goroutine.
func (c *Controller) Observe(policyID string) {
	now := time.Now()
	c.checkMu.Lock()
	if now.Sub(c.lastCheck[policyID]) < c.config().CheckInterval {
		c.checkMu.Unlock()
		return
	}
	c.lastCheck[policyID] = now
	c.checkMu.Unlock()

	select {
	case c.checks <- policyID:
	default:
	}
}

func (c *Controller) runFastPath() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quit:
			return
		case id := <-c.checks:
			ctx, cancel := context.WithTimeout(context.Background(), c.config().CheckInterval*10)
			if err := c.checkClosed(ctx, id); err != nil {
				c.logger.Error("fast-path breach check failed", "policy_id", id, "error", err)
			}
			cancel()
		}
	}
}

// Tick runs one recovery pass: breach checks for CLOSED policies as a
// backstop, cooldown expiry for OPEN, trial verdicts for HALF_OPEN.
func (c *Controller) Tick(ctx context.Context) {
	if !c.tickMu.TryLock() {
		c.logger.Warn("circuit tick still running, skipping")
		return
	}
	defer c.tickMu.Unlock()

	policies, err := c.store.List(ctx)
	if err != nil {
		c.logger.Error("policy list failed, retrying next tick", "error", err)
		return
	}

	for _, p := range policies {
		var err error
		switch p.CircuitState {
		case policy.CircuitClosed:
			err = c.checkClosed(ctx, p.ID)
		case policy.CircuitOpen:
			err = c.checkOpen(ctx, p.ID)
		case policy.CircuitHalfOpen:
			err = c.checkHalfOpen(ctx, p.ID)
		case policy.CircuitManual:
			// Operator override: never touched.
		}
		if err != nil {
			c.logger.Error("circuit check failed",
				"policy_id", p.ID,
				"state", p.CircuitState,
				"error", err,
			)
		}
	}
}

// checkClosed trips the breaker when the live error rate breaches the
// policy threshold.
func (c *Controller) checkClosed(ctx context.Context, id string) error {
	var rec *policy.TransitionRecord

	updated, err := c.apply(ctx, id, func(p *policy.Policy) error {
		if p.CircuitState != policy.CircuitClosed {
			return store.ErrNoTransition
		}
		if p.Stage == policy.StageDisabled {
			return store.ErrNoTransition
		}

		counts := c.metrics.PolicyCounts(p.ID, p.Thresholds.CircuitWindow)
		if counts.Total < c.config().MinSamples {
			return policy.ErrInsufficientData
		}
		errorRate := counts.ErrorRate()
		if errorRate <= p.Thresholds.CircuitErrorRate {
			return store.ErrNoTransition
		}

		c.open(p)
		rec = c.transitionRecord(p, string(policy.CircuitClosed), string(policy.CircuitOpen),
			fmt.Sprintf("circuit open: error_rate %.2f > %.2f", errorRate, p.Thresholds.CircuitErrorRate))
		return nil
	})
	if err != nil {
		return err
	}
	if rec != nil {
		rec.PolicyVersion = updated.Version
		c.commit(ctx, updated, rec, alert.SeverityCritical)
	}
	return nil
}

// checkOpen moves an OPEN breaker to HALF_OPEN once its cooldown elapsed.
func (c *Controller) checkOpen(ctx context.Context, id string) error {
	var rec *policy.TransitionRecord

	updated, err := c.apply(ctx, id, func(p *policy.Policy) error {
		if p.CircuitState != policy.CircuitOpen {
			return store.ErrNoTransition
		}
		if time.Now().Before(p.CooldownUntil) {
			return store.ErrNoTransition
		}

		p.CircuitState = policy.CircuitHalfOpen
		rec = c.transitionRecord(p, string(policy.CircuitOpen), string(policy.CircuitHalfOpen),
			"circuit half-open: cooldown elapsed")
		return nil
	})
	if err != nil {
		return err
	}
	if rec != nil {
		rec.PolicyVersion = updated.Version
		c.commit(ctx, updated, rec, alert.SeverityInfo)
	}
	return nil
}

// checkHalfOpen decides the trial verdict: close on a healthy window,
// re-open with a longer cooldown on a breach, hold on too little data.
func (c *Controller) checkHalfOpen(ctx context.Context, id string) error {
	var (
		rec      *policy.TransitionRecord
		severity alert.Severity
	)

	updated, err := c.apply(ctx, id, func(p *policy.Policy) error {
		if p.CircuitState != policy.CircuitHalfOpen {
			return store.ErrNoTransition
		}

		counts := c.metrics.PolicyCounts(p.ID, p.Thresholds.CircuitWindow)
		if counts.Total < c.config().MinSamples {
			// Trial has not seen enough traffic yet.
			return policy.ErrInsufficientData
		}

		errorRate := counts.ErrorRate()
		if errorRate > p.Thresholds.CircuitErrorRate {
			c.open(p)
			rec = c.transitionRecord(p, string(policy.CircuitHalfOpen), string(policy.CircuitOpen),
				fmt.Sprintf("circuit re-open: error_rate %.2f > %.2f", errorRate, p.Thresholds.CircuitErrorRate))
			severity = alert.SeverityCritical
			return nil
		}

		p.CircuitState = policy.CircuitClosed
		p.CircuitOpenedAt = time.Time{}
		p.CooldownUntil = time.Time{}
		p.OpenCount = 0
		if cfg := c.config(); cfg.OnClose == OnCloseSafeTier && p.Stage == policy.StageCanary && p.TierIndex > cfg.SafeTierIndex {
			p.TierIndex = cfg.SafeTierIndex
		}
		rec = c.transitionRecord(p, string(policy.CircuitHalfOpen), string(policy.CircuitClosed),
			fmt.Sprintf("circuit closed: error_rate %.2f <= %.2f", errorRate, p.Thresholds.CircuitErrorRate))
		severity = alert.SeverityInfo
		return nil
	})
	if err != nil {
		return err
	}
	if rec != nil {
		rec.PolicyVersion = updated.Version
		c.commit(ctx, updated, rec, severity)
	}
	return nil
}

// open flips the record to OPEN with exponential cooldown backoff.
func (c *Controller) open(p *policy.Policy) {
	now := time.Now().UTC()
	p.CircuitState = policy.CircuitOpen
	p.CircuitOpenedAt = now
	p.OpenCount++
	p.CooldownUntil = now.Add(c.backoff(p.Thresholds.CircuitCooldown, p.OpenCount))
}

// backoff doubles the base cooldown per consecutive open, capped.
func (c *Controller) backoff(base time.Duration, openCount int) time.Duration {
	maxCooldown := c.config().MaxCooldown
	d := base
	for i := 1; i < openCount; i++ {
		d *= 2
		if d >= maxCooldown {
			return maxCooldown
		}
	}
	if d > maxCooldown {
		return maxCooldown
	}
	return d
}

// apply wraps store.Apply and swallows both hold outcomes: nothing to do,
// and not enough samples to decide.
func (c *Controller) apply(ctx context.Context, id string, mutate func(*policy.Policy) error) (*policy.Policy, error) {
	updated, err := store.Apply(ctx, c.store, id, c.config().CASRetries, mutate)
	if errors.Is(err, store.ErrNoTransition) || errors.Is(err, policy.ErrInsufficientData) {
		return nil, nil
	}
	return updated, err
}

func (c *Controller) transitionRecord(p *policy.Policy, from, to, reason string) *policy.TransitionRecord {
	return &policy.TransitionRecord{
		ID:          uuid.NewString(),
		PolicyID:    p.ID,
		FromState:   from,
		ToState:     to,
		Reason:      reason,
		TriggeredBy: policy.TriggerCircuit,
		Timestamp:   time.Now().UTC(),
	}
}

func (c *Controller) commit(ctx context.Context, p *policy.Policy, rec *policy.TransitionRecord, severity alert.Severity) {
	c.logger.Info("circuit transition",
		"policy_id", p.ID,
		"from", rec.FromState,
		"to", rec.ToState,
		"reason", rec.Reason,
		"open_count", p.OpenCount,
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
