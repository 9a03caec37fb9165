package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veridion-hq/sentinel/pkg/alert"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
)

// Decision is the result of one policy evaluation.
type Decision struct {
	// WouldBlock is what the rule said.
	WouldBlock bool

	// EnforcedBlock is what actually happens, after stage, tier cohort,
	// and circuit state were applied.
	EnforcedBlock bool

	// Stage is the rollout stage in effect at evaluation time.
	Stage policy.Stage

	// TierPercent is the enforcement percentage in effect.
	TierPercent int

	// PolicyVersion identifies the exact rule evaluated; zero on fail-safe.
	PolicyVersion int64

	// FailSafe marks a conservative fallback decision taken because the
	// policy was unreadable or the snapshot was stale.
	FailSafe bool
}

// Emitter receives outcome records without blocking. Reports false when the
// record was dropped.
type Emitter interface {
	Emit(rec *outcome.Record) bool
}

// EvaluatorConfig configures the evaluator.
type EvaluatorConfig struct {
	// HalfOpenTrialPercent is the cohort percentage that keeps enforcing
	// while a policy's circuit is HALF_OPEN. Drawn by the same hash as the
	// canary cohort, independent of the canary tier.
	// Default: 5
	HalfOpenTrialPercent int `yaml:"half_open_trial_percent"`
}

func (c *EvaluatorConfig) withDefaults() EvaluatorConfig {
	cfg := *c
	if cfg.HalfOpenTrialPercent <= 0 {
		cfg.HalfOpenTrialPercent = 5
	}
	return cfg
}

// Evaluator decides, per request, whether an action is blocked under the
// identified policy.
type Evaluator struct {
	cfg      EvaluatorConfig
	snapshot *Snapshot
	emitter  Emitter
	alerter  alert.Alerter
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator. emitter and alerter may be nil in
// tests; production wiring passes the metrics aggregator and the alert
// dispatcher.
func NewEvaluator(cfg EvaluatorConfig, snapshot *Snapshot, emitter Emitter, alerter alert.Alerter) *Evaluator {
	return &Evaluator{
		cfg:      cfg.withDefaults(),
		snapshot: snapshot,
		emitter:  emitter,
		alerter:  alerter,
		logger:   slog.Default().With("component", "eval"),
	}
}

// Evaluate returns the decision for one request. It never returns an error:
// an unreadable policy or stale snapshot produces the conservative
// fail-safe decision (record a block, enforce nothing) and raises an alert.
// A metrics emission problem never affects the decision already made.
func (e *Evaluator) Evaluate(ctx context.Context, policyID, agentID string, attrs map[string]string) Decision {
	start := time.Now()

	p, fresh := e.snapshot.Get(policyID)
	if p == nil || !fresh {
		return e.failSafe(ctx, policyID, agentID, attrs, start, p == nil)
	}

	wouldBlock := p.Rule.Match(attrs)
	tierPercent := p.TierPercent()

	var enforced bool
	switch {
	case p.CircuitState == policy.CircuitOpen:
		// Breaker precedence: bypass regardless of stage and rule result.
		enforced = false
	case p.Stage == policy.StageShadow:
		enforced = false
	case p.Stage == policy.StageCanary:
		enforced = wouldBlock && InCohort(agentID, policyID, tierPercent)
	case p.Stage == policy.StageEnforcing:
		enforced = wouldBlock
	default:
		enforced = false
	}

	// A HALF_OPEN breaker narrows enforcement to the trial cohort so the
	// recovery check observes real enforcement on a small slice of traffic.
	if enforced && p.CircuitState == policy.CircuitHalfOpen {
		enforced = InCohort(agentID, policyID, e.cfg.HalfOpenTrialPercent)
	}

	e.emit(&outcome.Record{
		ID:            uuid.NewString(),
		PolicyID:      policyID,
		PolicyVersion: p.Version,
		AgentID:       agentID,
		Timestamp:     start,
		WouldBlock:    wouldBlock,
		EnforcedBlock: enforced,
		TierPercent:   tierPercent,
		Latency:       time.Since(start),
		Attributes:    attrs,
	})

	return Decision{
		WouldBlock:    wouldBlock,
		EnforcedBlock: enforced,
		Stage:         p.Stage,
		TierPercent:   tierPercent,
		PolicyVersion: p.Version,
	}
}

// failSafe is the conservative fallback: treat the request as would-block
// without enforcing, so an unverifiable state neither silently allows nor
// silently enforces.
func (e *Evaluator) failSafe(ctx context.Context, policyID, agentID string, attrs map[string]string, start time.Time, missing bool) Decision {
	cause := "policy snapshot stale"
	if missing {
		cause = "policy not in snapshot"
	}

	e.logger.Warn("fail-safe evaluation",
		"policy_id", policyID,
		"cause", cause,
		"snapshot_age", e.snapshot.Age(),
	)
	if e.alerter != nil {
		e.alerter.Alert(ctx, alert.Event{
			PolicyID:  policyID,
			Severity:  alert.SeverityCritical,
			Message:   fmt.Sprintf("fail-safe evaluation: %s", cause),
			Timestamp: start,
		})
	}

	e.emit(&outcome.Record{
		ID:            uuid.NewString(),
		PolicyID:      policyID,
		AgentID:       agentID,
		Timestamp:     start,
		WouldBlock:    true,
		EnforcedBlock: false,
		Failed:        true,
		Error:         cause,
		Latency:       time.Since(start),
		Attributes:    attrs,
	})

	return Decision{
		WouldBlock:    true,
		EnforcedBlock: false,
		FailSafe:      true,
	}
}

func (e *Evaluator) emit(rec *outcome.Record) {
	if e.emitter != nil {
		e.emitter.Emit(rec)
	}
}
