package policy

import (
	"fmt"
	"time"

	"veridion-hq/sentinel/pkg/policy/rule"
)

// Stage represents a policy's position in the rollout lifecycle.
type Stage string

const (
	// StageShadow evaluates the rule and records outcomes without ever
	// changing the decision returned to the caller.
	StageShadow Stage = "SHADOW"

	// StageCanary enforces the rule for the deterministic traffic cohort
	// selected by the current tier percentage.
	StageCanary Stage = "CANARY"

	// StageEnforcing enforces the rule for all traffic.
	StageEnforcing Stage = "ENFORCING"

	// StageDisabled evaluates nothing and enforces nothing.
	StageDisabled Stage = "DISABLED"
)

// Valid returns true for a known lifecycle stage.
func (s Stage) Valid() bool {
	switch s {
	case StageShadow, StageCanary, StageEnforcing, StageDisabled:
		return true
	}
	return false
}

// CircuitState represents the circuit breaker state of a policy.
// The circuit is independent of the rollout stage: an OPEN circuit bypasses
// enforcement entirely regardless of stage and tier.
type CircuitState string

const (
	// CircuitClosed is normal operation.
	CircuitClosed CircuitState = "CLOSED"

	// CircuitOpen bypasses enforcement until the cooldown elapses.
	CircuitOpen CircuitState = "OPEN"

	// CircuitHalfOpen resumes enforcement for a small trial cohort.
	CircuitHalfOpen CircuitState = "HALF_OPEN"

	// CircuitManual is an operator override. Controllers must never
	// overwrite it automatically.
	CircuitManual CircuitState = "MANUAL"
)

// Valid returns true for a known circuit state.
func (c CircuitState) Valid() bool {
	switch c {
	case CircuitClosed, CircuitOpen, CircuitHalfOpen, CircuitManual:
		return true
	}
	return false
}

// DefaultTierLadder is the canary rollout ladder, in percent of the
// deterministic traffic cohort subject to enforcement.
var DefaultTierLadder = []int{1, 5, 10, 25, 50, 100}

// Thresholds holds the control-loop parameters for a policy.
type Thresholds struct {
	// PromoteSuccessRate is the minimum windowed success rate for a tier
	// promotion. Ties promote (>=).
	PromoteSuccessRate float64 `yaml:"promote_success_rate" json:"promote_success_rate"`

	// RollbackSuccessRate is the rate below which the canary rolls back a
	// tier. Ties hold (strict <), giving a borderline-healthy policy one
	// more observation window before retreating.
	RollbackSuccessRate float64 `yaml:"rollback_success_rate" json:"rollback_success_rate"`

	// MinSampleSize is the minimum windowed total before the canary
	// controller makes any decision.
	MinSampleSize int64 `yaml:"min_sample_size" json:"min_sample_size"`

	// EvaluationWindow is how far back the canary controller looks.
	EvaluationWindow time.Duration `yaml:"evaluation_window" json:"evaluation_window"`

	// CircuitErrorRate is the windowed error rate that trips the breaker.
	CircuitErrorRate float64 `yaml:"circuit_error_rate" json:"circuit_error_rate"`

	// CircuitWindow is the real-time window for breaker error-rate checks.
	CircuitWindow time.Duration `yaml:"circuit_window" json:"circuit_window"`

	// CircuitCooldown is the base OPEN duration before a HALF_OPEN trial.
	// Re-opens double it, capped by the controller configuration.
	CircuitCooldown time.Duration `yaml:"circuit_cooldown" json:"circuit_cooldown"`
}

// Validate checks threshold sanity. A policy with invalid thresholds stays
// in its current stage; no automatic transition is attempted for it.
func (t Thresholds) Validate() error {
	if t.PromoteSuccessRate < 0 || t.PromoteSuccessRate > 1 {
		return &ConfigurationError{Field: "promote_success_rate", Message: fmt.Sprintf("must be in [0,1], got %v", t.PromoteSuccessRate)}
	}
	if t.RollbackSuccessRate < 0 || t.RollbackSuccessRate > 1 {
		return &ConfigurationError{Field: "rollback_success_rate", Message: fmt.Sprintf("must be in [0,1], got %v", t.RollbackSuccessRate)}
	}
	if t.RollbackSuccessRate > t.PromoteSuccessRate {
		return &ConfigurationError{Field: "rollback_success_rate", Message: fmt.Sprintf("rollback threshold %v exceeds promote threshold %v", t.RollbackSuccessRate, t.PromoteSuccessRate)}
	}
	if t.MinSampleSize < 0 {
		return &ConfigurationError{Field: "min_sample_size", Message: fmt.Sprintf("must be >= 0, got %d", t.MinSampleSize)}
	}
	if t.EvaluationWindow <= 0 {
		return &ConfigurationError{Field: "evaluation_window", Message: "must be positive"}
	}
	if t.CircuitErrorRate <= 0 || t.CircuitErrorRate > 1 {
		return &ConfigurationError{Field: "circuit_error_rate", Message: fmt.Sprintf("must be in (0,1], got %v", t.CircuitErrorRate)}
	}
	if t.CircuitWindow <= 0 {
		return &ConfigurationError{Field: "circuit_window", Message: "must be positive"}
	}
	if t.CircuitCooldown <= 0 {
		return &ConfigurationError{Field: "circuit_cooldown", Message: "must be positive"}
	}
	return nil
}

// Policy is the mutable rollout record for one compliance rule.
//
// Invariants:
//   - Stage == ENFORCING implies TierIndex is the ladder's last element.
//   - CircuitState == OPEN forces effective enforcement to bypass,
//     regardless of Stage and TierIndex.
//   - Version is strictly monotonic; every write bumps it via
//     compare-and-swap on the previous value.
type Policy struct {
	// ID is the opaque policy identifier.
	ID string `json:"id"`

	// Name is the human-readable policy name.
	Name string `json:"name"`

	// Rule is the predicate evaluated against request attributes.
	Rule *rule.Node `json:"rule"`

	// Version is the monotonic record version used for compare-and-swap.
	Version int64 `json:"version"`

	// Stage is the rollout lifecycle stage.
	Stage Stage `json:"stage"`

	// TierIndex indexes TierLadder; only meaningful in CANARY.
	TierIndex int `json:"tier_index"`

	// TierLadder is the ordered rollout ladder in percent. Empty means
	// DefaultTierLadder.
	TierLadder []int `json:"tier_ladder,omitempty"`

	// Thresholds are the control-loop parameters.
	Thresholds Thresholds `json:"thresholds"`

	// CircuitState is the breaker state.
	CircuitState CircuitState `json:"circuit_state"`

	// CircuitOpenedAt is when the breaker last opened (zero if never).
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`

	// CooldownUntil is when an OPEN breaker becomes eligible for a
	// HALF_OPEN trial. Kept on the record so controller ticks stay
	// stateless and restart-safe.
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`

	// OpenCount counts consecutive opens without an intervening close,
	// driving the exponential cooldown backoff.
	OpenCount int `json:"open_count"`

	// CreatedAt is when the policy was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Ladder returns the effective tier ladder.
func (p *Policy) Ladder() []int {
	if len(p.TierLadder) == 0 {
		return DefaultTierLadder
	}
	return p.TierLadder
}

// TierPercent returns the enforcement percentage of the current tier.
// ENFORCING is always 100; SHADOW and DISABLED are 0.
func (p *Policy) TierPercent() int {
	switch p.Stage {
	case StageEnforcing:
		return 100
	case StageCanary:
		ladder := p.Ladder()
		if p.TierIndex < 0 || p.TierIndex >= len(ladder) {
			return 0
		}
		return ladder[p.TierIndex]
	default:
		return 0
	}
}

// AtLastTier returns true when the policy sits on the ladder's top rung.
func (p *Policy) AtLastTier() bool {
	return p.TierIndex >= len(p.Ladder())-1
}

// AtFirstTier returns true when the policy sits on the ladder's bottom rung.
func (p *Policy) AtFirstTier() bool {
	return p.TierIndex <= 0
}

// Validate checks the record's internal consistency.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return &ConfigurationError{PolicyID: p.ID, Field: "id", Message: "policy id is required"}
	}
	if !p.Stage.Valid() {
		return &ConfigurationError{PolicyID: p.ID, Field: "stage", Message: fmt.Sprintf("unknown stage %q", p.Stage)}
	}
	if !p.CircuitState.Valid() {
		return &ConfigurationError{PolicyID: p.ID, Field: "circuit_state", Message: fmt.Sprintf("unknown circuit state %q", p.CircuitState)}
	}
	ladder := p.Ladder()
	for i, pct := range ladder {
		if pct < 1 || pct > 100 {
			return &ConfigurationError{PolicyID: p.ID, Field: "tier_ladder", Message: fmt.Sprintf("tier %d percent %d out of range", i, pct)}
		}
		if i > 0 && pct <= ladder[i-1] {
			return &ConfigurationError{PolicyID: p.ID, Field: "tier_ladder", Message: "ladder must be strictly increasing"}
		}
	}
	if p.TierIndex < 0 || p.TierIndex >= len(ladder) {
		return &ConfigurationError{PolicyID: p.ID, Field: "tier_index", Message: fmt.Sprintf("tier index %d outside ladder of length %d", p.TierIndex, len(ladder))}
	}
	if p.Stage == StageEnforcing && !p.AtLastTier() {
		return &ConfigurationError{PolicyID: p.ID, Field: "stage", Message: "ENFORCING requires the last ladder tier"}
	}
	if err := p.Rule.Validate(); err != nil {
		return &ConfigurationError{PolicyID: p.ID, Field: "rule", Message: err.Error()}
	}
	if err := p.Thresholds.Validate(); err != nil {
		if cerr, ok := err.(*ConfigurationError); ok {
			cerr.PolicyID = p.ID
			return cerr
		}
		return err
	}
	return nil
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	out := *p
	out.Rule = p.Rule.Clone()
	if p.TierLadder != nil {
		out.TierLadder = append([]int(nil), p.TierLadder...)
	}
	return &out
}

// Snapshot returns the immutable PolicyVersion view of the current record.
func (p *Policy) Snapshot() *PolicyVersion {
	return &PolicyVersion{
		PolicyID:   p.ID,
		Version:    p.Version,
		Rule:       p.Rule.Clone(),
		Thresholds: p.Thresholds,
		CreatedAt:  p.UpdatedAt,
	}
}

// PolicyVersion is an immutable snapshot of a policy's rule and thresholds
// at a point in time. Old versions are retained so "rollback to version N"
// is a pure state-pointer change, and so audits can replay exactly what a
// past evaluation saw.
type PolicyVersion struct {
	PolicyID   string     `json:"policy_id"`
	Version    int64      `json:"version"`
	Rule       *rule.Node `json:"rule"`
	Thresholds Thresholds `json:"thresholds"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Trigger identifies which actor caused a state transition.
type Trigger string

const (
	// TriggerCanary marks transitions made by the canary controller.
	TriggerCanary Trigger = "CANARY_CONTROLLER"

	// TriggerCircuit marks transitions made by the circuit breaker.
	TriggerCircuit Trigger = "CIRCUIT_BREAKER"

	// TriggerManual marks operator overrides.
	TriggerManual Trigger = "MANUAL"
)

// TransitionRecord is one append-only audit entry for a stage, tier, or
// circuit change. Records are never mutated or deleted.
type TransitionRecord struct {
	// ID is a UUID assigned at write time.
	ID string `json:"id"`

	// PolicyID identifies the policy that transitioned.
	PolicyID string `json:"policy_id"`

	// PolicyVersion is the policy version after the transition.
	PolicyVersion int64 `json:"policy_version"`

	// FromState and ToState describe the transition, e.g.
	// "CANARY tier 10%" -> "CANARY tier 25%" or "CLOSED" -> "OPEN".
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`

	// Reason carries the measured rate and threshold that drove the
	// decision, e.g. "rollback: success_rate 0.80 < 0.85".
	Reason string `json:"reason"`

	// TriggeredBy is the actor that caused the transition.
	TriggeredBy Trigger `json:"triggered_by"`

	// Timestamp is when the transition was committed.
	Timestamp time.Time `json:"timestamp"`
}

// StageState renders the stage+tier audit string used in TransitionRecords.
func StageState(stage Stage, tierPercent int) string {
	if stage == StageCanary {
		return fmt.Sprintf("CANARY tier %d%%", tierPercent)
	}
	return string(stage)
}
