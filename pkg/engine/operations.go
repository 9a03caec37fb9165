package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"veridion-hq/sentinel/pkg/alert"
	"veridion-hq/sentinel/pkg/audit"
	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/store"
	"veridion-hq/sentinel/pkg/rollout/eval"
	"veridion-hq/sentinel/pkg/simulate"
	telemetry "veridion-hq/sentinel/pkg/telemetry/metrics"
)

// Evaluate returns the enforcement decision for one request. It records
// evaluation metrics around the library call; see eval.Evaluator for the
// decision semantics.
func (e *Engine) Evaluate(ctx context.Context, policyID, agentID string, attrs map[string]string) eval.Decision {
	start := time.Now()
	dec := e.evaluator.Evaluate(ctx, policyID, agentID, attrs)
	e.collector.RecordEvaluation(policyID, string(dec.Stage), decisionLabel(dec), time.Since(start))
	return dec
}

func decisionLabel(dec eval.Decision) string {
	switch {
	case dec.FailSafe:
		return telemetry.DecisionFailSafe
	case dec.EnforcedBlock:
		return telemetry.DecisionEnforcedBlock
	case dec.WouldBlock:
		return telemetry.DecisionShadowBlock
	default:
		return telemetry.DecisionAllow
	}
}

// Simulate replays a candidate rule over the outcome history.
func (e *Engine) Simulate(ctx context.Context, req simulate.Request) (*simulate.Report, error) {
	start := time.Now()
	report, err := e.simulator.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	e.collector.RecordSimulation(string(report.ImpactLevel), time.Since(start))
	return report, nil
}

// Override is an operator-initiated state change. Nil fields are left
// untouched.
type Override struct {
	// Stage moves the policy to the given lifecycle stage. Moving to
	// CANARY without TierIndex keeps the current tier.
	Stage *policy.Stage

	// TierIndex moves the policy to the given ladder index.
	TierIndex *int

	// CircuitState pins or releases the breaker. Setting it to CLOSED
	// from MANUAL hands control back to the controllers.
	CircuitState *policy.CircuitState

	// Reason is recorded on the transition; required.
	Reason string

	// Actor identifies who performed the override.
	Actor string
}

// ApplyOverride commits a manual override through the same
// compare-and-swap path the controllers use and records a MANUAL
// transition. The returned policy reflects the committed state.
func (e *Engine) ApplyOverride(ctx context.Context, policyID string, ov Override) (*policy.Policy, error) {
	if ov.Reason == "" {
		return nil, &policy.ConfigurationError{PolicyID: policyID, Field: "reason", Message: "override reason is required"}
	}
	if ov.Stage == nil && ov.TierIndex == nil && ov.CircuitState == nil {
		return nil, &policy.ConfigurationError{PolicyID: policyID, Field: "override", Message: "nothing to change"}
	}

	var rec *policy.TransitionRecord

	updated, err := store.Apply(ctx, e.store, policyID, store.DefaultCASRetries, func(p *policy.Policy) error {
		fromStage := policy.StageState(p.Stage, p.TierPercent())
		fromCircuit := string(p.CircuitState)

		if ov.TierIndex != nil {
			p.TierIndex = *ov.TierIndex
		}
		if ov.Stage != nil {
			p.Stage = *ov.Stage
			if p.Stage == policy.StageEnforcing {
				p.TierIndex = len(p.Ladder()) - 1
			}
		}
		if ov.CircuitState != nil {
			p.CircuitState = *ov.CircuitState
			if p.CircuitState == policy.CircuitClosed {
				p.CircuitOpenedAt = time.Time{}
				p.CooldownUntil = time.Time{}
				p.OpenCount = 0
			}
		}

		if err := p.Validate(); err != nil {
			return err
		}

		from := fromStage
		to := policy.StageState(p.Stage, p.TierPercent())
		if ov.CircuitState != nil && ov.Stage == nil && ov.TierIndex == nil {
			from = fromCircuit
			to = string(p.CircuitState)
		}

		reason := ov.Reason
		if ov.Actor != "" {
			reason = fmt.Sprintf("%s (by %s)", ov.Reason, ov.Actor)
		}
		rec = &policy.TransitionRecord{
			ID:          uuid.NewString(),
			PolicyID:    p.ID,
			FromState:   from,
			ToState:     to,
			Reason:      reason,
			TriggeredBy: policy.TriggerManual,
			Timestamp:   time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec.PolicyVersion = updated.Version
	e.logger.Info("manual override committed",
		"policy_id", updated.ID,
		"from", rec.FromState,
		"to", rec.ToState,
		"reason", rec.Reason,
	)

	if err := e.trail.Append(ctx, rec); err != nil {
		e.logger.Error("transition record write failed", "policy_id", updated.ID, "error", err)
	}
	e.snapshot.Invalidate()
	e.dispatcher.Alert(ctx, alert.Event{
		PolicyID:   updated.ID,
		PolicyName: updated.Name,
		Severity:   alert.SeverityInfo,
		Message:    rec.Reason,
		Transition: rec,
		Timestamp:  rec.Timestamp,
	})

	return updated, nil
}

// CreatePolicy validates and stores a new policy, then refreshes the
// evaluation snapshot so it becomes visible immediately.
func (e *Engine) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	if err := e.store.Create(ctx, p); err != nil {
		return err
	}
	e.snapshot.Invalidate()
	return nil
}

// GetPolicy returns the current policy record.
func (e *Engine) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	return e.store.Get(ctx, id)
}

// ListPolicies returns all policy records.
func (e *Engine) ListPolicies(ctx context.Context) ([]*policy.Policy, error) {
	return e.store.List(ctx)
}

// PolicyVersions returns the immutable version history, oldest first.
func (e *Engine) PolicyVersions(ctx context.Context, id string) ([]*policy.PolicyVersion, error) {
	return e.store.Versions(ctx, id)
}

// Transitions returns matching audit records, oldest first.
func (e *Engine) Transitions(ctx context.Context, q audit.Query) ([]*policy.TransitionRecord, error) {
	var records []*policy.TransitionRecord
	err := e.trail.Scan(ctx, q, func(rec *policy.TransitionRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ExportTransitions streams matching audit records to w in the given
// format ("json" or "csv").
func (e *Engine) ExportTransitions(ctx context.Context, format string, q audit.Query, w io.Writer) error {
	switch strings.ToLower(format) {
	case "json":
		return audit.NewJSONExporter(e.cfg.Audit.ExportJSONPretty).Export(ctx, e.trail, q, w)
	case "csv":
		return audit.NewCSVExporter(e.cfg.Audit.ExportCSVHeader).Export(ctx, e.trail, q, w)
	default:
		return audit.NewExportError(format, 0, fmt.Errorf("unknown export format"))
	}
}
