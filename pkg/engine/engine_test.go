package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"veridion-hq/sentinel/pkg/audit"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/rule"
	"veridion-hq/sentinel/pkg/simulate"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store.Backend = "memory"
	cfg.History.Backend = "memory"
	cfg.Audit.Backend = "memory"
	cfg.Telemetry.Ops.Enabled = false
	cfg.Alerts.Webhook.Enabled = false

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func shadowPolicy(id string) *policy.Policy {
	return &policy.Policy{
		ID:    id,
		Name:  "restricted jurisdictions",
		Stage: policy.StageShadow,
		Rule: &rule.Node{
			Kind:      rule.KindNotIn,
			Attribute: "jurisdiction",
			Values:    []string{"US", "EU"},
		},
		Thresholds: policy.Thresholds{
			PromoteSuccessRate:  0.95,
			RollbackSuccessRate: 0.85,
			MinSampleSize:       500,
			EvaluationWindow:    10 * time.Minute,
			CircuitErrorRate:    0.10,
			CircuitWindow:       time.Minute,
			CircuitCooldown:     15 * time.Minute,
		},
		CircuitState: policy.CircuitClosed,
	}
}

func TestEngine_StartStop(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Errorf("Stop() on a stopped engine = %v, want nil", err)
	}
}

func TestEngine_EvaluateShadow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreatePolicy(ctx, shadowPolicy("pol-1")); err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}
	if err := e.snapshot.Refresh(ctx); err != nil {
		t.Fatalf("snapshot refresh error = %v", err)
	}

	dec := e.Evaluate(ctx, "pol-1", "agent-7", map[string]string{"jurisdiction": "KP"})
	if !dec.WouldBlock {
		t.Error("rule should match a non-allowed jurisdiction")
	}
	if dec.EnforcedBlock {
		t.Error("shadow stage must never enforce")
	}
	if dec.FailSafe {
		t.Error("a readable policy must not fail safe")
	}
	if dec.Stage != policy.StageShadow {
		t.Errorf("Stage = %q, want %q", dec.Stage, policy.StageShadow)
	}

	dec = e.Evaluate(ctx, "pol-1", "agent-7", map[string]string{"jurisdiction": "US"})
	if dec.WouldBlock {
		t.Error("rule should not match an allowed jurisdiction")
	}
}

func TestEngine_EvaluateUnknownPolicyFailsSafe(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.snapshot.Refresh(ctx); err != nil {
		t.Fatalf("snapshot refresh error = %v", err)
	}

	dec := e.Evaluate(ctx, "missing", "agent-1", nil)
	if !dec.FailSafe {
		t.Error("unknown policy should fail safe")
	}
	if !dec.WouldBlock || dec.EnforcedBlock {
		t.Errorf("fail-safe decision = {would_block:%v enforced:%v}, want {true false}",
			dec.WouldBlock, dec.EnforcedBlock)
	}
}

func TestEngine_ApplyOverride(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreatePolicy(ctx, shadowPolicy("pol-1")); err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}

	stage := policy.StageEnforcing
	updated, err := e.ApplyOverride(ctx, "pol-1", Override{
		Stage:  &stage,
		Reason: "incident drill complete",
		Actor:  "ops",
	})
	if err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}
	if updated.Stage != policy.StageEnforcing {
		t.Errorf("Stage = %q, want ENFORCING", updated.Stage)
	}
	if !updated.AtLastTier() {
		t.Errorf("TierIndex = %d, want last ladder tier", updated.TierIndex)
	}

	records, err := e.Transitions(ctx, audit.Query{PolicyID: "pol-1"})
	if err != nil {
		t.Fatalf("Transitions() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d transition records, want 1", len(records))
	}
	rec := records[0]
	if rec.TriggeredBy != policy.TriggerManual {
		t.Errorf("TriggeredBy = %q, want MANUAL", rec.TriggeredBy)
	}
	if rec.ToState != string(policy.StageEnforcing) {
		t.Errorf("ToState = %q, want %q", rec.ToState, policy.StageEnforcing)
	}
	if !strings.Contains(rec.Reason, "(by ops)") {
		t.Errorf("Reason = %q, want actor attribution", rec.Reason)
	}
}

func TestEngine_ApplyOverride_CircuitOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreatePolicy(ctx, shadowPolicy("pol-1")); err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}

	state := policy.CircuitManual
	if _, err := e.ApplyOverride(ctx, "pol-1", Override{
		CircuitState: &state,
		Reason:       "pinned during incident",
	}); err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}

	records, err := e.Transitions(ctx, audit.Query{PolicyID: "pol-1"})
	if err != nil {
		t.Fatalf("Transitions() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d transition records, want 1", len(records))
	}
	if records[0].FromState != string(policy.CircuitClosed) || records[0].ToState != string(policy.CircuitManual) {
		t.Errorf("transition = %q -> %q, want CLOSED -> MANUAL",
			records[0].FromState, records[0].ToState)
	}
}

func TestEngine_ApplyOverride_Rejections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreatePolicy(ctx, shadowPolicy("pol-1")); err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}

	stage := policy.StageCanary
	if _, err := e.ApplyOverride(ctx, "pol-1", Override{Stage: &stage}); err == nil {
		t.Error("override without a reason should fail")
	}
	if _, err := e.ApplyOverride(ctx, "pol-1", Override{Reason: "noop"}); err == nil {
		t.Error("override changing nothing should fail")
	}
}

func TestEngine_ExportTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreatePolicy(ctx, shadowPolicy("pol-1")); err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}
	stage := policy.StageCanary
	if _, err := e.ApplyOverride(ctx, "pol-1", Override{Stage: &stage, Reason: "start canary"}); err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}

	var buf bytes.Buffer
	if err := e.ExportTransitions(ctx, "json", audit.Query{PolicyID: "pol-1"}, &buf); err != nil {
		t.Fatalf("ExportTransitions(json) error = %v", err)
	}
	if !strings.Contains(buf.String(), "pol-1") {
		t.Error("JSON export should contain the policy id")
	}

	buf.Reset()
	if err := e.ExportTransitions(ctx, "csv", audit.Query{}, &buf); err != nil {
		t.Fatalf("ExportTransitions(csv) error = %v", err)
	}

	err := e.ExportTransitions(ctx, "xml", audit.Query{}, &buf)
	var exportErr *audit.ExportError
	if !errors.As(err, &exportErr) {
		t.Errorf("unknown format error = %v, want *audit.ExportError", err)
	}
}

func TestEngine_Simulate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, j := range []string{"KP", "US", "US", "EU"} {
		rec := &outcome.Record{
			ID:         fmt.Sprintf("rec-%d", i),
			PolicyID:   "pol-1",
			AgentID:    "agent-1",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Attributes: map[string]string{"jurisdiction": j},
		}
		if err := e.history.Append(ctx, rec); err != nil {
			t.Fatalf("history append error = %v", err)
		}
	}

	report, err := e.Simulate(ctx, simulate.Request{
		Rule: &rule.Node{
			Kind:      rule.KindNotIn,
			Attribute: "jurisdiction",
			Values:    []string{"US", "EU"},
		},
		Start: base.Add(-time.Minute),
		End:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if report.Total != 4 {
		t.Errorf("Total = %d, want 4", report.Total)
	}
	if report.WouldBlock != 1 {
		t.Errorf("WouldBlock = %d, want 1", report.WouldBlock)
	}
	if report.ImpactLevel != simulate.ImpactHigh {
		t.Errorf("ImpactLevel = %q, want %q", report.ImpactLevel, simulate.ImpactHigh)
	}
}

func TestEngine_CountsDroppedOutcomes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = "memory"
	cfg.History.Backend = "memory"
	cfg.Audit.Backend = "memory"
	cfg.Telemetry.Ops.Enabled = false
	cfg.Alerts.Webhook.Enabled = false
	cfg.Aggregator.BufferSize = 1

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := e.CreatePolicy(ctx, shadowPolicy("pol-1")); err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}
	if err := e.snapshot.Refresh(ctx); err != nil {
		t.Fatalf("snapshot refresh error = %v", err)
	}

	// The aggregator is not started, so nothing drains the emit buffer:
	// the first record fills it and the rest are shed.
	for i := 0; i < 3; i++ {
		e.Evaluate(ctx, "pol-1", "agent-1", map[string]string{"jurisdiction": "US"})
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.collector.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "veridion_sentinel_outcomes_dropped_total 2") {
		t.Errorf("scrape is missing the dropped-outcome count, body:\n%s", rec.Body.String())
	}
}

func TestEngine_Reload(t *testing.T) {
	e := newTestEngine(t)

	next := config.DefaultConfig()
	next.Rollout.Canary.Interval = 42 * time.Minute
	next.Rollout.Circuit.RecoveryInterval = 7 * time.Minute
	next.Rollout.Circuit.MinSamples = 75

	if err := e.Reload(next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if e.canary.Interval() != 42*time.Minute {
		t.Errorf("canary interval = %v, want 42m", e.canary.Interval())
	}
	if e.circuit.Interval() != 7*time.Minute {
		t.Errorf("circuit interval = %v, want 7m", e.circuit.Interval())
	}

	bad := config.DefaultConfig()
	bad.Rollout.Circuit.OnClose = "explode"
	if err := e.Reload(bad); err == nil {
		t.Error("invalid on_close should be rejected")
	}
	if e.circuit.Interval() != 7*time.Minute {
		t.Errorf("circuit interval = %v, want settings kept after a rejected reload", e.circuit.Interval())
	}
}
