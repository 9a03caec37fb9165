package policy

import (
	"errors"
	"testing"
	"time"

	"veridion-hq/sentinel/pkg/policy/rule"
)

func validThresholds() Thresholds {
	return Thresholds{
		PromoteSuccessRate:  0.95,
		RollbackSuccessRate: 0.85,
		MinSampleSize:       100,
		EvaluationWindow:    10 * time.Minute,
		CircuitErrorRate:    0.10,
		CircuitWindow:       time.Minute,
		CircuitCooldown:     15 * time.Minute,
	}
}

func validPolicy() *Policy {
	return &Policy{
		ID:           "pol-1",
		Name:         "jurisdiction lock",
		Rule:         &rule.Node{Kind: rule.KindNotIn, Attribute: "jurisdiction", Values: []string{"EU"}},
		Version:      1,
		Stage:        StageShadow,
		CircuitState: CircuitClosed,
		Thresholds:   validThresholds(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
		field  string
	}{
		{"promote above one", func(th *Thresholds) { th.PromoteSuccessRate = 1.5 }, "promote_success_rate"},
		{"rollback negative", func(th *Thresholds) { th.RollbackSuccessRate = -0.1 }, "rollback_success_rate"},
		{"rollback above promote", func(th *Thresholds) { th.RollbackSuccessRate = 0.99 }, "rollback_success_rate"},
		{"negative sample size", func(th *Thresholds) { th.MinSampleSize = -1 }, "min_sample_size"},
		{"zero evaluation window", func(th *Thresholds) { th.EvaluationWindow = 0 }, "evaluation_window"},
		{"zero circuit error rate", func(th *Thresholds) { th.CircuitErrorRate = 0 }, "circuit_error_rate"},
		{"zero circuit window", func(th *Thresholds) { th.CircuitWindow = 0 }, "circuit_window"},
		{"zero cooldown", func(th *Thresholds) { th.CircuitCooldown = 0 }, "circuit_cooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := validThresholds()
			tt.mutate(&th)
			err := th.Validate()
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want *ConfigurationError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}

	if err := validThresholds().Validate(); err != nil {
		t.Errorf("valid thresholds rejected: %v", err)
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validPolicy().Validate(); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
	})

	t.Run("enforcing requires last tier", func(t *testing.T) {
		p := validPolicy()
		p.Stage = StageEnforcing
		p.TierIndex = 2
		if err := p.Validate(); err == nil {
			t.Fatal("expected error for ENFORCING off the last tier")
		}
		p.TierIndex = len(p.Ladder()) - 1
		if err := p.Validate(); err != nil {
			t.Fatalf("ENFORCING at last tier rejected: %v", err)
		}
	})

	t.Run("ladder must increase", func(t *testing.T) {
		p := validPolicy()
		p.TierLadder = []int{5, 5, 10}
		if err := p.Validate(); err == nil {
			t.Fatal("expected error for non-increasing ladder")
		}
	})

	t.Run("invalid rule surfaces as configuration error", func(t *testing.T) {
		p := validPolicy()
		p.Rule = &rule.Node{Kind: rule.KindIn, Attribute: "jurisdiction"}
		var cerr *ConfigurationError
		if err := p.Validate(); !errors.As(err, &cerr) {
			t.Fatalf("Validate() = %v, want *ConfigurationError", err)
		}
	})
}

func TestPolicy_TierPercent(t *testing.T) {
	p := validPolicy()

	tests := []struct {
		stage Stage
		tier  int
		want  int
	}{
		{StageShadow, 0, 0},
		{StageDisabled, 3, 0},
		{StageCanary, 0, 1},
		{StageCanary, 3, 25},
		{StageCanary, 5, 100},
		{StageEnforcing, 5, 100},
	}
	for _, tt := range tests {
		p.Stage = tt.stage
		p.TierIndex = tt.tier
		if got := p.TierPercent(); got != tt.want {
			t.Errorf("TierPercent(%s, tier %d) = %d, want %d", tt.stage, tt.tier, got, tt.want)
		}
	}
}

func TestPolicy_LadderEdges(t *testing.T) {
	p := validPolicy()
	p.Stage = StageCanary

	p.TierIndex = 0
	if !p.AtFirstTier() || p.AtLastTier() {
		t.Error("tier 0 should be first, not last")
	}
	p.TierIndex = len(DefaultTierLadder) - 1
	if p.AtFirstTier() || !p.AtLastTier() {
		t.Error("top tier should be last, not first")
	}
}

func TestPolicy_CloneIsolation(t *testing.T) {
	p := validPolicy()
	p.TierLadder = []int{1, 50, 100}
	cp := p.Clone()
	cp.TierLadder[0] = 99
	cp.Rule.Values[0] = "US"

	if p.TierLadder[0] != 1 {
		t.Error("Clone should deep-copy the ladder")
	}
	if p.Rule.Values[0] != "EU" {
		t.Error("Clone should deep-copy the rule")
	}
}

func TestPolicy_Snapshot(t *testing.T) {
	p := validPolicy()
	p.Version = 7
	snap := p.Snapshot()
	if snap.PolicyID != p.ID || snap.Version != 7 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	snap.Rule.Values[0] = "US"
	if p.Rule.Values[0] != "EU" {
		t.Error("Snapshot should carry an isolated rule copy")
	}
}

func TestStageState(t *testing.T) {
	if got := StageState(StageCanary, 25); got != "CANARY tier 25%" {
		t.Errorf("StageState canary = %q", got)
	}
	if got := StageState(StageShadow, 0); got != "SHADOW" {
		t.Errorf("StageState shadow = %q", got)
	}
}
