package canary

import (
	"context"
	"sync"
	"testing"
	"time"

	"veridion-hq/sentinel/pkg/alert"
	"veridion-hq/sentinel/pkg/audit"
	"veridion-hq/sentinel/pkg/metrics"
	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/rule"
	"veridion-hq/sentinel/pkg/policy/store"
)

// fixedMetrics serves one Counts value for every query.
type fixedMetrics struct {
	counts metrics.Counts
}

func (f *fixedMetrics) TierCounts(string, int, time.Duration) metrics.Counts {
	return f.counts
}

type captureAlerter struct {
	mu     sync.Mutex
	events []alert.Event
}

func (c *captureAlerter) Alert(_ context.Context, ev alert.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func canaryPolicy(tierIndex int) *policy.Policy {
	return &policy.Policy{
		ID:    "pol-1",
		Name:  "restricted jurisdictions",
		Stage: policy.StageCanary,
		Rule: &rule.Node{
			Kind:      rule.KindNotIn,
			Attribute: "jurisdiction",
			Values:    []string{"US", "EU"},
		},
		TierIndex: tierIndex,
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

func newFixture(t *testing.T, p *policy.Policy, counts metrics.Counts) (*Controller, store.Store, *audit.MemoryTrail, *captureAlerter) {
	t.Helper()
	s := store.NewMemoryStore()
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	trail := audit.NewMemoryTrail()
	alerter := &captureAlerter{}
	c := NewController(Config{}, s, &fixedMetrics{counts: counts}, trail, alerter, nil)
	return c, s, trail, alerter
}

func getPolicy(t *testing.T, s store.Store) *policy.Policy {
	t.Helper()
	p, err := s.Get(context.Background(), "pol-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return p
}

func TestTick_PromotesHealthyTier(t *testing.T) {
	c, s, trail, alerter := newFixture(t, canaryPolicy(1), metrics.Counts{Total: 1000, Successful: 960, Failed: 40})

	c.Tick(context.Background())

	p := getPolicy(t, s)
	if p.TierIndex != 2 || p.Stage != policy.StageCanary {
		t.Fatalf("policy = stage %s tier %d, want CANARY tier 2", p.Stage, p.TierIndex)
	}
	if p.Version != 2 {
		t.Errorf("version = %d, want 2", p.Version)
	}

	var recs []*policy.TransitionRecord
	trail.Scan(context.Background(), audit.Query{}, func(rec *policy.TransitionRecord) error {
		recs = append(recs, rec)
		return nil
	})
	if len(recs) != 1 {
		t.Fatalf("trail has %d records, want 1", len(recs))
	}
	if recs[0].FromState != "CANARY tier 5%" || recs[0].ToState != "CANARY tier 10%" {
		t.Errorf("transition = %s -> %s", recs[0].FromState, recs[0].ToState)
	}
	if recs[0].Reason != "promote: success_rate 0.96 >= 0.95" {
		t.Errorf("reason = %q", recs[0].Reason)
	}

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	if len(alerter.events) != 1 || alerter.events[0].Severity != alert.SeverityInfo {
		t.Errorf("alerts = %+v", alerter.events)
	}
}

func TestTick_RollsBackUnhealthyTier(t *testing.T) {
	// Tier index 3 is 25%; success rate 0.80 is below the 0.85 rollback
	// threshold, so the tier drops to 10%.
	c, s, trail, alerter := newFixture(t, canaryPolicy(3), metrics.Counts{Total: 1000, Successful: 800, Failed: 200})

	c.Tick(context.Background())

	p := getPolicy(t, s)
	if p.TierIndex != 2 || p.Stage != policy.StageCanary {
		t.Fatalf("policy = stage %s tier %d, want CANARY tier 2", p.Stage, p.TierIndex)
	}

	var recs []*policy.TransitionRecord
	trail.Scan(context.Background(), audit.Query{}, func(rec *policy.TransitionRecord) error {
		recs = append(recs, rec)
		return nil
	})
	if len(recs) != 1 {
		t.Fatalf("trail has %d records, want 1", len(recs))
	}
	if recs[0].Reason != "rollback: success_rate 0.80 < 0.85" {
		t.Errorf("reason = %q", recs[0].Reason)
	}

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	if len(alerter.events) != 1 || alerter.events[0].Severity != alert.SeverityWarning {
		t.Errorf("rollback must raise a warning alert: %+v", alerter.events)
	}
}

func TestTick_PromoteTieBreak(t *testing.T) {
	// Exactly at the promote threshold: ties promote.
	c, s, _, _ := newFixture(t, canaryPolicy(1), metrics.Counts{Total: 1000, Successful: 950, Failed: 50})

	c.Tick(context.Background())

	if p := getPolicy(t, s); p.TierIndex != 2 {
		t.Errorf("tier = %d, want promotion at exact threshold", p.TierIndex)
	}
}

func TestTick_RollbackTieHolds(t *testing.T) {
	// Exactly at the rollback threshold: ties hold.
	c, s, _, _ := newFixture(t, canaryPolicy(3), metrics.Counts{Total: 1000, Successful: 850, Failed: 150})

	c.Tick(context.Background())

	p := getPolicy(t, s)
	if p.TierIndex != 3 || p.Version != 1 {
		t.Errorf("policy = tier %d version %d, want unchanged", p.TierIndex, p.Version)
	}
}

func TestTick_HoldsOnInsufficientData(t *testing.T) {
	// Perfect success rate but below min_sample_size: no promotion.
	c, s, trail, alerter := newFixture(t, canaryPolicy(1), metrics.Counts{Total: 499, Successful: 499})

	c.Tick(context.Background())

	p := getPolicy(t, s)
	if p.TierIndex != 1 || p.Version != 1 {
		t.Errorf("policy = tier %d version %d, want unchanged", p.TierIndex, p.Version)
	}
	if n, _ := trail.Count(context.Background(), audit.Query{}); n != 0 {
		t.Errorf("trail has %d records, want 0", n)
	}

	// A hold is a valid outcome, not the configuration-error alert path.
	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	if len(alerter.events) != 0 {
		t.Errorf("alerts = %+v, want none on hold", alerter.events)
	}
}

func TestTick_LastTierPromotesToEnforcing(t *testing.T) {
	last := len(policy.DefaultTierLadder) - 1
	c, s, trail, _ := newFixture(t, canaryPolicy(last), metrics.Counts{Total: 1000, Successful: 990, Failed: 10})

	c.Tick(context.Background())

	p := getPolicy(t, s)
	if p.Stage != policy.StageEnforcing {
		t.Fatalf("stage = %s, want ENFORCING", p.Stage)
	}
	if !p.AtLastTier() {
		t.Error("ENFORCING must sit on the last tier")
	}

	var recs []*policy.TransitionRecord
	trail.Scan(context.Background(), audit.Query{}, func(rec *policy.TransitionRecord) error {
		recs = append(recs, rec)
		return nil
	})
	if len(recs) != 1 || recs[0].ToState != "ENFORCING" {
		t.Errorf("trail = %+v", recs)
	}
}

func TestTick_FirstTierRollsBackToShadow(t *testing.T) {
	c, s, _, _ := newFixture(t, canaryPolicy(0), metrics.Counts{Total: 1000, Successful: 500, Failed: 500})

	c.Tick(context.Background())

	p := getPolicy(t, s)
	if p.Stage != policy.StageShadow {
		t.Fatalf("stage = %s, want SHADOW", p.Stage)
	}
}

func TestTick_SkipsNonCanaryStages(t *testing.T) {
	for _, stage := range []policy.Stage{policy.StageShadow, policy.StageDisabled} {
		p := canaryPolicy(0)
		p.Stage = stage
		c, s, _, _ := newFixture(t, p, metrics.Counts{Total: 1000, Successful: 1000})

		c.Tick(context.Background())

		if got := getPolicy(t, s); got.Version != 1 {
			t.Errorf("stage %s: version = %d, want untouched", stage, got.Version)
		}
	}
}

func TestTick_SkipsOpenCircuit(t *testing.T) {
	p := canaryPolicy(2)
	p.CircuitState = policy.CircuitOpen
	p.CircuitOpenedAt = time.Now()
	p.CooldownUntil = time.Now().Add(15 * time.Minute)
	p.OpenCount = 1
	c, s, _, _ := newFixture(t, p, metrics.Counts{Total: 1000, Successful: 1000})

	c.Tick(context.Background())

	if got := getPolicy(t, s); got.TierIndex != 2 || got.Version != 1 {
		t.Errorf("policy changed under an open circuit: tier %d version %d", got.TierIndex, got.Version)
	}
}

func TestTick_SkipsManualCircuit(t *testing.T) {
	p := canaryPolicy(2)
	p.CircuitState = policy.CircuitManual
	c, s, _, _ := newFixture(t, p, metrics.Counts{Total: 1000, Successful: 1000})

	c.Tick(context.Background())

	if got := getPolicy(t, s); got.Version != 1 {
		t.Errorf("MANUAL policy must never be touched, version = %d", got.Version)
	}
}

func TestUpdateConfig_SwapsSettings(t *testing.T) {
	c, _, _, _ := newFixture(t, canaryPolicy(1), metrics.Counts{})

	c.UpdateConfig(Config{Interval: 10 * time.Minute, CASRetries: 9})

	if c.Interval() != 10*time.Minute {
		t.Errorf("Interval() = %v, want 10m", c.Interval())
	}
	if got := c.config().CASRetries; got != 9 {
		t.Errorf("CASRetries = %d, want 9", got)
	}
}

func TestUpdateConfig_ZeroValuesFallBackToDefaults(t *testing.T) {
	c, s, _, _ := newFixture(t, canaryPolicy(1), metrics.Counts{Total: 1000, Successful: 960, Failed: 40})

	c.UpdateConfig(Config{})

	if c.Interval() != 5*time.Minute {
		t.Errorf("Interval() = %v, want the 5m default", c.Interval())
	}

	// Ticking keeps working under the swapped settings.
	c.Tick(context.Background())
	if p := getPolicy(t, s); p.TierIndex != 2 {
		t.Errorf("tier = %d, want 2 after promotion", p.TierIndex)
	}
}
