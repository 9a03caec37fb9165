package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"veridion-hq/sentinel/pkg/outcome"
)

func record(policyID string, tier int, failed, blocked bool) *outcome.Record {
	return &outcome.Record{
		ID:            uuid.NewString(),
		PolicyID:      policyID,
		PolicyVersion: 1,
		AgentID:       "agent-1",
		Timestamp:     time.Now(),
		EnforcedBlock: blocked,
		TierPercent:   tier,
		Failed:        failed,
	}
}

func TestAggregator_IngestCounts(t *testing.T) {
	a := NewAggregator(Config{})

	for i := 0; i < 80; i++ {
		a.Ingest(record("pol-1", 10, false, false))
	}
	for i := 0; i < 15; i++ {
		a.Ingest(record("pol-1", 10, false, true))
	}
	for i := 0; i < 5; i++ {
		a.Ingest(record("pol-1", 10, true, false))
	}
	a.Ingest(record("pol-1", 25, false, false))
	a.Ingest(record("pol-2", 10, true, false))

	counts := a.TierCounts("pol-1", 10, time.Minute)
	if counts.Total != 100 {
		t.Fatalf("Total = %d, want 100", counts.Total)
	}
	if counts.Successful != 95 || counts.Failed != 5 || counts.Blocked != 15 {
		t.Errorf("counts = %+v", counts)
	}
	if got := counts.SuccessRate(); got != 0.95 {
		t.Errorf("SuccessRate() = %v, want 0.95", got)
	}
	if got := counts.ErrorRate(); got != 0.05 {
		t.Errorf("ErrorRate() = %v, want 0.05", got)
	}

	// Tier isolation.
	if other := a.TierCounts("pol-1", 25, time.Minute); other.Total != 1 {
		t.Errorf("tier 25 Total = %d, want 1", other.Total)
	}

	// Policy-wide view sums tiers but not other policies.
	all := a.PolicyCounts("pol-1", time.Minute)
	if all.Total != 101 {
		t.Errorf("PolicyCounts Total = %d, want 101", all.Total)
	}
}

func TestAggregator_EmptyWindow(t *testing.T) {
	a := NewAggregator(Config{})
	counts := a.TierCounts("unknown", 10, time.Minute)
	if counts.Total != 0 || counts.SuccessRate() != 0 {
		t.Errorf("empty window should be zero counts: %+v", counts)
	}
}

func TestAggregator_EmitAsyncAndPersist(t *testing.T) {
	history := outcome.NewMemoryStore()
	a := NewAggregator(Config{History: history, BufferSize: 16})
	a.Start()
	defer a.Stop()

	for i := 0; i < 10; i++ {
		if !a.Emit(record("pol-1", 10, false, false)) {
			t.Fatal("Emit should accept records under capacity")
		}
	}
	a.Stop()

	counts := a.PolicyCounts("pol-1", time.Minute)
	if counts.Total != 10 {
		t.Fatalf("Total after drain = %d, want 10", counts.Total)
	}

	n, err := history.Count(context.Background(), outcome.Query{PolicyID: "pol-1"})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 10 {
		t.Errorf("persisted %d records, want 10", n)
	}
}

func TestAggregator_EmitDropsWhenFull(t *testing.T) {
	// Not started: nothing consumes, so the buffer fills.
	a := NewAggregator(Config{BufferSize: 2})

	if !a.Emit(record("pol-1", 10, false, false)) || !a.Emit(record("pol-1", 10, false, false)) {
		t.Fatal("first two emits should fit the buffer")
	}
	if a.Emit(record("pol-1", 10, false, false)) {
		t.Fatal("third emit should drop, not block")
	}
	if a.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", a.Dropped())
	}
}

func TestAggregator_ListenersNotified(t *testing.T) {
	a := NewAggregator(Config{BufferSize: 8})

	var mu sync.Mutex
	seen := map[string]int{}
	a.Subscribe(func(policyID string) {
		mu.Lock()
		seen[policyID]++
		mu.Unlock()
	})

	a.Start()
	a.Emit(record("pol-1", 10, true, false))
	a.Emit(record("pol-2", 10, false, false))
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	if seen["pol-1"] != 1 || seen["pol-2"] != 1 {
		t.Errorf("listener notifications = %v", seen)
	}
}

func TestRollingWindow_Expiry(t *testing.T) {
	rw := newRollingWindow(time.Minute, 10*time.Second)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rw.add(base, Counts{Total: 5, Successful: 5})
	rw.add(base.Add(30*time.Second), Counts{Total: 3, Successful: 3})

	if got := rw.sum(base.Add(35*time.Second), time.Minute); got.Total != 8 {
		t.Fatalf("Total within horizon = %d, want 8", got.Total)
	}

	// Narrower query window excludes the first bucket.
	if got := rw.sum(base.Add(35*time.Second), 20*time.Second); got.Total != 3 {
		t.Errorf("Total within 20s = %d, want 3", got.Total)
	}

	// Advancing past the horizon expires the oldest bucket.
	if got := rw.sum(base.Add(70*time.Second), time.Minute); got.Total != 3 {
		t.Errorf("Total after expiry = %d, want 3", got.Total)
	}
}
