package outcome

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(&SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "outcomes.db"),
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func seedRecords(t *testing.T, s Store, policyID string, base time.Time, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		rec := &Record{
			ID:            uuid.NewString(),
			PolicyID:      policyID,
			PolicyVersion: 1,
			AgentID:       fmt.Sprintf("agent-%d", i%5),
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			WouldBlock:    i%3 == 0,
			EnforcedBlock: false,
			TierPercent:   10,
			Latency:       2 * time.Millisecond,
			Attributes:    map[string]string{"jurisdiction": "DE"},
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func TestStore_ScanFiltersAndOrder(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedRecords(t, s, "pol-a", base, 10)
			seedRecords(t, s, "pol-b", base, 4)

			var got []*Record
			err := s.Scan(ctx, Query{
				PolicyID: "pol-a",
				Start:    base.Add(2 * time.Second),
				End:      base.Add(7 * time.Second),
			}, func(rec *Record) error {
				got = append(got, rec)
				return nil
			})
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if len(got) != 5 {
				t.Fatalf("matched %d records, want 5", len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i].Timestamp.Before(got[i-1].Timestamp) {
					t.Fatal("Scan must return records in timestamp order")
				}
			}
			for _, rec := range got {
				if rec.PolicyID != "pol-a" {
					t.Errorf("policy filter leaked record for %s", rec.PolicyID)
				}
				if rec.Attributes["jurisdiction"] != "DE" {
					t.Errorf("attributes lost in round trip: %+v", rec.Attributes)
				}
			}
		})
	}
}

func TestStore_ScanLimitAndStop(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedRecords(t, s, "pol-a", base, 10)

			var limited int
			if err := s.Scan(ctx, Query{Limit: 3}, func(*Record) error {
				limited++
				return nil
			}); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if limited != 3 {
				t.Errorf("Limit honored %d records, want 3", limited)
			}

			// ErrStopScan ends the scan without an error.
			var seen int
			if err := s.Scan(ctx, Query{}, func(*Record) error {
				seen++
				if seen == 4 {
					return ErrStopScan
				}
				return nil
			}); err != nil {
				t.Fatalf("Scan() with ErrStopScan error = %v", err)
			}
			if seen != 4 {
				t.Errorf("ErrStopScan stopped after %d records, want 4", seen)
			}
		})
	}
}

func TestStore_CountAndPrune(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedRecords(t, s, "pol-a", base, 10)

			n, err := s.Count(ctx, Query{PolicyID: "pol-a"})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 10 {
				t.Fatalf("Count() = %d, want 10", n)
			}

			deleted, err := s.Prune(ctx, base.Add(5*time.Second))
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != 5 {
				t.Errorf("Prune() deleted %d, want 5", deleted)
			}

			remaining, _ := s.Count(ctx, Query{})
			if remaining != 5 {
				t.Errorf("remaining = %d, want 5", remaining)
			}
		})
	}
}
