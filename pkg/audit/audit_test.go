package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"veridion-hq/sentinel/pkg/policy"
)

func transition(policyID string, version int64, ts time.Time) *policy.TransitionRecord {
	return &policy.TransitionRecord{
		ID:            uuid.NewString(),
		PolicyID:      policyID,
		PolicyVersion: version,
		FromState:     "CANARY tier 25%",
		ToState:       "CANARY tier 10%",
		Reason:        "rollback: success_rate 0.80 < 0.85",
		TriggeredBy:   policy.TriggerCanary,
		Timestamp:     ts,
	}
}

func openTrails(t *testing.T) map[string]Trail {
	t.Helper()

	sq, err := NewSQLiteTrail(&SQLiteTrailConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteTrail() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]Trail{
		"memory": NewMemoryTrail(),
		"sqlite": sq,
	}
}

func TestTrail_AppendScanCount(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for name, trail := range openTrails(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				rec := transition("pol-1", int64(i+1), base.Add(time.Duration(i)*time.Minute))
				if err := trail.Append(context.Background(), rec); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}
			if err := trail.Append(context.Background(), transition("pol-2", 1, base)); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			var got []*policy.TransitionRecord
			err := trail.Scan(context.Background(), Query{PolicyID: "pol-1"}, func(rec *policy.TransitionRecord) error {
				got = append(got, rec)
				return nil
			})
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if len(got) != 5 {
				t.Fatalf("scanned %d records, want 5", len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i].Timestamp.Before(got[i-1].Timestamp) {
					t.Error("records not in timestamp order")
				}
			}
			if got[0].Reason != "rollback: success_rate 0.80 < 0.85" {
				t.Errorf("reason = %q", got[0].Reason)
			}

			// Time-bounded query.
			n, err := trail.Count(context.Background(), Query{
				PolicyID: "pol-1",
				Start:    base.Add(time.Minute),
				End:      base.Add(3 * time.Minute),
			})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 2 {
				t.Errorf("Count() = %d, want 2", n)
			}

			// Limit.
			var limited int
			err = trail.Scan(context.Background(), Query{PolicyID: "pol-1", Limit: 2}, func(*policy.TransitionRecord) error {
				limited++
				return nil
			})
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if limited != 2 {
				t.Errorf("limited scan returned %d, want 2", limited)
			}
		})
	}
}

func TestJSONExport(t *testing.T) {
	trail := NewMemoryTrail()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := trail.Append(context.Background(), transition("pol-1", int64(i+1), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), trail, Query{}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var decoded []policy.TransitionRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("decoded %d records, want 3", len(decoded))
	}
	if decoded[0].PolicyVersion != 1 || decoded[2].PolicyVersion != 3 {
		t.Errorf("unexpected order: %+v", decoded)
	}
}

func TestJSONExport_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), NewMemoryTrail(), Query{}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.String() != "[]" {
		t.Errorf("empty export = %q, want []", buf.String())
	}
}

func TestCSVExport(t *testing.T) {
	trail := NewMemoryTrail()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := trail.Append(context.Background(), transition("pol-1", int64(i+1), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), trail, Query{}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][7] != "timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "pol-1" || rows[1][5] != "rollback: success_rate 0.80 < 0.85" {
		t.Errorf("row = %v", rows[1])
	}
}
