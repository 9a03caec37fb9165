package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"veridion-hq/sentinel/pkg/policy"
)

type captureAlerter struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureAlerter) Alert(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureAlerter) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	first := &captureAlerter{}
	second := &captureAlerter{}
	d := NewDispatcher(8, first, second)
	d.Start()

	ev := Event{
		PolicyID:  "pol-1",
		Severity:  SeverityWarning,
		Message:   "tier rollback",
		Timestamp: time.Now(),
	}
	if err := d.Alert(context.Background(), ev); err != nil {
		t.Fatalf("Alert() error = %v", err)
	}
	d.Stop()

	for name, sink := range map[string]*captureAlerter{"first": first, "second": second} {
		got := sink.snapshot()
		if len(got) != 1 {
			t.Fatalf("%s sink received %d events, want 1", name, len(got))
		}
		if got[0].PolicyID != "pol-1" || got[0].Severity != SeverityWarning {
			t.Errorf("%s sink event = %+v", name, got[0])
		}
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	// Not started, so nothing drains the buffer.
	d := NewDispatcher(1, &captureAlerter{})

	d.Alert(context.Background(), Event{PolicyID: "pol-1"})
	d.Alert(context.Background(), Event{PolicyID: "pol-2"})

	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
}

func TestWebhookAlerter_PostsTransitionPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received webhookPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("authorization = %s", auth)
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a, err := NewWebhookAlerter(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token-1"},
	})
	if err != nil {
		t.Fatalf("NewWebhookAlerter() error = %v", err)
	}

	err = a.Alert(context.Background(), Event{
		PolicyID: "pol-1",
		Severity: SeverityWarning,
		Message:  "tier rollback",
		Transition: &policy.TransitionRecord{
			FromState:   "CANARY tier 25%",
			ToState:     "CANARY tier 10%",
			Reason:      "rollback: success_rate 0.80 < 0.85",
			TriggeredBy: policy.TriggerCanary,
		},
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Alert() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received.EventType != "policy_transition" {
		t.Errorf("event_type = %s", received.EventType)
	}
	if received.FromState != "CANARY tier 25%" || received.ToState != "CANARY tier 10%" {
		t.Errorf("states = %s -> %s", received.FromState, received.ToState)
	}
	if received.Reason != "rollback: success_rate 0.80 < 0.85" {
		t.Errorf("reason = %s", received.Reason)
	}
	if received.Timestamp != "2026-08-01T12:00:00Z" {
		t.Errorf("timestamp = %s", received.Timestamp)
	}
}

func TestWebhookAlerter_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, err := NewWebhookAlerter(WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookAlerter() error = %v", err)
	}
	if err := a.Alert(context.Background(), Event{PolicyID: "pol-1"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestWebhookAlerter_RequiresURL(t *testing.T) {
	if _, err := NewWebhookAlerter(WebhookConfig{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestLogAlerter(t *testing.T) {
	a := NewLogAlerter()
	for _, sev := range []Severity{SeverityInfo, SeverityWarning, SeverityCritical} {
		if err := a.Alert(context.Background(), Event{PolicyID: "pol-1", Severity: sev}); err != nil {
			t.Errorf("Alert(%s) error = %v", sev, err)
		}
	}
}
