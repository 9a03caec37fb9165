package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookConfig configures the webhook alerter.
type WebhookConfig struct {
	// URL is the webhook endpoint. Required.
	URL string `yaml:"url"`

	// Timeout bounds each delivery attempt.
	// Default: 10 seconds
	Timeout time.Duration `yaml:"timeout"`

	// Headers are added to every request (e.g. an authorization token).
	Headers map[string]string `yaml:"headers,omitempty"`
}

// webhookPayload is the wire shape posted to the endpoint.
type webhookPayload struct {
	EventType  string `json:"event_type"`
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name,omitempty"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	FromState  string `json:"from_state,omitempty"`
	ToState    string `json:"to_state,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// WebhookAlerter posts events as JSON to a configured HTTP endpoint.
type WebhookAlerter struct {
	config WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewWebhookAlerter creates a webhook alerter.
func NewWebhookAlerter(config WebhookConfig) (*WebhookAlerter, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookAlerter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: slog.Default().With("component", "alert.webhook"),
	}, nil
}

// Alert implements the Alerter interface.
func (a *WebhookAlerter) Alert(ctx context.Context, ev Event) error {
	payload := webhookPayload{
		EventType:  "policy_transition",
		PolicyID:   ev.PolicyID,
		PolicyName: ev.PolicyName,
		Severity:   string(ev.Severity),
		Message:    ev.Message,
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if ev.Transition != nil {
		payload.FromState = ev.Transition.FromState
		payload.ToState = ev.Transition.ToState
		payload.Reason = ev.Transition.Reason
	} else {
		payload.EventType = "policy_alert"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
