package alert

import (
	"context"
	"time"

	"veridion-hq/sentinel/pkg/policy"
)

// Severity classifies an alert event.
type Severity string

const (
	// SeverityInfo marks routine transitions such as tier promotions.
	SeverityInfo Severity = "INFO"

	// SeverityWarning marks degradations such as tier rollbacks.
	SeverityWarning Severity = "WARNING"

	// SeverityCritical marks circuit opens and fail-safe evaluations.
	SeverityCritical Severity = "CRITICAL"
)

// Event is one alertable occurrence.
type Event struct {
	// PolicyID identifies the affected policy.
	PolicyID string `json:"policy_id"`

	// PolicyName is the human-readable name, when known.
	PolicyName string `json:"policy_name,omitempty"`

	// Severity is the event severity.
	Severity Severity `json:"severity"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// Transition carries the audit record when the event is a state
	// transition; nil for non-transition events such as fail-safe alerts.
	Transition *policy.TransitionRecord `json:"transition,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Alerter delivers events to an external notification subsystem.
type Alerter interface {
	Alert(ctx context.Context, ev Event) error
}
