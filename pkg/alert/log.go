package alert

import (
	"context"
	"log/slog"
)

// LogAlerter writes events to the structured log. It is the default sink
// and the fallback when no external notification target is configured.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a log-backed alerter.
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: slog.Default().With("component", "alert")}
}

// Alert implements the Alerter interface.
func (a *LogAlerter) Alert(_ context.Context, ev Event) error {
	attrs := []any{
		"policy_id", ev.PolicyID,
		"severity", ev.Severity,
		"message", ev.Message,
	}
	if ev.Transition != nil {
		attrs = append(attrs,
			"from", ev.Transition.FromState,
			"to", ev.Transition.ToState,
			"reason", ev.Transition.Reason,
			"triggered_by", ev.Transition.TriggeredBy,
		)
	}

	switch ev.Severity {
	case SeverityCritical:
		a.logger.Error("rollout alert", attrs...)
	case SeverityWarning:
		a.logger.Warn("rollout alert", attrs...)
	default:
		a.logger.Info("rollout alert", attrs...)
	}
	return nil
}
