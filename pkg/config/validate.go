package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g. "store.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any rules fail. All errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateBackend("store.backend", cfg.Store.Backend)...)
	errs = append(errs, validateBackend("history.backend", cfg.History.Backend)...)
	errs = append(errs, validateBackend("audit.backend", cfg.Audit.Backend)...)

	if cfg.History.RetentionSchedule != "" {
		if _, err := cron.ParseStandard(cfg.History.RetentionSchedule); err != nil {
			errs = append(errs, FieldError{"history.retention_schedule", fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if cfg.History.RetainFor <= 0 {
		errs = append(errs, FieldError{"history.retain_for", "must be positive"})
	}

	if cfg.Aggregator.BufferSize <= 0 {
		errs = append(errs, FieldError{"aggregator.buffer_size", "must be positive"})
	}
	if cfg.Aggregator.BucketSize <= 0 {
		errs = append(errs, FieldError{"aggregator.bucket_size", "must be positive"})
	}
	if cfg.Aggregator.WindowHorizon < cfg.Aggregator.BucketSize {
		errs = append(errs, FieldError{"aggregator.window_horizon", "must cover at least one bucket"})
	}

	if cfg.Rollout.Snapshot.RefreshInterval <= 0 {
		errs = append(errs, FieldError{"rollout.snapshot.refresh_interval", "must be positive"})
	}
	if cfg.Rollout.Snapshot.StaleAfter <= cfg.Rollout.Snapshot.RefreshInterval {
		errs = append(errs, FieldError{"rollout.snapshot.stale_after", "must exceed the refresh interval"})
	}
	if p := cfg.Rollout.Evaluator.HalfOpenTrialPercent; p < 1 || p > 100 {
		errs = append(errs, FieldError{"rollout.evaluator.half_open_trial_percent", "must be in [1,100]"})
	}
	if cfg.Rollout.Canary.Interval <= 0 {
		errs = append(errs, FieldError{"rollout.canary.interval", "must be positive"})
	}
	if cfg.Rollout.Circuit.RecoveryInterval <= 0 {
		errs = append(errs, FieldError{"rollout.circuit.recovery_interval", "must be positive"})
	}
	if cfg.Rollout.Circuit.MinSamples <= 0 {
		errs = append(errs, FieldError{"rollout.circuit.min_samples", "must be positive"})
	}
	switch cfg.Rollout.Circuit.OnClose {
	case "resume", "safe_tier":
	default:
		errs = append(errs, FieldError{"rollout.circuit.on_close", fmt.Sprintf("must be \"resume\" or \"safe_tier\", got %q", cfg.Rollout.Circuit.OnClose)})
	}
	if cfg.Rollout.Circuit.SafeTierIndex < 0 {
		errs = append(errs, FieldError{"rollout.circuit.safe_tier_index", "must be >= 0"})
	}

	if cfg.Simulator.MaxRows <= 0 {
		errs = append(errs, FieldError{"simulator.max_rows", "must be positive"})
	}
	if cfg.Simulator.MaxScanDuration <= 0 {
		errs = append(errs, FieldError{"simulator.max_scan_duration", "must be positive"})
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL == "" {
		errs = append(errs, FieldError{"alerts.webhook.url", "required when the webhook is enabled"})
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level", fmt.Sprintf("unknown level %q", cfg.Telemetry.Logging.Level)})
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format", fmt.Sprintf("unknown format %q", cfg.Telemetry.Logging.Format)})
	}
	if cfg.Telemetry.Ops.Enabled && cfg.Telemetry.Ops.ListenAddress == "" {
		errs = append(errs, FieldError{"telemetry.ops.listen_address", "required when the ops listener is enabled"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateBackend(field, backend string) []FieldError {
	switch backend {
	case "memory", "sqlite":
		return nil
	default:
		return []FieldError{{field, fmt.Sprintf("must be \"memory\" or \"sqlite\", got %q", backend)}}
	}
}
