package config

import "time"

// Config is the root configuration structure for Veridion Sentinel.
// It contains all configuration sections for policy storage, outcome
// history, the metrics aggregator, the rollout controllers, the impact
// simulator, the audit trail, alerting, and telemetry.
type Config struct {
	// Store contains configuration for the policy record store.
	Store StoreConfig `yaml:"store"`

	// History contains configuration for the outcome history store and
	// its retention pruning.
	History HistoryConfig `yaml:"history"`

	// Aggregator contains configuration for the metrics aggregator.
	Aggregator AggregatorConfig `yaml:"aggregator"`

	// Rollout contains configuration for the evaluation path and the two
	// controllers.
	Rollout RolloutConfig `yaml:"rollout"`

	// Simulator contains configuration for the impact simulator.
	Simulator SimulatorConfig `yaml:"simulator"`

	// Audit contains configuration for the transition trail and export.
	Audit AuditConfig `yaml:"audit"`

	// Alerts contains configuration for the outbound alert port.
	Alerts AlertsConfig `yaml:"alerts"`

	// Telemetry contains configuration for observability including
	// logging, Prometheus metrics, and the ops HTTP listener.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig contains configuration for the policy record store.
type StoreConfig struct {
	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path when Backend is "sqlite".
	// Default: "data/policies.db"
	SQLitePath string `yaml:"sqlite_path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// HistoryConfig contains configuration for the outcome history store.
type HistoryConfig struct {
	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path when Backend is "sqlite".
	// Default: "data/outcomes.db"
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionSchedule is a cron expression for history pruning.
	// Empty disables scheduled pruning.
	// Default: "0 3 * * *"
	RetentionSchedule string `yaml:"retention_schedule"`

	// RetainFor is how long outcome records are kept.
	// Default: 720h (30 days)
	RetainFor time.Duration `yaml:"retain_for"`
}

// AggregatorConfig contains configuration for the metrics aggregator.
type AggregatorConfig struct {
	// BufferSize is the outcome emit channel capacity. A full buffer
	// drops records rather than blocking the evaluation path.
	// Default: 4096
	BufferSize int `yaml:"buffer_size"`

	// WindowHorizon is how far back in-memory counters are kept.
	// Default: 1h
	WindowHorizon time.Duration `yaml:"window_horizon"`

	// BucketSize is the counter bucket granularity.
	// Default: 10s
	BucketSize time.Duration `yaml:"bucket_size"`

	// PersistTimeout bounds each history write.
	// Default: 5s
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

// RolloutConfig contains configuration for the evaluation path and the
// canary and circuit breaker controllers.
type RolloutConfig struct {
	// Snapshot contains configuration for the evaluation snapshot cache.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Evaluator contains configuration for the decision path.
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Canary contains configuration for the canary controller.
	Canary CanaryConfig `yaml:"canary"`

	// Circuit contains configuration for the circuit breaker controller.
	Circuit CircuitConfig `yaml:"circuit"`
}

// SnapshotConfig contains configuration for the policy snapshot cache.
type SnapshotConfig struct {
	// RefreshInterval is how often the snapshot is rebuilt from the store.
	// Default: 5s
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// StaleAfter is the age past which the snapshot is no longer trusted
	// and evaluations fail safe.
	// Default: 1m
	StaleAfter time.Duration `yaml:"stale_after"`
}

// EvaluatorConfig contains configuration for the evaluation path.
type EvaluatorConfig struct {
	// HalfOpenTrialPercent is the cohort percentage that keeps enforcing
	// while a policy's circuit is HALF_OPEN.
	// Default: 5
	HalfOpenTrialPercent int `yaml:"half_open_trial_percent"`
}

// CanaryConfig contains configuration for the canary controller.
type CanaryConfig struct {
	// Interval is the tick cadence.
	// Default: 5m
	Interval time.Duration `yaml:"interval"`

	// CASRetries bounds compare-and-swap retries per policy per tick.
	// Default: 5
	CASRetries int `yaml:"cas_retries"`
}

// CircuitConfig contains configuration for the circuit breaker controller.
type CircuitConfig struct {
	// RecoveryInterval is the cooldown-handling tick cadence.
	// Default: 1m
	RecoveryInterval time.Duration `yaml:"recovery_interval"`

	// MinSamples is the minimum windowed total before an error rate is
	// trusted.
	// Default: 20
	MinSamples int64 `yaml:"min_samples"`

	// MaxCooldown caps the exponential open-cooldown backoff.
	// Default: 4h
	MaxCooldown time.Duration `yaml:"max_cooldown"`

	// OnClose selects where a recovering policy resumes.
	// Options: "resume" (prior tier), "safe_tier"
	// Default: "resume"
	OnClose string `yaml:"on_close"`

	// SafeTierIndex is the ladder index used when OnClose is "safe_tier".
	// Default: 0
	SafeTierIndex int `yaml:"safe_tier_index"`

	// CheckInterval throttles the event-driven breach check per policy.
	// Default: 1s
	CheckInterval time.Duration `yaml:"check_interval"`

	// CASRetries bounds compare-and-swap retries per transition.
	// Default: 5
	CASRetries int `yaml:"cas_retries"`
}

// SimulatorConfig contains configuration for the impact simulator.
type SimulatorConfig struct {
	// MaxRows is the row budget per simulation run.
	// Default: 100000
	MaxRows int64 `yaml:"max_rows"`

	// MaxScanDuration is the scan deadline per run.
	// Default: 30s
	MaxScanDuration time.Duration `yaml:"max_scan_duration"`

	// SampleSaturation is the sample size at which the confidence sample
	// factor reaches 1.
	// Default: 10000
	SampleSaturation int64 `yaml:"sample_saturation"`
}

// AuditConfig contains configuration for the transition trail.
type AuditConfig struct {
	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path when Backend is "sqlite".
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// ExportJSONPretty enables indented JSON exports.
	// Default: true
	ExportJSONPretty bool `yaml:"export_json_pretty"`

	// ExportCSVHeader includes the header row in CSV exports.
	// Default: true
	ExportCSVHeader bool `yaml:"export_csv_header"`
}

// AlertsConfig contains configuration for the outbound alert port.
type AlertsConfig struct {
	// BufferSize is the async dispatcher buffer capacity.
	// Default: 256
	BufferSize int `yaml:"buffer_size"`

	// Webhook contains the optional webhook sink configuration.
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig contains configuration for the webhook alert sink.
type WebhookConfig struct {
	// Enabled controls whether alerts are posted to the webhook.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// URL is the webhook endpoint. Required when Enabled.
	URL string `yaml:"url"`

	// Timeout bounds each delivery attempt.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Ops contains the ops HTTP listener configuration.
	Ops OpsConfig `yaml:"ops"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// Output selects the log destination.
	// Options: "stdout", "stderr", or a file path
	// Default: "stdout"
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "veridion"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric name subsystem segment.
	// Default: "sentinel"
	Subsystem string `yaml:"subsystem"`
}

// OpsConfig contains the ops HTTP listener configuration serving /metrics
// and /healthz.
type OpsConfig struct {
	// Enabled controls whether the ops listener is started.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`
}
