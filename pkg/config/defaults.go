package config

import "time"

// Default values for configuration fields.
const (
	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultStoreSQLitePath   = "data/policies.db"
	DefaultStoreMaxOpenConns = 10
	DefaultStoreMaxIdleConns = 5
	DefaultStoreWALMode      = true
	DefaultStoreBusyTimeout  = 5 * time.Second

	// History defaults
	DefaultHistoryBackend           = "sqlite"
	DefaultHistorySQLitePath        = "data/outcomes.db"
	DefaultHistoryRetentionSchedule = "0 3 * * *"
	DefaultHistoryRetainFor         = 30 * 24 * time.Hour

	// Aggregator defaults
	DefaultAggregatorBufferSize     = 4096
	DefaultAggregatorWindowHorizon  = time.Hour
	DefaultAggregatorBucketSize     = 10 * time.Second
	DefaultAggregatorPersistTimeout = 5 * time.Second

	// Snapshot defaults
	DefaultSnapshotRefreshInterval = 5 * time.Second
	DefaultSnapshotStaleAfter      = time.Minute

	// Evaluator defaults
	DefaultHalfOpenTrialPercent = 5

	// Canary defaults
	DefaultCanaryInterval   = 5 * time.Minute
	DefaultCanaryCASRetries = 5

	// Circuit defaults
	DefaultCircuitRecoveryInterval = time.Minute
	DefaultCircuitMinSamples       = int64(20)
	DefaultCircuitMaxCooldown      = 4 * time.Hour
	DefaultCircuitOnClose          = "resume"
	DefaultCircuitCheckInterval    = time.Second
	DefaultCircuitCASRetries       = 5

	// Simulator defaults
	DefaultSimulatorMaxRows          = int64(100000)
	DefaultSimulatorMaxScanDuration  = 30 * time.Second
	DefaultSimulatorSampleSaturation = int64(10000)

	// Audit defaults
	DefaultAuditBackend          = "sqlite"
	DefaultAuditSQLitePath       = "data/audit.db"
	DefaultAuditExportJSONPretty = true
	DefaultAuditExportCSVHeader  = true

	// Alert defaults
	DefaultAlertBufferSize     = 256
	DefaultAlertWebhookTimeout = 10 * time.Second

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultLogOutput        = "stdout"
	DefaultMetricsEnabled   = true
	DefaultMetricsNamespace = "veridion"
	DefaultMetricsSubsystem = "sentinel"
	DefaultOpsEnabled       = true
	DefaultOpsListenAddress = "127.0.0.1:9464"
)

// ApplyDefaults fills in default values for all unset configuration fields.
// Booleans defaulting to true cannot be distinguished from an explicit
// false after YAML decoding, so they are handled by DefaultConfig instead;
// start from DefaultConfig and unmarshal over it to preserve explicit
// false values.
func ApplyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = DefaultStoreSQLitePath
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = DefaultStoreMaxOpenConns
	}
	if cfg.Store.MaxIdleConns == 0 {
		cfg.Store.MaxIdleConns = DefaultStoreMaxIdleConns
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = DefaultHistoryBackend
	}
	if cfg.History.SQLitePath == "" {
		cfg.History.SQLitePath = DefaultHistorySQLitePath
	}
	if cfg.History.RetainFor == 0 {
		cfg.History.RetainFor = DefaultHistoryRetainFor
	}

	if cfg.Aggregator.BufferSize == 0 {
		cfg.Aggregator.BufferSize = DefaultAggregatorBufferSize
	}
	if cfg.Aggregator.WindowHorizon == 0 {
		cfg.Aggregator.WindowHorizon = DefaultAggregatorWindowHorizon
	}
	if cfg.Aggregator.BucketSize == 0 {
		cfg.Aggregator.BucketSize = DefaultAggregatorBucketSize
	}
	if cfg.Aggregator.PersistTimeout == 0 {
		cfg.Aggregator.PersistTimeout = DefaultAggregatorPersistTimeout
	}

	if cfg.Rollout.Snapshot.RefreshInterval == 0 {
		cfg.Rollout.Snapshot.RefreshInterval = DefaultSnapshotRefreshInterval
	}
	if cfg.Rollout.Snapshot.StaleAfter == 0 {
		cfg.Rollout.Snapshot.StaleAfter = DefaultSnapshotStaleAfter
	}
	if cfg.Rollout.Evaluator.HalfOpenTrialPercent == 0 {
		cfg.Rollout.Evaluator.HalfOpenTrialPercent = DefaultHalfOpenTrialPercent
	}
	if cfg.Rollout.Canary.Interval == 0 {
		cfg.Rollout.Canary.Interval = DefaultCanaryInterval
	}
	if cfg.Rollout.Canary.CASRetries == 0 {
		cfg.Rollout.Canary.CASRetries = DefaultCanaryCASRetries
	}
	if cfg.Rollout.Circuit.RecoveryInterval == 0 {
		cfg.Rollout.Circuit.RecoveryInterval = DefaultCircuitRecoveryInterval
	}
	if cfg.Rollout.Circuit.MinSamples == 0 {
		cfg.Rollout.Circuit.MinSamples = DefaultCircuitMinSamples
	}
	if cfg.Rollout.Circuit.MaxCooldown == 0 {
		cfg.Rollout.Circuit.MaxCooldown = DefaultCircuitMaxCooldown
	}
	if cfg.Rollout.Circuit.OnClose == "" {
		cfg.Rollout.Circuit.OnClose = DefaultCircuitOnClose
	}
	if cfg.Rollout.Circuit.CheckInterval == 0 {
		cfg.Rollout.Circuit.CheckInterval = DefaultCircuitCheckInterval
	}
	if cfg.Rollout.Circuit.CASRetries == 0 {
		cfg.Rollout.Circuit.CASRetries = DefaultCircuitCASRetries
	}

	if cfg.Simulator.MaxRows == 0 {
		cfg.Simulator.MaxRows = DefaultSimulatorMaxRows
	}
	if cfg.Simulator.MaxScanDuration == 0 {
		cfg.Simulator.MaxScanDuration = DefaultSimulatorMaxScanDuration
	}
	if cfg.Simulator.SampleSaturation == 0 {
		cfg.Simulator.SampleSaturation = DefaultSimulatorSampleSaturation
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}

	if cfg.Alerts.BufferSize == 0 {
		cfg.Alerts.BufferSize = DefaultAlertBufferSize
	}
	if cfg.Alerts.Webhook.Timeout == 0 {
		cfg.Alerts.Webhook.Timeout = DefaultAlertWebhookTimeout
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Logging.Output == "" {
		cfg.Telemetry.Logging.Output = DefaultLogOutput
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Ops.ListenAddress == "" {
		cfg.Telemetry.Ops.ListenAddress = DefaultOpsListenAddress
	}
}

// DefaultConfig returns a configuration with every field at its default.
func DefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			WALMode: DefaultStoreWALMode,
		},
		History: HistoryConfig{
			RetentionSchedule: DefaultHistoryRetentionSchedule,
		},
		Audit: AuditConfig{
			ExportJSONPretty: DefaultAuditExportJSONPretty,
			ExportCSVHeader:  DefaultAuditExportCSVHeader,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Ops:     OpsConfig{Enabled: DefaultOpsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
