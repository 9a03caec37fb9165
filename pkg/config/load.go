package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Decoding starts from DefaultConfig so booleans that default to true
// survive being absent from the file; explicit values in the file win.
// The result is validated before being returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention SENTINEL_SECTION_FIELD (e.g. SENTINEL_STORE_BACKEND) and
// always take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envString("SENTINEL_STORE_BACKEND", &cfg.Store.Backend)
	envString("SENTINEL_STORE_SQLITE_PATH", &cfg.Store.SQLitePath)
	envInt("SENTINEL_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns)
	envDuration("SENTINEL_STORE_BUSY_TIMEOUT", &cfg.Store.BusyTimeout)

	envString("SENTINEL_HISTORY_BACKEND", &cfg.History.Backend)
	envString("SENTINEL_HISTORY_SQLITE_PATH", &cfg.History.SQLitePath)
	envString("SENTINEL_HISTORY_RETENTION_SCHEDULE", &cfg.History.RetentionSchedule)
	envDuration("SENTINEL_HISTORY_RETAIN_FOR", &cfg.History.RetainFor)

	envInt("SENTINEL_AGGREGATOR_BUFFER_SIZE", &cfg.Aggregator.BufferSize)
	envDuration("SENTINEL_AGGREGATOR_WINDOW_HORIZON", &cfg.Aggregator.WindowHorizon)
	envDuration("SENTINEL_AGGREGATOR_BUCKET_SIZE", &cfg.Aggregator.BucketSize)

	envDuration("SENTINEL_SNAPSHOT_REFRESH_INTERVAL", &cfg.Rollout.Snapshot.RefreshInterval)
	envDuration("SENTINEL_SNAPSHOT_STALE_AFTER", &cfg.Rollout.Snapshot.StaleAfter)
	envInt("SENTINEL_EVALUATOR_HALF_OPEN_TRIAL_PERCENT", &cfg.Rollout.Evaluator.HalfOpenTrialPercent)
	envDuration("SENTINEL_CANARY_INTERVAL", &cfg.Rollout.Canary.Interval)
	envDuration("SENTINEL_CIRCUIT_RECOVERY_INTERVAL", &cfg.Rollout.Circuit.RecoveryInterval)
	envInt64("SENTINEL_CIRCUIT_MIN_SAMPLES", &cfg.Rollout.Circuit.MinSamples)
	envDuration("SENTINEL_CIRCUIT_MAX_COOLDOWN", &cfg.Rollout.Circuit.MaxCooldown)
	envString("SENTINEL_CIRCUIT_ON_CLOSE", &cfg.Rollout.Circuit.OnClose)

	envInt64("SENTINEL_SIMULATOR_MAX_ROWS", &cfg.Simulator.MaxRows)
	envDuration("SENTINEL_SIMULATOR_MAX_SCAN_DURATION", &cfg.Simulator.MaxScanDuration)

	envString("SENTINEL_AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("SENTINEL_AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)

	envString("SENTINEL_ALERTS_WEBHOOK_URL", &cfg.Alerts.Webhook.URL)
	if val := os.Getenv("SENTINEL_ALERTS_WEBHOOK_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Alerts.Webhook.Enabled = b
		}
	}

	envString("SENTINEL_LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("SENTINEL_LOG_FORMAT", &cfg.Telemetry.Logging.Format)
	envString("SENTINEL_LOG_OUTPUT", &cfg.Telemetry.Logging.Output)
	envString("SENTINEL_OPS_LISTEN_ADDRESS", &cfg.Telemetry.Ops.ListenAddress)
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(name string, dst *int64) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
