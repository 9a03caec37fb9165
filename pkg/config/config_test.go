package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if !cfg.Store.WALMode {
		t.Error("Store.WALMode must default to true")
	}
	if cfg.History.RetentionSchedule != "0 3 * * *" {
		t.Errorf("History.RetentionSchedule = %q", cfg.History.RetentionSchedule)
	}
	if cfg.Rollout.Canary.Interval != 5*time.Minute {
		t.Errorf("Canary.Interval = %v, want 5m", cfg.Rollout.Canary.Interval)
	}
	if cfg.Rollout.Circuit.OnClose != "resume" {
		t.Errorf("Circuit.OnClose = %q, want resume", cfg.Rollout.Circuit.OnClose)
	}
	if cfg.Rollout.Evaluator.HalfOpenTrialPercent != 5 {
		t.Errorf("HalfOpenTrialPercent = %d, want 5", cfg.Rollout.Evaluator.HalfOpenTrialPercent)
	}
	if !cfg.Telemetry.Metrics.Enabled || cfg.Telemetry.Metrics.Namespace != "veridion" {
		t.Errorf("Metrics = %+v", cfg.Telemetry.Metrics)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
store:
  backend: memory
rollout:
  canary:
    interval: 1m
  circuit:
    on_close: safe_tier
    safe_tier_index: 1
telemetry:
  logging:
    level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Rollout.Canary.Interval != time.Minute {
		t.Errorf("Canary.Interval = %v, want 1m", cfg.Rollout.Canary.Interval)
	}
	if cfg.Rollout.Circuit.OnClose != "safe_tier" || cfg.Rollout.Circuit.SafeTierIndex != 1 {
		t.Errorf("Circuit = %+v", cfg.Rollout.Circuit)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}

	// Untouched sections keep their defaults.
	if cfg.History.Backend != "sqlite" {
		t.Errorf("History.Backend = %q, want sqlite", cfg.History.Backend)
	}
	if cfg.Aggregator.BufferSize != DefaultAggregatorBufferSize {
		t.Errorf("Aggregator.BufferSize = %d", cfg.Aggregator.BufferSize)
	}
}

func TestLoadConfig_ExplicitFalseSurvives(t *testing.T) {
	path := writeConfigFile(t, `
store:
  wal_mode: false
telemetry:
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.WALMode {
		t.Error("explicit wal_mode: false must not be clobbered by the default")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit metrics.enabled: false must not be clobbered by the default")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "store: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed YAML must fail")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
store:
  backend: sqlite
`)

	t.Setenv("SENTINEL_STORE_BACKEND", "memory")
	t.Setenv("SENTINEL_CANARY_INTERVAL", "90s")
	t.Setenv("SENTINEL_CIRCUIT_MIN_SAMPLES", "50")
	t.Setenv("SENTINEL_LOG_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory from env", cfg.Store.Backend)
	}
	if cfg.Rollout.Canary.Interval != 90*time.Second {
		t.Errorf("Canary.Interval = %v, want 90s from env", cfg.Rollout.Canary.Interval)
	}
	if cfg.Rollout.Circuit.MinSamples != 50 {
		t.Errorf("Circuit.MinSamples = %d, want 50 from env", cfg.Rollout.Circuit.MinSamples)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn from env", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValue(t *testing.T) {
	path := writeConfigFile(t, "")

	t.Setenv("SENTINEL_STORE_BACKEND", "etcd")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("invalid backend from env must fail validation")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad store backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"bad cron", func(c *Config) { c.History.RetentionSchedule = "not cron" }, "history.retention_schedule"},
		{"negative retain", func(c *Config) { c.History.RetainFor = -time.Hour }, "history.retain_for"},
		{"stale under refresh", func(c *Config) {
			c.Rollout.Snapshot.RefreshInterval = time.Minute
			c.Rollout.Snapshot.StaleAfter = time.Second
		}, "rollout.snapshot.stale_after"},
		{"trial percent out of range", func(c *Config) { c.Rollout.Evaluator.HalfOpenTrialPercent = 101 }, "rollout.evaluator.half_open_trial_percent"},
		{"bad on_close", func(c *Config) { c.Rollout.Circuit.OnClose = "halt" }, "rollout.circuit.on_close"},
		{"webhook without url", func(c *Config) { c.Alerts.Webhook.Enabled = true }, "alerts.webhook.url"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }, "telemetry.logging.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q does not name field %q", err.Error(), tc.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "etcd"
	cfg.Rollout.Circuit.OnClose = "halt"
	cfg.Telemetry.Logging.Level = "trace"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}

	var verr ValidationError
	ok := false
	if v, isVal := err.(ValidationError); isVal {
		verr, ok = v, true
	}
	if !ok {
		t.Fatalf("error type = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("collected %d errors, want 3: %v", len(verr.Errors), verr)
	}
}

func TestSingleton(t *testing.T) {
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })

	cfg := DefaultConfig()
	cfg.Store.Backend = "memory"
	SetConfig(cfg)

	got := GetConfig()
	if got == nil || got.Store.Backend != "memory" {
		t.Errorf("GetConfig() = %+v", got)
	}
	if MustGetConfig() != got {
		t.Error("MustGetConfig() must return the same instance")
	}
}
