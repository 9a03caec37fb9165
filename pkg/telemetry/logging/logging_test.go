package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veridion-hq/sentinel/pkg/config"
)

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger, closeFn, err := Setup(&config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer closeFn()

	if logger == nil {
		t.Fatal("Setup() returned nil logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level must be enabled")
	}
	if slog.Default() != logger {
		t.Error("Setup() must install the logger as the default")
	}
}

func TestSetup_FileOutput(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "sentinel.log")
	logger, closeFn, err := Setup(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	logger.Info("engine started", "version", "test")
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["msg"] != "engine started" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestSetup_Invalid(t *testing.T) {
	if _, _, err := Setup(&config.LoggingConfig{Level: "trace"}); err == nil {
		t.Error("unknown level must fail")
	}
	if _, _, err := Setup(&config.LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("unknown format must fail")
	}
}

func TestContextFields(t *testing.T) {
	ctx := WithPolicyID(context.Background(), "pol-1")
	ctx = WithAgentID(ctx, "agent-7")
	ctx = WithRequestID(ctx, "req-42")

	if GetPolicyID(ctx) != "pol-1" || GetAgentID(ctx) != "agent-7" || GetRequestID(ctx) != "req-42" {
		t.Errorf("context accessors returned %q %q %q", GetPolicyID(ctx), GetAgentID(ctx), GetRequestID(ctx))
	}

	fields := ContextFields(ctx)
	if len(fields) != 6 {
		t.Fatalf("ContextFields() returned %d elements, want 6", len(fields))
	}

	if fields := ContextFields(context.Background()); len(fields) != 0 {
		t.Errorf("empty context must yield no fields, got %v", fields)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithPolicyID(context.Background(), "pol-1")
	FromContext(ctx, logger).Info("evaluated")

	if out := buf.String(); !strings.Contains(out, "policy_id=pol-1") {
		t.Errorf("log output missing context field: %q", out)
	}

	if FromContext(context.Background(), logger) != logger {
		t.Error("empty context must return the logger unchanged")
	}
}
