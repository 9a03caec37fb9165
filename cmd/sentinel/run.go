package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/engine"
	"veridion-hq/sentinel/pkg/telemetry/logging"
)

var runFlags struct {
	opsListen   string
	logLevel    string
	dryRun      bool
	watchConfig bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Sentinel engine",
	Long: `Start the Sentinel engine with the specified configuration.

The engine loads the policy set, starts the canary and circuit breaker
control loops, and serves Prometheus metrics and health probes on the
ops listener.

Examples:
  # Start with default config
  sentinel run

  # Start with custom config
  sentinel run --config /etc/sentinel/config.yaml

  # Override the ops listener address
  sentinel run --ops-listen 0.0.0.0:9600

  # Validate config without starting
  sentinel run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.opsListen, "ops-listen", "", "override ops listener address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the engine")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch-config", true, "reload configuration on file change")
}

func runEngine(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.opsListen != "" {
		cfg.Telemetry.Ops.ListenAddress = runFlags.opsListen
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	_, closeLogs, err := logging.Setup(&cfg.Telemetry.Logging)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer closeLogs()

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Sentinel v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Build information surfaces on the ops version endpoint.
	engine.Version = Version
	engine.Commit = GitCommit
	engine.BuildTime = BuildDate

	eng, err := engine.New(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		eng.Close()
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Engine started")
	if cfg.Telemetry.Ops.Enabled {
		fmt.Printf("✓ Ops listener on %s\n", cfg.Telemetry.Ops.ListenAddress)
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Telemetry.Ops.ListenAddress)
		fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Telemetry.Ops.ListenAddress)
	}

	if runFlags.watchConfig {
		watcher, err := config.NewWatcher(cfgFile, slog.Default())
		if err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
			go func() {
				err := watcher.Watch(ctx, func(next *config.Config) {
					if err := eng.Reload(next); err != nil {
						slog.Error("configuration reload rejected, keeping previous settings",
							"path", cfgFile,
							"error", err,
						)
						return
					}
					slog.Info("configuration reloaded",
						"path", cfgFile,
						"note", "storage and listener changes require a restart",
					)
				})
				if err != nil {
					slog.Warn("config watcher exited", "error", err)
				}
			}()
		}
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sig := <-cli.WaitForShutdown()
	fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := eng.Stop(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Engine stopped")
	return nil
}
