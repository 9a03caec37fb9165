package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - progressive policy rollout and safety control engine",
	Long: `Sentinel is a progressive policy rollout and safety control engine.

It advances compliance policies from shadow evaluation through a
percentage-based canary ladder to full enforcement, driven by live
traffic metrics:
  - Shadow evaluation records what a rule would do without enforcing it
  - Canary rollout enforces on a growing deterministic traffic cohort
  - A circuit breaker bypasses enforcement when error rates spike
  - Every state transition lands in an append-only audit trail
  - Candidate rules can be replayed against recorded history`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
