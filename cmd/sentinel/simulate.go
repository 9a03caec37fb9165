package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/policy/rule"
	"veridion-hq/sentinel/pkg/simulate"
)

var simulateFlags struct {
	ruleFile  string
	policyID  string
	timeRange string
	window    time.Duration
	format    string
	output    string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Estimate the impact of a candidate rule",
	Long: `Replay a candidate rule against recorded outcome history and report
how much traffic it would have blocked.

The report includes the total block rate, per-agent and per-attribute
breakdowns, an impact level (low, medium, high, critical), and a
confidence score reflecting sample size and coverage.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-23T00:00:00Z/2026-08-24T00:00:00Z"

Examples:
  # Replay the last 24 hours
  sentinel simulate --rule candidate.yaml

  # Replay a specific window for one policy
  sentinel simulate --rule candidate.yaml --policy pol-1 \
    --time-range "2026-08-23T00:00:00Z/2026-08-24T00:00:00Z"

  # Export the report
  sentinel simulate --rule candidate.yaml --format json --output report.json`,
	RunE: runSimulation,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateFlags.ruleFile, "rule", "r", "", "candidate rule YAML file (required)")
	simulateCmd.Flags().StringVar(&simulateFlags.policyID, "policy", "", "restrict replay to one policy's history")
	simulateCmd.Flags().StringVar(&simulateFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	simulateCmd.Flags().DurationVar(&simulateFlags.window, "window", 24*time.Hour, "lookback window when no time range is given")
	simulateCmd.Flags().StringVar(&simulateFlags.format, "format", "text", "output format: text, json")
	simulateCmd.Flags().StringVarP(&simulateFlags.output, "output", "o", "", "output file (default: stdout)")

	simulateCmd.MarkFlagRequired("rule")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(simulateFlags.ruleFile)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}
	node, err := rule.ParseYAML(data)
	if err != nil {
		return cli.NewCommandError("simulate", fmt.Errorf("invalid rule: %w", err))
	}

	req := simulate.Request{
		Rule:     node,
		PolicyID: simulateFlags.policyID,
		Start:    time.Now().Add(-simulateFlags.window),
		End:      time.Now(),
	}
	if simulateFlags.timeRange != "" {
		start, end, err := parseTimeRange(simulateFlags.timeRange)
		if err != nil {
			return cli.NewCommandError("simulate", err)
		}
		req.Start, req.End = start, end
	}

	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}
	defer eng.Close()

	report, err := eng.Simulate(context.Background(), req)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}

	out := os.Stdout
	if simulateFlags.output != "" {
		f, err := os.Create(simulateFlags.output)
		if err != nil {
			return cli.NewCommandError("simulate", err)
		}
		defer f.Close()
		out = f
	}

	if simulateFlags.format == "json" {
		return cli.WriteJSON(out, report)
	}

	fmt.Fprintf(out, "Replayed:    %d outcomes\n", report.Total)
	fmt.Fprintf(out, "Would block: %d (%.1f%%)\n", report.WouldBlock, report.BlockRate*100)
	fmt.Fprintf(out, "Impact:      %s\n", report.ImpactLevel)
	fmt.Fprintf(out, "Confidence:  %.2f (sample %.2f, coverage %.2f, evenness %.2f)\n",
		report.Confidence, report.SampleScore, report.Coverage, report.Evenness)
	if len(report.FullyBlockedAgents) > 0 {
		fmt.Fprintf(out, "Fully blocked agents: %s\n", strings.Join(report.FullyBlockedAgents, ", "))
	}
	if len(report.PartiallyBlockedAgents) > 0 {
		fmt.Fprintf(out, "Partially blocked agents: %s\n", strings.Join(report.PartiallyBlockedAgents, ", "))
	}
	return nil
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(s string) (time.Time, time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	return start, end, nil
}
