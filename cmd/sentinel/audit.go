package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veridion-hq/sentinel/pkg/audit"
	"veridion-hq/sentinel/pkg/cli"
)

var auditFlags struct {
	policyID  string
	timeRange string
	limit     int
	format    string
	output    string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the transition audit trail",
	Long: `Query and export the append-only transition audit trail.

Every stage, tier, and circuit transition is recorded with its reason
and triggering actor (canary controller, circuit breaker, or manual
override).

Subcommands:
  list   - List transition records
  export - Export transition records to JSON or CSV

Examples:
  # Recent transitions for one policy
  sentinel audit list --policy pol-1 --limit 20

  # Export a day of transitions to CSV
  sentinel audit export --format csv \
    --time-range "2026-08-23T00:00:00Z/2026-08-24T00:00:00Z" \
    --output transitions.csv`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transition records",
	RunE:  listTransitions,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export transition records",
	RunE:  exportTransitions,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditExportCmd)

	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().StringVar(&auditFlags.policyID, "policy", "", "filter by policy ID")
		c.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		c.Flags().IntVar(&auditFlags.limit, "limit", 0, "max records (0 = no cap)")
	}
	auditListCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")
	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "json", "export format: json, csv")
	auditExportCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
}

func buildAuditQuery() (audit.Query, error) {
	q := audit.Query{
		PolicyID: auditFlags.policyID,
		Limit:    auditFlags.limit,
	}
	if auditFlags.timeRange != "" {
		start, end, err := parseTimeRange(auditFlags.timeRange)
		if err != nil {
			return audit.Query{}, err
		}
		q.Start, q.End = start, end
	}
	return q, nil
}

func listTransitions(cmd *cobra.Command, args []string) error {
	q, err := buildAuditQuery()
	if err != nil {
		return cli.NewCommandError("audit list", err)
	}

	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("audit list", err)
	}
	defer eng.Close()

	records, err := eng.Transitions(context.Background(), q)
	if err != nil {
		return cli.NewCommandError("audit list", err)
	}

	if auditFlags.format == "json" {
		return cli.WriteJSON(os.Stdout, records)
	}

	if len(records) == 0 {
		fmt.Println("no transitions")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %-20s %-18s -> %-18s %-18s %s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.PolicyID, rec.FromState, rec.ToState, rec.TriggeredBy, rec.Reason)
	}
	return nil
}

func exportTransitions(cmd *cobra.Command, args []string) error {
	q, err := buildAuditQuery()
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}

	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}
	defer eng.Close()

	out := os.Stdout
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}
		defer f.Close()
		out = f
	}

	if err := eng.ExportTransitions(context.Background(), auditFlags.format, q, out); err != nil {
		return cli.NewCommandError("audit export", err)
	}
	if auditFlags.output != "" {
		fmt.Printf("✓ Exported to %s\n", auditFlags.output)
	}
	return nil
}
