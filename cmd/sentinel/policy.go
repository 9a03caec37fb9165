package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/engine"
	"veridion-hq/sentinel/pkg/policy"
)

var policyFlags struct {
	file    string
	stage   string
	tier    int
	circuit string
	reason  string
	actor   string
	format  string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and manage rollout policies",
	Long: `Inspect and manage rollout policies.

Subcommands:
  list     - List all policies with their rollout state
  show     - Show one policy record
  create   - Create a policy from a JSON file
  versions - Show the immutable version history of a policy
  override - Manually override stage, tier, or circuit state

Examples:
  # List all policies
  sentinel policy list

  # Show one policy as JSON
  sentinel policy show pol-1 --format json

  # Create a policy
  sentinel policy create --file policy.json

  # Force a policy back to shadow
  sentinel policy override pol-1 --stage SHADOW --reason "block rate too high"

  # Pin the breaker open during an incident
  sentinel policy override pol-1 --circuit MANUAL --reason "incident 4821" --actor ops`,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all policies",
	RunE:  listPolicies,
}

var policyShowCmd = &cobra.Command{
	Use:   "show <policy-id>",
	Short: "Show one policy record",
	Args:  cobra.ExactArgs(1),
	RunE:  showPolicy,
}

var policyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a policy from a JSON file",
	Long: `Create a policy from a JSON file.

The file holds one policy record: id, name, rule, thresholds, and
optionally a tier ladder. New policies start in SHADOW unless the file
says otherwise.`,
	RunE: createPolicy,
}

var policyVersionsCmd = &cobra.Command{
	Use:   "versions <policy-id>",
	Short: "Show the version history of a policy",
	Args:  cobra.ExactArgs(1),
	RunE:  showPolicyVersions,
}

var policyOverrideCmd = &cobra.Command{
	Use:   "override <policy-id>",
	Short: "Manually override policy state",
	Long: `Manually override the stage, tier, or circuit state of a policy.

Overrides commit through the same compare-and-swap path the controllers
use and are recorded in the audit trail as MANUAL transitions. Setting
the circuit state to MANUAL pins it against the controllers; setting it
back to CLOSED hands control back.

Examples:
  # Promote straight to full enforcement
  sentinel policy override pol-1 --stage ENFORCING --reason "legal deadline"

  # Drop back two tiers
  sentinel policy override pol-1 --tier 1 --reason "support backlog"

  # Pin the breaker open
  sentinel policy override pol-1 --circuit MANUAL --reason "incident 4821"`,
	Args: cobra.ExactArgs(1),
	RunE: overridePolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd, policyShowCmd, policyCreateCmd, policyVersionsCmd, policyOverrideCmd)

	policyListCmd.Flags().StringVar(&policyFlags.format, "format", "text", "output format: text, json")
	policyShowCmd.Flags().StringVar(&policyFlags.format, "format", "json", "output format: text, json")
	policyCreateCmd.Flags().StringVarP(&policyFlags.file, "file", "f", "", "policy JSON file (required)")
	policyVersionsCmd.Flags().StringVar(&policyFlags.format, "format", "json", "output format: text, json")

	policyOverrideCmd.Flags().StringVar(&policyFlags.stage, "stage", "", "target stage (DISABLED, SHADOW, CANARY, ENFORCING)")
	policyOverrideCmd.Flags().IntVar(&policyFlags.tier, "tier", 0, "target ladder index")
	policyOverrideCmd.Flags().StringVar(&policyFlags.circuit, "circuit", "", "target circuit state (CLOSED, OPEN, HALF_OPEN, MANUAL)")
	policyOverrideCmd.Flags().StringVar(&policyFlags.reason, "reason", "", "override reason (required)")
	policyOverrideCmd.Flags().StringVar(&policyFlags.actor, "actor", "", "who is performing the override")

	policyCreateCmd.MarkFlagRequired("file")
	policyOverrideCmd.MarkFlagRequired("reason")
}

// openEngine builds an engine for a one-shot command. The caller closes it.
func openEngine() (*engine.Engine, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return engine.New(config.GetConfig())
}

func listPolicies(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("policy list", err)
	}
	defer eng.Close()

	policies, err := eng.ListPolicies(context.Background())
	if err != nil {
		return cli.NewCommandError("policy list", err)
	}

	if policyFlags.format == "json" {
		return cli.WriteJSON(os.Stdout, policies)
	}

	if len(policies) == 0 {
		fmt.Println("no policies")
		return nil
	}
	fmt.Printf("%-20s %-12s %6s %10s %8s  %s\n", "ID", "STAGE", "TIER", "CIRCUIT", "VERSION", "NAME")
	for _, p := range policies {
		fmt.Printf("%-20s %-12s %5d%% %10s %8d  %s\n",
			p.ID, p.Stage, p.TierPercent(), p.CircuitState, p.Version, p.Name)
	}
	return nil
}

func showPolicy(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("policy show", err)
	}
	defer eng.Close()

	p, err := eng.GetPolicy(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("policy show", err)
	}

	if policyFlags.format == "text" {
		fmt.Printf("ID:            %s\n", p.ID)
		fmt.Printf("Name:          %s\n", p.Name)
		fmt.Printf("Stage:         %s\n", p.Stage)
		fmt.Printf("Tier:          %d (%d%%)\n", p.TierIndex, p.TierPercent())
		fmt.Printf("Circuit:       %s\n", p.CircuitState)
		fmt.Printf("Version:       %d\n", p.Version)
		fmt.Printf("Rule:          %s\n", p.Rule.String())
		fmt.Printf("Updated:       %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	}
	return cli.WriteJSON(os.Stdout, p)
}

func createPolicy(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(policyFlags.file)
	if err != nil {
		return cli.NewCommandError("policy create", err)
	}

	var p policy.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return cli.NewCommandError("policy create", fmt.Errorf("invalid policy file: %w", err))
	}
	if p.Stage == "" {
		p.Stage = policy.StageShadow
	}
	if p.CircuitState == "" {
		p.CircuitState = policy.CircuitClosed
	}

	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("policy create", err)
	}
	defer eng.Close()

	if err := eng.CreatePolicy(context.Background(), &p); err != nil {
		return cli.NewCommandError("policy create", err)
	}

	fmt.Printf("✓ Policy %s created in %s\n", p.ID, p.Stage)
	return nil
}

func showPolicyVersions(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("policy versions", err)
	}
	defer eng.Close()

	versions, err := eng.PolicyVersions(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("policy versions", err)
	}

	if policyFlags.format == "text" {
		for _, v := range versions {
			fmt.Printf("v%-6d %s  %s\n", v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Rule.String())
		}
		return nil
	}
	return cli.WriteJSON(os.Stdout, versions)
}

func overridePolicy(cmd *cobra.Command, args []string) error {
	ov := engine.Override{
		Reason: policyFlags.reason,
		Actor:  policyFlags.actor,
	}
	if policyFlags.stage != "" {
		stage := policy.Stage(policyFlags.stage)
		ov.Stage = &stage
	}
	if cmd.Flags().Changed("tier") {
		tier := policyFlags.tier
		ov.TierIndex = &tier
	}
	if policyFlags.circuit != "" {
		state := policy.CircuitState(policyFlags.circuit)
		ov.CircuitState = &state
	}

	eng, err := openEngine()
	if err != nil {
		return cli.NewCommandError("policy override", err)
	}
	defer eng.Close()

	updated, err := eng.ApplyOverride(context.Background(), args[0], ov)
	if err != nil {
		return cli.NewCommandError("policy override", err)
	}

	fmt.Printf("✓ Policy %s now %s (circuit %s, version %d)\n",
		updated.ID, policy.StageState(updated.Stage, updated.TierPercent()),
		updated.CircuitState, updated.Version)
	return nil
}
