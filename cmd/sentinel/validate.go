package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/policy/rule"
)

var validateFlags struct {
	ruleFile string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and rule files",
	Long: `Validate the configuration file, and optionally a rule file, without
starting the engine.

Validation collects every problem instead of stopping at the first one.

Examples:
  # Validate the configuration
  sentinel validate --config /etc/sentinel/config.yaml

  # Validate a candidate rule as well
  sentinel validate --rule candidate.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.ruleFile, "rule", "r", "", "rule YAML file to validate")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "Configuration invalid (%d problems):\n", len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Fprintf(os.Stderr, "  - %s: %s\n", fe.Field, fe.Message)
			}
			return cli.NewConfigError("", "configuration validation failed")
		}
		return cli.NewConfigError("", err.Error())
	}
	fmt.Printf("✓ Configuration valid (%s backend, ops %v)\n",
		cfg.Store.Backend, cfg.Telemetry.Ops.Enabled)

	if validateFlags.ruleFile != "" {
		data, err := os.ReadFile(validateFlags.ruleFile)
		if err != nil {
			return cli.NewCommandError("validate", err)
		}
		if _, err := rule.ParseYAML(data); err != nil {
			return cli.NewCommandError("validate", fmt.Errorf("rule invalid: %w", err))
		}
		fmt.Printf("✓ Rule valid: %s\n", validateFlags.ruleFile)
	}
	return nil
}
