package main

import (
	"fmt"

	"github.com/recwatch/recwatch/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a recwatch configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  recwatch validate -c recwatch.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	target, err := config.BuildTarget(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:       %d\n", cfg.Port)
	fmt.Fprintf(out, "  URL:        %s\n", target.URL())
	fmt.Fprintf(out, "  Interval:   %s\n", target.Interval())
	fmt.Fprintf(out, "  Auto start: %s\n", yesNo(cfg.AutoStart))
	fmt.Fprintf(out, "  Telegram:   %s\n", yesNo(cfg.Telegram.Token != ""))

	return nil
}
