// Package main is the entry point for the recwatch CLI.
//
// recwatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	recwatch serve -c recwatch.yaml    # Start the control API and dashboard
//	recwatch check --url <activity>    # Check once and exit
//	recwatch validate -c recwatch.yaml # Validate configuration
//	recwatch version                   # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/recwatch/recwatch/config"
	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "recwatch",
	Short: "Watch a rec-center activity page for open spots",
	Long: `recwatch polls a recreation-center activity page and alerts you when
enrollment opens up: desktop notification, browser tab and Telegram message.

Quick start:
  1. Run: recwatch serve --url https://.../activity/search/detail/70284
  2. Open http://localhost:3001 and press Start
  3. Optionally message your bot /start after POST /api/bot/start

Page engines:
  Activity pages render their enroll button with scripts, so pages are
  loaded in headless Chrome by default (--engine browser). --engine http
  reads static HTML only and never sees enrollment on the default
  ActiveCommunities page; use it for server-rendered pages.

Example config:
  port: 3001
  url: https://anc.ca.apm.activecommunities.com/burnaby/activity/search/detail/70284
  interval: 30s
  telegram:
    token: ${TELEGRAM_BOT_TOKEN:-}`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return config.LoadEnvFile(envFile)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "recwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "path to config file (defaults apply when omitted)")
	pf.String("env-file", ".env", "dotenv file loaded before the config is expanded")
	pf.String("log-format", "text", "log output format: text or json")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("engine", "", "page engine: browser (headless Chrome) or http (static HTML, cannot see script-rendered enrollment)")
	pf.String("otlp-endpoint", "", "export traces to this OTLP endpoint, e.g. http://localhost:4318 (tracing is off when empty)")
	pf.String("otlp-protocol", "http", "OTLP transport: http or grpc")

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	format, _ := cmd.Flags().GetString("log-format")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	switch format {
	case "text", "":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
}

// loadConfig reads --config, or returns defaults when it is not set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyOverrides applies --url, --interval and --engine on top of the
// loaded config.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("engine") {
		cfg.Fetch.Engine, _ = cmd.Flags().GetString("engine")
	}
	if cmd.Flags().Changed("url") {
		cfg.URL, _ = cmd.Flags().GetString("url")
	}
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		d, _ := cmd.Flags().GetDuration("interval")
		cfg.Interval = config.Duration(d)
	}
}
