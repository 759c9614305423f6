package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/recwatch/recwatch"
	"github.com/recwatch/recwatch/config"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the activity page once and exit",
	Long: `Load the activity page once, fire the local alerts if spots are open,
print the result and exit. Suitable for cron.

Exit codes:
  0 - Page was checked (available or not)
  1 - Page could not be loaded or the config is invalid

Example:
  recwatch check --url https://example.com/activity/70284
  recwatch check -c recwatch.yaml --no-alerts`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("url", "", "activity page to check (overrides config)")
	checkCmd.Flags().Bool("no-alerts", false, "skip desktop notification and browser auto-open")
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	shutdownTracing, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyOverrides(cmd, cfg)
	if noAlerts, _ := cmd.Flags().GetBool("no-alerts"); noAlerts {
		off := false
		cfg.Notify.Desktop = &off
		cfg.Notify.AutoOpen = &off
	}
	// the bot needs a running session to reach a chat, so check stays local
	cfg.Telegram.Token = ""

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, recwatch.WithLogger(logger))

	w, err := recwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := w.CheckOnce(ctx)
	printResult(cmd.OutOrStdout(), result)

	if result.Error != nil {
		return fmt.Errorf("check failed: %w", result.Error)
	}
	return nil
}

func printResult(out io.Writer, r recwatch.CheckResult) {
	openings := "unknown"
	if r.OpeningsCount != nil {
		openings = strconv.Itoa(*r.OpeningsCount)
	}

	fmt.Fprintf(out, "Activity:  %s\n", r.ActivityTitle)
	fmt.Fprintf(out, "URL:       %s\n", r.URL)
	fmt.Fprintf(out, "Available: %s\n", yesNo(r.Available))
	fmt.Fprintf(out, "Openings:  %s\n", openings)
	fmt.Fprintf(out, "Full:      %s\n", yesNo(r.IsFull))
	fmt.Fprintf(out, "Waitlist:  %s\n", yesNo(r.HasWaitlist))
	if r.Error != nil {
		fmt.Fprintf(out, "Error:     %v\n", r.Error)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
