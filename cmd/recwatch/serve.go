package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recwatch/recwatch"
	"github.com/recwatch/recwatch/config"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API, live channel and dashboard",
	Long: `Start the recwatch server.

The server will:
  - Load configuration from the YAML file, if given
  - Start the Telegram bot when a token is configured
  - Serve the control API, WebSocket/SSE live channel and dashboard
  - Start polling immediately with --auto-start, otherwise on POST /api/start

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  recwatch serve -c recwatch.yaml
  recwatch serve --url https://example.com/activity/70284 --interval 1m --auto-start`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("url", "", "activity page to watch (overrides config)")
	serveCmd.Flags().Duration("interval", 0, "time between checks (overrides config)")
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().Bool("auto-start", false, "start polling at boot (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, os.Stderr)
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
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("auto-start") {
		cfg.AutoStart, _ = cmd.Flags().GetBool("auto-start")
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, recwatch.WithLogger(logger))

	w, err := recwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	logger.Info("starting server",
		"port", w.Port(),
		"url", w.Target().URL(),
		"interval", w.Target().Interval().String(),
		"auto_start", cfg.AutoStart,
		"telegram", cfg.Telegram.Token != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
