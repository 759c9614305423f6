package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recwatch/recwatch"
)

func main() {
	// start mock activity page (see mock_page.go)
	go StartMockActivityPage(":9999")
	time.Sleep(100 * time.Millisecond)

	target, err := recwatch.NewTarget("http://localhost:9999/activity/70284", 5*time.Second)
	if err != nil {
		slog.Error("failed to create target", "error", err)
		os.Exit(1)
	}

	w, err := recwatch.New(
		recwatch.WithTarget(target),
		recwatch.WithPort(3001),
		recwatch.WithAutoStart(true),
		recwatch.WithFetchOptions(recwatch.FetchOptions{Engine: recwatch.EngineHTTP}),
		// keep the demo quiet: no desktop popups or browser tabs
		recwatch.WithNotifyOptions(recwatch.NotifyOptions{}),
		recwatch.WithResultCallback(func(r recwatch.CheckResult) {
			slog.Info("check",
				"available", r.Available,
				"full", r.IsFull,
				"waitlist", r.HasWaitlist,
				"count", r.CheckCount,
			)
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  recwatch demo")
	fmt.Println()
	fmt.Println("  Dashboard:  http://localhost:3001")
	fmt.Println("  Mock page:  http://localhost:9999/activity/70284")
	fmt.Println("  The mock flips between full and open every 20-60 seconds.")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		slog.Error("recwatch error", "error", err)
		os.Exit(1)
	}
}
