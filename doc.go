// Package recwatch watches a recreation-center activity page and alerts when
// enrollment spots open up.
//
// A [Watcher] checks the page on an interval, decides whether spots are
// available (an enroll button is present and the activity is not full), and
// then shows a desktop notification, opens the page in the browser and, when
// a Telegram bot is connected, sends a chat message. A small HTTP server
// exposes start/stop/config controls and pushes every result to connected
// browsers over WebSocket or Server-Sent Events.
//
// # Quick Start
//
//	target, _ := recwatch.NewTarget("https://example.com/activity/70284", time.Minute)
//	w, _ := recwatch.New(
//	    recwatch.WithTarget(target),
//	    recwatch.WithAutoStart(true),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Polling
//
// Polling checks immediately when started and then reschedules itself one
// interval after each check completes, so checks never overlap. Starting
// while already polling is a no-op. Stopping cancels future checks but lets
// an in-flight check finish and report.
//
// # Errors
//
// A page that cannot be loaded yields a [CheckResult] with Error set; it
// never stops the polling loop. Alert delivery failures are logged only.
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/fetcher: page loading and text extraction
//   - internal/checker: one check plus alert side effects
//   - internal/poller: start/stop polling loop
//   - internal/bot: chat-bot session lifecycle and Telegram sessions
//   - internal/notify: desktop notifications and browser launch
//   - internal/hub: fan-out of live messages
//   - internal/control: control operations and validation
//   - internal/server: HTTP routes, WebSocket and SSE
//   - dashboard: embedded control page
package recwatch
