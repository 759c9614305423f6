// Package notify delivers local alerts: a desktop notification and opening a
// URL in the default browser.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/pkg/browser"
)

// ErrDelivery is wrapped by every notification failure.
var ErrDelivery = errors.New("notification delivery failed")

var quietBrowser sync.Once

// Local sends desktop notifications through beeep and opens URLs through
// pkg/browser.
type Local struct {
	// Sound plays the system alert sound with the notification.
	Sound bool

	notify func(title, message string) error
	alert  func(title, message string) error
	open   func(url string) error
	logger *slog.Logger
}

// New creates a [Local] notifier with sound enabled.
func New(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	// xdg-open and friends write to the terminal otherwise
	quietBrowser.Do(func() {
		browser.Stdout = io.Discard
		browser.Stderr = io.Discard
	})
	return &Local{
		Sound:  true,
		notify: func(title, message string) error { return beeep.Notify(title, message, "") },
		alert:  func(title, message string) error { return beeep.Alert(title, message, "") },
		open:   browser.OpenURL,
		logger: logger.With("component", "notify"),
	}
}

// NotifyLocal shows a desktop notification with the given title and message.
func (l *Local) NotifyLocal(ctx context.Context, title, message string) error {
	send := l.notify
	if l.Sound {
		send = l.alert
	}
	if err := deliver(ctx, func() error { return send(title, message) }); err != nil {
		return fmt.Errorf("%w: desktop notification: %v", ErrDelivery, err)
	}

	l.logger.Debug("desktop notification sent", "title", title, "sound", l.Sound)
	return nil
}

// OpenInBrowser opens url in the default browser.
func (l *Local) OpenInBrowser(ctx context.Context, url string) error {
	if err := deliver(ctx, func() error { return l.open(url) }); err != nil {
		return fmt.Errorf("%w: open browser: %v", ErrDelivery, err)
	}

	l.logger.Debug("opened url in browser", "url", url)
	return nil
}

// deliver runs fn but returns early when ctx is done. fn keeps running in
// the background in that case since neither library takes a context.
func deliver(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
