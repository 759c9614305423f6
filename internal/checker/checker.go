package checker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recwatch/recwatch/internal/fetcher"
)

// sideEffectTimeout bounds a single alert delivery.
const sideEffectTimeout = 30 * time.Second

// PageFetcher loads an activity page and returns its extracted fields.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts fetcher.Options) (fetcher.Fields, error)
}

// Notifier delivers local alerts.
type Notifier interface {
	NotifyLocal(ctx context.Context, title, message string) error
	OpenInBrowser(ctx context.Context, url string) error
}

// BotNotifier delivers a chat message if a bot session is connected.
// Implementations must not block for long and handle their own failures.
type BotNotifier interface {
	Notify(ctx context.Context, text string)
}

// Result is the outcome of one availability check.
type Result struct {
	Timestamp     time.Time `json:"timestamp"`
	Available     bool      `json:"available"`
	OpeningsCount *int      `json:"openingsCount"`
	IsFull        bool      `json:"isFull"`
	HasWaitlist   bool      `json:"hasWaitlist"`
	ActivityTitle string    `json:"activityTitle"`
	URL           string    `json:"url"`
	Error         *string   `json:"error"`

	err error
}

// Failed reports whether the check could not load the page.
func (r Result) Failed() bool {
	return r.Error != nil
}

// Err returns the fetch error behind a failed result, or nil.
func (r Result) Err() error {
	return r.err
}

// Options controls how a [Checker] fetches and alerts.
type Options struct {
	Fetch fetcher.Options

	// Desktop enables the local desktop notification.
	Desktop bool

	// AutoOpen opens the activity page in the browser when spots appear.
	AutoOpen bool

	// AlertTitle is the desktop notification title. Empty means
	// [DefaultAlertTitle].
	AlertTitle string
}

// Checker performs availability checks.
//
// Checker is safe for concurrent use. Alerts run in background goroutines;
// call [Checker.Wait] to block until they have finished.
type Checker struct {
	fetcher  PageFetcher
	notifier Notifier
	bot      BotNotifier
	opts     Options
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New creates a [Checker]. notifier and bot may be nil to disable those
// channels.
func New(f PageFetcher, notifier Notifier, bot BotNotifier, opts Options, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AlertTitle == "" {
		opts.AlertTitle = DefaultAlertTitle
	}
	return &Checker{
		fetcher:  f,
		notifier: notifier,
		bot:      bot,
		opts:     opts,
		logger:   logger.With("component", "checker"),
	}
}

// Check fetches url once and interprets the page.
//
// A spot is available when the page shows an enroll indicator and is not
// marked full. Fetch failures yield a Result with Error set and Available
// false. When Available is true the configured alerts are dispatched without
// waiting for them.
func (c *Checker) Check(ctx context.Context, url string) Result {
	result := Result{URL: url}

	fields, err := c.safeFetch(ctx, url)
	result.Timestamp = time.Now()
	if err != nil {
		msg := err.Error()
		result.Error = &msg
		result.err = err
		c.logger.Warn("check failed", "url", url, "error", err)
		return result
	}

	result.Available = fields.HasEnrollIndicator && !fields.IsFull
	result.OpeningsCount = fields.OpeningsCount
	result.IsFull = fields.IsFull
	result.HasWaitlist = fields.HasWaitlist
	result.ActivityTitle = fields.ActivityTitle

	c.logger.Info("check completed",
		"url", url,
		"available", result.Available,
		"full", result.IsFull,
		"title", result.ActivityTitle,
	)

	if result.Available {
		c.alert(result)
	}
	return result
}

// Wait blocks until all dispatched alerts have completed.
func (c *Checker) Wait() {
	c.wg.Wait()
}

// safeFetch calls the page fetcher with panic recovery.
func (c *Checker) safeFetch(ctx context.Context, url string) (fields fetcher.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("fetcher panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: fetcher panic (correlation_id: %s)", fetcher.ErrNavigation, correlationID)
		}
	}()
	return c.fetcher.Fetch(ctx, url, c.opts.Fetch)
}

func (c *Checker) alert(r Result) {
	if c.notifier != nil {
		if c.opts.Desktop {
			title, body := c.opts.AlertTitle, FormatAlert(r)
			c.sideEffect("desktop", func(ctx context.Context) error {
				return c.notifier.NotifyLocal(ctx, title, body)
			})
		}
		if c.opts.AutoOpen {
			c.sideEffect("open", func(ctx context.Context) error {
				return c.notifier.OpenInBrowser(ctx, r.URL)
			})
		}
	}
	if c.bot != nil {
		text := FormatBotMessage(r)
		c.sideEffect("bot", func(ctx context.Context) error {
			c.bot.Notify(ctx, text)
			return nil
		})
	}
}

// sideEffect runs fn in the background on a context detached from the
// check, logging its outcome. Panics are recovered.
func (c *Checker) sideEffect(name string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					correlationID := uuid.NewString()
					c.logger.Error("side effect panic",
						"effect", name,
						"correlation_id", correlationID,
						"panic", fmt.Sprintf("%v", r),
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("side effect panic (correlation_id: %s)", correlationID)
				}
			}()
			return fn(ctx)
		}()

		if err != nil {
			c.logger.Error("side effect failed", "effect", name, "error", err)
			return
		}
		c.logger.Debug("side effect completed", "effect", name)
	}()
}
