package recwatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recwatch/recwatch/dashboard"
	"github.com/recwatch/recwatch/internal/bot"
	"github.com/recwatch/recwatch/internal/checker"
	"github.com/recwatch/recwatch/internal/control"
	"github.com/recwatch/recwatch/internal/fetcher"
	"github.com/recwatch/recwatch/internal/hub"
	"github.com/recwatch/recwatch/internal/notify"
	"github.com/recwatch/recwatch/internal/poller"
	"github.com/recwatch/recwatch/internal/server"
)

const (
	defaultPort = 3001

	// shutdownTimeout bounds waiting for an in-flight check on shutdown.
	shutdownTimeout = 10 * time.Second

	bootBotTimeout = 30 * time.Second
)

// Watcher polls an activity page, alerts when spots open up, and serves the
// control API and live channel.
//
// The typical lifecycle is:
//
//	w, err := recwatch.New(recwatch.WithAutoStart(true))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
type Watcher struct {
	target          Target
	port            int
	title           string
	logger          *slog.Logger
	fetcher         checker.PageFetcher
	ownedFetcher    ownedFetcher
	notifier        Notifier
	botFactory      bot.SessionFactory
	telegramToken   string
	autoStart       bool
	resultCallbacks []func(CheckResult)
	allowedOrigins  []string
	fetchOptions    FetchOptions
	notifyOptions   NotifyOptions
}

// New creates a [Watcher] with the given options.
//
// Defaults:
//   - Target: [DefaultURL] every 30 seconds
//   - Port: 3001
//   - Desktop notification and browser auto-open enabled
//   - Page fetcher: headless Chrome, see [FetchOptions]
//   - Bot: Telegram, started on demand or with [WithTelegramToken]
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{
		target: DefaultTarget(),
		port:   defaultPort,
		notifyOptions: NotifyOptions{
			Desktop:  true,
			AutoOpen: true,
		},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		target:          cfg.target,
		port:            cfg.port,
		title:           cfg.title,
		logger:          logger,
		notifier:        cfg.notifier,
		telegramToken:   cfg.telegramToken,
		autoStart:       cfg.autoStart,
		resultCallbacks: cfg.resultCallbacks,
		allowedOrigins:  cfg.allowedOrigins,
		fetchOptions:    cfg.fetchOptions,
		notifyOptions:   cfg.notifyOptions,
	}

	if cfg.fetcher != nil {
		w.fetcher = fetcherAdapter{f: cfg.fetcher}
	} else {
		w.ownedFetcher = newOwnedFetcher(cfg.fetchOptions, logger)
		w.fetcher = w.ownedFetcher
	}
	if w.notifier == nil {
		w.notifier = notify.New(logger)
	}
	if cfg.botFactory != nil {
		w.botFactory = botFactoryAdapter{f: cfg.botFactory}
	} else {
		w.botFactory = &bot.TelegramFactory{Logger: logger}
	}

	return w, nil
}

// ownedFetcher is a built-in fetcher the watcher closes on shutdown.
type ownedFetcher interface {
	checker.PageFetcher
	Close()
}

func newOwnedFetcher(o FetchOptions, logger *slog.Logger) ownedFetcher {
	if o.Engine == EngineHTTP {
		return fetcher.New(logger)
	}
	return fetcher.NewBrowser(o.BrowserPath, logger)
}

// Target returns the configured target.
func (w *Watcher) Target() Target {
	return w.target
}

// Port returns the configured HTTP port.
func (w *Watcher) Port() int {
	return w.port
}

// Start serves the control API and runs polling until ctx is cancelled.
//
// During execution:
//
//   - The HTTP server listens on the configured port
//   - The bot starts if a token was configured; failure is logged
//   - Polling starts if [WithAutoStart] was set, otherwise on request
//
// Returns nil on graceful shutdown and an error if the HTTP server cannot
// start.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	w.logger.Info("recwatch starting", "url", w.target.URL(), "interval", w.target.Interval().String())

	h := hub.New(w.logger)
	botManager := bot.NewManager(w.botFactory, h, w.logger)
	chk := w.newChecker(botManager)

	ctrl, err := poller.New(chk, h, poller.Config{URL: w.target.URL(), Interval: w.target.Interval()}, w.logger)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}
	api := control.New(ctrl, botManager, w.logger)
	ctrl.SetStatusMessage(func() any { return api.Snapshot() })

	if len(w.resultCallbacks) > 0 {
		ctrl.OnResult(func(r checker.Result, count int) {
			public := checkerResultToPublic(r, count)
			for _, cb := range w.resultCallbacks {
				invokeCallbackSafe(cb, public, w.logger)
			}
		})
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctrl.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("in-flight check abandoned on shutdown", "error", err)
		}
		botManager.Stop()
		chk.Wait()
		if w.ownedFetcher != nil {
			w.ownedFetcher.Close()
		}
	}

	srv := server.NewServer(api, h, w.port, dashboard.Assets, w.title, w.allowedOrigins, w.logger)
	if err := srv.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	w.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", w.port))

	if w.telegramToken != "" {
		botCtx, cancel := context.WithTimeout(ctx, bootBotTimeout)
		if _, err := api.BotStart(botCtx, control.BotStartRequest{Token: w.telegramToken}); err != nil {
			w.logger.Warn("telegram bot not started", "error", err)
		}
		cancel()
	}

	if w.autoStart {
		ctrl.Start()
	}

	<-ctx.Done()
	cleanup()
	w.logger.Info("recwatch stopped")
	return nil
}

// CheckOnce runs a single check of the configured target with local alerts,
// waits for the alerts to finish, and returns the result.
func (w *Watcher) CheckOnce(ctx context.Context) CheckResult {
	chk := w.newChecker(nil)
	r := chk.Check(ctx, w.target.URL())
	chk.Wait()

	count := 0
	if !r.Failed() {
		count = 1
	}
	return checkerResultToPublic(r, count)
}

func (w *Watcher) newChecker(b *bot.Manager) *checker.Checker {
	var botNotifier checker.BotNotifier
	if b != nil {
		botNotifier = b
	}
	return checker.New(w.fetcher, w.notifier, botNotifier, checker.Options{
		Fetch:      w.fetchOptions.internal(),
		Desktop:    w.notifyOptions.Desktop,
		AutoOpen:   w.notifyOptions.AutoOpen,
		AlertTitle: w.notifyOptions.Title,
	}, w.logger)
}

// invokeCallbackSafe calls a result callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(CheckResult), result CheckResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result callback panicked",
				"panic", r,
				"url", result.URL,
			)
		}
	}()
	cb(result)
}
