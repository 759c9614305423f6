package recwatch

import (
	"errors"
	"fmt"
	"log/slog"
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	target          Target
	port            int
	title           string
	logger          *slog.Logger
	fetcher         PageFetcher
	notifier        Notifier
	botFactory      BotSessionFactory
	telegramToken   string
	autoStart       bool
	resultCallbacks []func(CheckResult)
	allowedOrigins  []string
	fetchOptions    FetchOptions
	notifyOptions   NotifyOptions
}

// Option is a function that configures a [Watcher] during construction.
//
// Options return an error if validation fails.
type Option func(*watcherConfig) error

// WithTarget sets the activity page and check interval.
//
// Defaults to [DefaultTarget].
func WithTarget(t Target) Option {
	return func(cfg *watcherConfig) error {
		if t.url == "" {
			return errors.New("target must be created with NewTarget")
		}
		cfg.target = t
		return nil
	}
}

// WithPort sets the HTTP port for the control API and dashboard.
//
// Defaults to 3001. Returns an error if the port is outside 1-65535.
func WithPort(port int) Option {
	return func(cfg *watcherConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title.
func WithTitle(title string) Option {
	return func(cfg *watcherConfig) error {
		cfg.title = title
		return nil
	}
}

// WithFetcher replaces the built-in HTTP page fetcher, for example with one
// that renders pages in a headless browser.
func WithFetcher(f PageFetcher) Option {
	return func(cfg *watcherConfig) error {
		if f == nil {
			return errors.New("fetcher cannot be nil")
		}
		cfg.fetcher = f
		return nil
	}
}

// WithFetchOptions sets the fetch engine, navigation timeout, settle delay,
// user agent and the phrases used to read the page.
func WithFetchOptions(o FetchOptions) Option {
	return func(cfg *watcherConfig) error {
		if o.Timeout < 0 {
			return errors.New("fetch timeout cannot be negative")
		}
		switch o.Engine {
		case "", EngineBrowser, EngineHTTP:
		default:
			return fmt.Errorf("unknown fetch engine %q", o.Engine)
		}
		cfg.fetchOptions = o
		return nil
	}
}

// WithNotifier replaces the built-in desktop notifier.
func WithNotifier(n Notifier) Option {
	return func(cfg *watcherConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifier = n
		return nil
	}
}

// WithNotifyOptions selects the local alerts. Both desktop notification
// and browser auto-open are enabled by default.
func WithNotifyOptions(o NotifyOptions) Option {
	return func(cfg *watcherConfig) error {
		cfg.notifyOptions = o
		return nil
	}
}

// WithBotSessionFactory replaces the built-in Telegram session factory.
func WithBotSessionFactory(f BotSessionFactory) Option {
	return func(cfg *watcherConfig) error {
		if f == nil {
			return errors.New("bot session factory cannot be nil")
		}
		cfg.botFactory = f
		return nil
	}
}

// WithTelegramToken starts the bot with token when the watcher starts.
// The bot can also be started later through the control API.
func WithTelegramToken(token string) Option {
	return func(cfg *watcherConfig) error {
		cfg.telegramToken = token
		return nil
	}
}

// WithAutoStart starts polling as soon as the watcher starts.
func WithAutoStart(enabled bool) Option {
	return func(cfg *watcherConfig) error {
		cfg.autoStart = enabled
		return nil
	}
}

// WithResultCallback registers a function called after every check.
//
// Multiple callbacks run in registration order on the polling goroutine, so
// they must not block. Panics are recovered and logged. Nil callbacks are
// ignored.
//
// Example:
//
//	w, err := recwatch.New(
//	    recwatch.WithResultCallback(func(r recwatch.CheckResult) {
//	        if r.Available {
//	            log.Printf("spots open at %s", r.URL)
//	        }
//	    }),
//	)
func WithResultCallback(cb func(CheckResult)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.resultCallbacks = append(cfg.resultCallbacks, cb)
		return nil
	}
}

// WithAllowedOrigins restricts which browser origins may open the live
// WebSocket channel. By default only same-origin pages may connect.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *watcherConfig) error {
		cfg.allowedOrigins = append(cfg.allowedOrigins, origins...)
		return nil
	}
}
