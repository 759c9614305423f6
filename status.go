package recwatch

import (
	"context"
	"errors"
	"time"

	"github.com/recwatch/recwatch/internal/bot"
	"github.com/recwatch/recwatch/internal/checker"
	"github.com/recwatch/recwatch/internal/fetcher"
	"github.com/recwatch/recwatch/internal/notify"
)

// Errors surfaced by the check pipeline. Use [errors.Is] to match them.
var (
	ErrFetchTimeout       = fetcher.ErrTimeout
	ErrFetchNavigation    = fetcher.ErrNavigation
	ErrNotifyDelivery     = notify.ErrDelivery
	ErrBotSessionConflict = bot.ErrSessionConflict
	ErrBotTokenInvalid    = bot.ErrTokenInvalid
)

// CheckResult holds the outcome of one availability check.
//
// CheckResult is a copy; changing it does not affect the watcher.
type CheckResult struct {
	// Timestamp is when the check completed.
	Timestamp time.Time

	// Available is true when the page shows an enroll button and is not full.
	Available bool

	// OpeningsCount is the stated number of openings, or nil if the page
	// does not say.
	OpeningsCount *int

	IsFull        bool
	HasWaitlist   bool
	ActivityTitle string
	URL           string

	// CheckCount is the number of successful checks since polling started.
	CheckCount int

	// Error is set when the page could not be loaded. Available is false.
	Error error
}

// PageFields are the values a [PageFetcher] extracts from an activity page.
type PageFields struct {
	HasEnrollIndicator bool
	IsFull             bool
	HasWaitlist        bool
	OpeningsCount      *int
	ActivityTitle      string
}

// FetchEngine selects how the built-in fetcher loads pages.
type FetchEngine string

const (
	// EngineBrowser renders pages in headless Chrome. ActiveCommunities
	// activity pages, including [DefaultURL], need it to show enrollment.
	EngineBrowser FetchEngine = "browser"

	// EngineHTTP reads the static HTML only. It cannot see content that
	// page scripts render.
	EngineHTTP FetchEngine = "http"
)

// FetchOptions controls how a page is loaded and interpreted.
type FetchOptions struct {
	// Engine selects the built-in fetcher. Empty means [EngineBrowser].
	// It is ignored when [WithFetcher] supplies a fetcher.
	Engine FetchEngine

	// BrowserPath is the Chrome executable for [EngineBrowser]. Empty
	// searches the usual install locations.
	BrowserPath string

	// Timeout bounds navigation. Zero means 60 seconds.
	Timeout time.Duration

	// Settle is waited after navigation for scripts to render. Zero means
	// 3 seconds, negative disables it. [EngineHTTP] does not wait.
	Settle time.Duration

	UserAgent     string
	EnrollPhrases []string
	FullPhrases   []string
}

// PageFetcher loads an activity page and extracts [PageFields].
//
// Implementations should return errors wrapping [ErrFetchTimeout] or
// [ErrFetchNavigation].
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (PageFields, error)
}

// Notifier delivers local alerts when spots open up.
type Notifier interface {
	NotifyLocal(ctx context.Context, title, message string) error
	OpenInBrowser(ctx context.Context, url string) error
}

// NotifyOptions selects the local alerts.
type NotifyOptions struct {
	// Desktop shows a desktop notification.
	Desktop bool

	// AutoOpen opens the activity page in the default browser.
	AutoOpen bool

	// Title is the desktop notification title.
	Title string
}

// BotCallbacks are the events a [BotSession] reports.
type BotCallbacks struct {
	OnRegister func(recipientID string)
	OnConflict func(err error)
}

// BotSession is a live chat-bot connection.
type BotSession interface {
	Send(ctx context.Context, recipientID, text string) error
	Teardown() error
}

// BotSessionFactory creates bot sessions for a token.
type BotSessionFactory interface {
	CreateSession(ctx context.Context, token string, cb BotCallbacks) (BotSession, error)
}

// fetcherAdapter exposes a [PageFetcher] to the checker.
type fetcherAdapter struct {
	f PageFetcher
}

func (a fetcherAdapter) Fetch(ctx context.Context, url string, opts fetcher.Options) (fetcher.Fields, error) {
	fields, err := a.f.Fetch(ctx, url, FetchOptions{
		Timeout:       opts.Timeout,
		Settle:        opts.Settle,
		UserAgent:     opts.UserAgent,
		EnrollPhrases: opts.EnrollPhrases,
		FullPhrases:   opts.FullPhrases,
	})
	if err != nil {
		return fetcher.Fields{}, err
	}
	return fetcher.Fields{
		HasEnrollIndicator: fields.HasEnrollIndicator,
		IsFull:             fields.IsFull,
		HasWaitlist:        fields.HasWaitlist,
		OpeningsCount:      copyInt(fields.OpeningsCount),
		ActivityTitle:      fields.ActivityTitle,
	}, nil
}

// botFactoryAdapter exposes a [BotSessionFactory] to the bot manager.
type botFactoryAdapter struct {
	f BotSessionFactory
}

func (a botFactoryAdapter) CreateSession(ctx context.Context, token string, cb bot.Callbacks) (bot.Session, error) {
	return a.f.CreateSession(ctx, token, BotCallbacks{
		OnRegister: cb.OnRegister,
		OnConflict: cb.OnConflict,
	})
}

func (o FetchOptions) internal() fetcher.Options {
	return fetcher.Options{
		Timeout:       o.Timeout,
		Settle:        o.Settle,
		UserAgent:     o.UserAgent,
		EnrollPhrases: append([]string(nil), o.EnrollPhrases...),
		FullPhrases:   append([]string(nil), o.FullPhrases...),
	}
}

// checkerResultToPublic converts an internal result to the public type.
func checkerResultToPublic(r checker.Result, checkCount int) CheckResult {
	out := CheckResult{
		Timestamp:     r.Timestamp,
		Available:     r.Available,
		OpeningsCount: copyInt(r.OpeningsCount),
		IsFull:        r.IsFull,
		HasWaitlist:   r.HasWaitlist,
		ActivityTitle: r.ActivityTitle,
		URL:           r.URL,
		CheckCount:    checkCount,
	}
	switch {
	case r.Err() != nil:
		out.Error = r.Err()
	case r.Error != nil:
		out.Error = errors.New(*r.Error)
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}
