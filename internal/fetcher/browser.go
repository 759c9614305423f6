package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// pageScript reads the rendered page in one round trip.
const pageScript = `({
	body: document.body ? document.body.innerText : "",
	heading: (document.querySelector("h1") || {}).innerText || "",
	title: document.title || ""
})`

// renderedPage is the result of evaluating pageScript.
type renderedPage struct {
	Body    string `json:"body"`
	Heading string `json:"heading"`
	Title   string `json:"title"`
}

// BrowserFetcher renders activity pages in headless Chrome and extracts
// [Fields] from the text the page shows after its scripts run.
//
// Each fetch launches its own browser and closes it before returning.
type BrowserFetcher struct {
	execPath string
	logger   *slog.Logger
}

// NewBrowser creates a [BrowserFetcher]. An empty execPath lets chromedp
// find Chrome or Chromium on the system.
func NewBrowser(execPath string, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		execPath: execPath,
		logger:   logger.With("component", "fetcher", "engine", "browser"),
	}
}

// Fetch navigates to url, waits for the settle delay, and extracts [Fields]
// from the rendered body text. The activity title is the first h1, falling
// back to the document title.
//
// Errors wrap [ErrTimeout] when navigation exceeded opts.Timeout and
// [ErrNavigation] for every other failure, including a browser that cannot
// be started and responses with status 400 or above.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string, opts Options) (Fields, error) {
	ctx, span := tracer.Start(ctx, "BrowserFetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	opts = opts.withDefaults()

	page, err := f.render(ctx, url, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render page")
		return Fields{}, err
	}

	title := strings.TrimSpace(page.Heading)
	if title == "" {
		title = strings.TrimSpace(page.Title)
	}

	fields := ExtractFields(page.Body, title, opts.EnrollPhrases, opts.FullPhrases)
	span.SetAttributes(
		attribute.Bool("enroll", fields.HasEnrollIndicator),
		attribute.Bool("full", fields.IsFull),
	)
	return fields, nil
}

func (f *BrowserFetcher) render(ctx context.Context, url string, opts Options) (renderedPage, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, f.allocatorOptions(opts)...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		f.logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
	}))
	defer cancelTab()

	// The first Run owns the browser process, so it gets no timeout of its own.
	if err := chromedp.Run(tabCtx); err != nil {
		return renderedPage{}, fmt.Errorf("%w: start browser: %v", ErrNavigation, err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, opts.Timeout)
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	navErr := navCtx.Err()
	cancelNav()
	if err != nil {
		if errors.Is(navErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return renderedPage{}, fmt.Errorf("%w: %s after %s", ErrTimeout, url, opts.Timeout)
		}
		return renderedPage{}, fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	if resp != nil && resp.Status >= 400 {
		return renderedPage{}, fmt.Errorf("%w: unexpected status %d", ErrNavigation, resp.Status)
	}

	if opts.Settle > 0 {
		f.logger.Debug("waiting for content", "settle", opts.Settle.String())
	}

	var page renderedPage
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(opts.Settle),
		chromedp.Evaluate(pageScript, &page),
	); err != nil {
		return renderedPage{}, fmt.Errorf("%w: evaluate page: %v", ErrNavigation, err)
	}
	return page, nil
}

func (f *BrowserFetcher) allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out, chromedp.UserAgent(ua))
	if f.execPath != "" {
		out = append(out, chromedp.ExecPath(f.execPath))
	}
	// chrome refuses to start as root with the sandbox enabled
	if os.Geteuid() == 0 {
		out = append(out, chromedp.NoSandbox)
	}
	return out
}

// Close is a no-op; every fetch releases its own browser.
func (f *BrowserFetcher) Close() {}
