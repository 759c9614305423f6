package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("recwatch/fetcher")

const (
	// DefaultTimeout bounds page navigation.
	DefaultTimeout = 60 * time.Second

	// DefaultSettle is the fixed wait after navigation for dynamic content.
	DefaultSettle = 3 * time.Second
)

var (
	// ErrTimeout is returned when navigation exceeds its timeout.
	ErrTimeout = errors.New("fetch timeout")

	// ErrNavigation is returned when the page cannot be loaded or parsed.
	ErrNavigation = errors.New("navigation failed")
)

// Options controls a single page fetch.
type Options struct {
	// Timeout bounds the navigation. Zero means [DefaultTimeout].
	Timeout time.Duration

	// Settle is waited after navigation before the page is evaluated.
	// Negative disables the wait; zero means [DefaultSettle].
	Settle time.Duration

	// UserAgent overrides [DefaultUserAgent] when set.
	UserAgent string

	// EnrollPhrases and FullPhrases override the default phrase lists.
	EnrollPhrases []string
	FullPhrases   []string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Settle == 0 {
		o.Settle = DefaultSettle
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	return o
}

// HTTPFetcher loads activity pages over HTTP and extracts [Fields] from the
// returned document.
//
// HTTPFetcher does not execute page scripts, so it only sees enrollment
// state on server-rendered pages. ActiveCommunities activity pages render
// client-side and need [BrowserFetcher]. Options.Settle is ignored.
type HTTPFetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// New creates an [HTTPFetcher] with a pooled HTTP client.
func New(logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client: newRestyClient(),
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch loads url and extracts [Fields] from the static document.
//
// Errors wrap [ErrTimeout] when navigation exceeded opts.Timeout and
// [ErrNavigation] for every other load failure, including non-2xx responses.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts Options) (Fields, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	opts = opts.withDefaults()

	body, err := f.load(ctx, url, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load page")
		return Fields{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse html")
		return Fields{}, fmt.Errorf("%w: parse html: %v", ErrNavigation, err)
	}

	bodyText := doc.Find("body").Text()
	if bodyText == "" {
		bodyText = doc.Text()
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	fields := ExtractFields(bodyText, title, opts.EnrollPhrases, opts.FullPhrases)
	span.SetAttributes(
		attribute.Bool("enroll", fields.HasEnrollIndicator),
		attribute.Bool("full", fields.IsFull),
	)
	return fields, nil
}

// load performs the navigation request and returns the size-limited body.
func (f *HTTPFetcher) load(ctx context.Context, url string, opts Options) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req := f.client.R().
		SetContext(navCtx).
		SetDoNotParseResponse(true)
	if opts.UserAgent != "" {
		req.SetHeader("User-Agent", opts.UserAgent)
	}

	f.logger.Debug("loading page", "url", url, "timeout", opts.Timeout.String())

	res, err := req.Get(url)
	if err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: navigation exceeded %s", ErrTimeout, opts.Timeout)
		}
		return "", fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	raw := res.RawBody()
	defer func() { _ = raw.Close() }()

	if res.IsError() {
		return "", fmt.Errorf("%w: unexpected status %d", ErrNavigation, res.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(raw, maxResponseBodySize))
	if err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: reading body exceeded %s", ErrTimeout, opts.Timeout)
		}
		return "", fmt.Errorf("%w: read body: %v", ErrNavigation, err)
	}
	return string(data), nil
}

// Close releases idle connections held by the fetcher.
func (f *HTTPFetcher) Close() {
	closeIdle(f.client)
}
