package fetcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const openPage = `<!doctype html>
<html>
<head><title>Burnaby Activities</title></head>
<body>
  <h1> Adult Basketball - Drop In </h1>
  <div class="actions"><button>Enroll Now</button></div>
  <p>3 openings remaining</p>
</body>
</html>`

const fullPage = `<html><head><title>Adult Basketball</title></head>
<body><div>Full</div><p>Join the waitlist</p></body></html>`

func TestHTTPFetcher_OpenPage(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(openPage))
	}))
	defer ts.Close()

	f := New(testLogger())
	defer f.Close()

	fields, err := f.Fetch(context.Background(), ts.URL, Options{Timeout: time.Second, Settle: -1})
	require.NoError(t, err)
	require.True(t, fields.HasEnrollIndicator)
	require.False(t, fields.IsFull)
	require.NotNil(t, fields.OpeningsCount)
	require.Equal(t, 3, *fields.OpeningsCount)
	require.Equal(t, "Adult Basketball - Drop In", fields.ActivityTitle)
	require.Equal(t, DefaultUserAgent, gotUA)
}

func TestHTTPFetcher_FullPageFallsBackToDocumentTitle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fullPage))
	}))
	defer ts.Close()

	f := New(testLogger())
	fields, err := f.Fetch(context.Background(), ts.URL, Options{Timeout: time.Second, Settle: -1, UserAgent: "custom"})
	require.NoError(t, err)
	require.True(t, fields.IsFull)
	require.True(t, fields.HasWaitlist)
	require.Nil(t, fields.OpeningsCount)
	require.Equal(t, "Adult Basketball", fields.ActivityTitle)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	f := New(testLogger())
	_, err := f.Fetch(context.Background(), ts.URL, Options{Timeout: 50 * time.Millisecond, Settle: -1})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPFetcher_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	f := New(testLogger())
	_, err := f.Fetch(context.Background(), ts.URL, Options{Timeout: time.Second, Settle: -1})
	require.ErrorIs(t, err, ErrNavigation)
	require.Contains(t, err.Error(), "502")
}

func TestHTTPFetcher_UnreachableHost(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	f := New(testLogger())
	_, err := f.Fetch(context.Background(), url, Options{Timeout: time.Second, Settle: -1})
	require.ErrorIs(t, err, ErrNavigation)
}

func TestHTTPFetcher_IgnoresSettle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(openPage))
	}))
	defer ts.Close()

	f := New(testLogger())
	start := time.Now()
	fields, err := f.Fetch(context.Background(), ts.URL, Options{Timeout: time.Second, Settle: 10 * time.Second})
	require.NoError(t, err)
	require.True(t, fields.HasEnrollIndicator)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	require.Equal(t, DefaultTimeout, o.Timeout)
	require.Equal(t, DefaultSettle, o.Settle)

	o = Options{Settle: -1}.withDefaults()
	require.Equal(t, time.Duration(0), o.Settle)
}
