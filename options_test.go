package recwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/recwatch/recwatch/internal/fetcher"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Defaults(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.Port() != 3001 {
		t.Errorf("Port() = %d, want 3001", w.Port())
	}
	if w.Target().URL() != DefaultURL {
		t.Errorf("Target().URL() = %q", w.Target().URL())
	}
	if w.Target().Interval() != 30*time.Second {
		t.Errorf("Target().Interval() = %v, want 30s", w.Target().Interval())
	}
	if !w.notifyOptions.Desktop || !w.notifyOptions.AutoOpen {
		t.Errorf("local alerts should default on, got %+v", w.notifyOptions)
	}
	if _, ok := w.ownedFetcher.(*fetcher.BrowserFetcher); !ok {
		t.Errorf("built-in fetcher = %T, want browser", w.ownedFetcher)
	}
	if w.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
}

func TestWithTarget(t *testing.T) {
	target, err := NewTarget("https://example.com/a", time.Minute)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	w, err := New(WithTarget(target))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w.Target() != target {
		t.Errorf("Target() = %+v, want %+v", w.Target(), target)
	}

	if _, err := New(WithTarget(Target{})); err == nil {
		t.Error("expected error for zero Target")
	}
}

func TestWithPort(t *testing.T) {
	tests := []struct {
		port    int
		wantErr bool
	}{
		{port: 1},
		{port: 8080},
		{port: 65535},
		{port: 0, wantErr: true},
		{port: -1, wantErr: true},
		{port: 65536, wantErr: true},
	}

	for _, tt := range tests {
		w, err := New(WithPort(tt.port))
		if tt.wantErr {
			if err == nil {
				t.Errorf("WithPort(%d) expected error", tt.port)
			}
			continue
		}
		if err != nil {
			t.Errorf("WithPort(%d) error = %v", tt.port, err)
			continue
		}
		if w.Port() != tt.port {
			t.Errorf("Port() = %d, want %d", w.Port(), tt.port)
		}
	}
}

func TestNilOptionsRejected(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{name: "logger", opt: WithLogger(nil)},
		{name: "fetcher", opt: WithFetcher(nil)},
		{name: "notifier", opt: WithNotifier(nil)},
		{name: "bot factory", opt: WithBotSessionFactory(nil)},
		{name: "negative timeout", opt: WithFetchOptions(FetchOptions{Timeout: -time.Second})},
		{name: "unknown engine", opt: WithFetchOptions(FetchOptions{Engine: "lynx"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWithResultCallback_NilIsSafe(t *testing.T) {
	w, err := New(WithResultCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(w.resultCallbacks) != 0 {
		t.Errorf("nil callback registered")
	}
}

func TestOptionsApplied(t *testing.T) {
	logger := testLogger()
	f := &fakeFetcher{}
	n := &fakeNotifier{}

	w, err := New(
		WithLogger(logger),
		WithTitle("Gym"),
		WithFetcher(f),
		WithNotifier(n),
		WithNotifyOptions(NotifyOptions{Desktop: true, Title: "Pool"}),
		WithFetchOptions(FetchOptions{Settle: -1, EnrollPhrases: []string{"Register"}}),
		WithTelegramToken("123:abc"),
		WithAutoStart(true),
		WithAllowedOrigins("http://localhost:3001"),
		WithBotSessionFactory(&fakeBotFactory{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.logger != logger || w.title != "Gym" || !w.autoStart || w.telegramToken != "123:abc" {
		t.Errorf("options not applied: %+v", w)
	}
	if w.ownedFetcher != nil {
		t.Error("built-in fetcher created despite WithFetcher")
	}
	if w.notifyOptions.AutoOpen {
		t.Error("WithNotifyOptions should replace defaults")
	}
	if len(w.allowedOrigins) != 1 {
		t.Errorf("allowedOrigins = %v", w.allowedOrigins)
	}

	w.CheckOnce(context.Background())
	if f.gotOpts.Settle != -1 || f.gotOpts.EnrollPhrases[0] != "Register" {
		t.Errorf("fetch options not forwarded: %+v", f.gotOpts)
	}
}

func TestNew_FetchEngine(t *testing.T) {
	tests := []struct {
		engine FetchEngine
		want   string
	}{
		{engine: "", want: "*fetcher.BrowserFetcher"},
		{engine: EngineBrowser, want: "*fetcher.BrowserFetcher"},
		{engine: EngineHTTP, want: "*fetcher.HTTPFetcher"},
	}

	for _, tt := range tests {
		t.Run(string(tt.engine), func(t *testing.T) {
			w, err := New(WithFetchOptions(FetchOptions{Engine: tt.engine}), WithLogger(testLogger()))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := fmt.Sprintf("%T", w.ownedFetcher); got != tt.want {
				t.Errorf("fetcher = %s, want %s", got, tt.want)
			}
		})
	}
}
