package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recwatch/recwatch/internal/bot"
	"github.com/recwatch/recwatch/internal/checker"
	"github.com/recwatch/recwatch/internal/control"
	"github.com/recwatch/recwatch/internal/hub"
	"github.com/recwatch/recwatch/internal/poller"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubChecker struct{}

func (stubChecker) Check(ctx context.Context, url string) checker.Result {
	n := 2
	return checker.Result{Timestamp: time.Now(), Available: true, OpeningsCount: &n, URL: url, ActivityTitle: "Drop-in Basketball"}
}

type stubSession struct{}

func (stubSession) Send(ctx context.Context, recipientID, text string) error { return nil }
func (stubSession) Teardown() error                                         { return nil }

type stubFactory struct{}

func (stubFactory) CreateSession(ctx context.Context, token string, cb bot.Callbacks) (bot.Session, error) {
	if token == "bad" {
		return nil, errors.New("401 Unauthorized")
	}
	return stubSession{}, nil
}

type testEnv struct {
	server *Server
	hub    *hub.Hub
	poller *poller.Controller
	http   *httptest.Server
}

func newTestEnv(t *testing.T, assets fstest.MapFS, allowedOrigins ...string) *testEnv {
	t.Helper()
	logger := testLogger()

	h := hub.New(logger)
	p, err := poller.New(stubChecker{}, h, poller.Config{URL: "https://example.com/activity", Interval: time.Hour}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	api := control.New(p, bot.NewManager(stubFactory{}, h, logger), logger)
	p.SetStatusMessage(func() any { return api.Snapshot() })

	var assetsFS fs.FS
	if assets != nil {
		assetsFS = assets
	}
	srv := NewServer(api, h, 0, assetsFS, "Gym", allowedOrigins, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, hub: h, poller: p, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (e *testEnv) dialWS(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)

	resp, err := http.Get(e.http.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("GET /health = %d %q", resp.StatusCode, body)
	}
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if body["success"] != true || body["isPolling"] != false {
		t.Errorf("body = %v", body)
	}
	if body["url"] != "https://example.com/activity" || body["interval"] != float64(3600) {
		t.Errorf("config not reported: %v", body)
	}
	if _, ok := body["telegram"]; !ok {
		t.Error("telegram summary missing")
	}
}

func TestStartStop(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/start", `{"url":"https://example.com/other","interval":"60"}`)
	if code != http.StatusOK || body["success"] != true || body["isPolling"] != true {
		t.Fatalf("start = %d %v", code, body)
	}
	if body["url"] != "https://example.com/other" || body["interval"] != float64(60) {
		t.Errorf("overrides not applied: %v", body)
	}

	code, body = e.do(t, http.MethodPost, "/api/stop", "")
	if code != http.StatusOK || body["isPolling"] != false {
		t.Errorf("stop = %d %v", code, body)
	}
}

func TestStartWithoutBody(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/start", "")
	if code != http.StatusOK || body["isPolling"] != true {
		t.Errorf("start = %d %v", code, body)
	}
}

func TestConfig(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/config", `{"interval":15}`)
	if code != http.StatusOK || body["interval"] != float64(15) || body["isPolling"] != false {
		t.Errorf("config = %d %v", code, body)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "bad url", path: "/api/config", body: `{"url":"javascript:alert(1)"}`},
		{name: "zero interval", path: "/api/start", body: `{"interval":0}`},
		{name: "malformed json", path: "/api/config", body: `{"url":`},
		{name: "missing token", path: "/api/bot/start", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, nil)

			code, body := e.do(t, http.MethodPost, tt.path, tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", code)
			}
			if body["success"] != false || body["error"] == "" {
				t.Errorf("body = %v", body)
			}
			if e.poller.Status().IsPolling {
				t.Error("rejected request must not start polling")
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, nil)

	resp, err := http.Get(e.http.URL + "/api/start")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/start = %d, want 405", resp.StatusCode)
	}
}

func TestBotRoutes(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/bot/start", `{"token":"bad"}`)
	if code != http.StatusBadGateway || body["success"] != false {
		t.Errorf("bad token = %d %v", code, body)
	}

	code, body = e.do(t, http.MethodPost, "/api/bot/start", `{"token":"123:abc"}`)
	if code != http.StatusOK || body["configured"] != true || body["connected"] != false {
		t.Errorf("bot start = %d %v", code, body)
	}

	_, body = e.do(t, http.MethodGet, "/api/bot/status", "")
	if body["active"] != true {
		t.Errorf("bot status = %v", body)
	}

	_, body = e.do(t, http.MethodPost, "/api/bot/stop", "")
	if body["success"] != true || body["active"] != false || body["configured"] != false {
		t.Errorf("bot stop = %v", body)
	}
}

func TestWebSocket_SnapshotThenEvents(t *testing.T) {
	e := newTestEnv(t, nil)
	conn := e.dialWS(t, nil)

	snap := readWS(t, conn)
	if snap["type"] != "status" || snap["isPolling"] != false {
		t.Fatalf("snapshot = %v", snap)
	}

	e.do(t, http.MethodPost, "/api/start", "")

	status := readWS(t, conn)
	if status["type"] != "status" || status["isPolling"] != true {
		t.Errorf("status event = %v", status)
	}

	result := readWS(t, conn)
	if result["type"] != "result" || result["available"] != true || result["checkCount"] != float64(1) {
		t.Errorf("result event = %v", result)
	}
	if result["openingsCount"] != float64(2) {
		t.Errorf("openingsCount = %v", result["openingsCount"])
	}
}

func TestWebSocket_LateJoinerSeesCurrentState(t *testing.T) {
	e := newTestEnv(t, nil)

	e.do(t, http.MethodPost, "/api/start", "")
	deadline := time.Now().Add(2 * time.Second)
	for e.poller.Status().CheckCount == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	conn := e.dialWS(t, nil)
	snap := readWS(t, conn)

	if snap["isPolling"] != true || snap["checkCount"] != float64(1) {
		t.Errorf("snapshot = %v", snap)
	}
	last, ok := snap["lastCheck"].(map[string]any)
	if !ok || last["activityTitle"] != "Drop-in Basketball" {
		t.Errorf("lastCheck = %v", snap["lastCheck"])
	}
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	e := newTestEnv(t, nil)
	conn := e.dialWS(t, nil)
	readWS(t, conn)

	if e.hub.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", e.hub.Count())
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.hub.Count() != 0 {
		t.Errorf("listener not removed after disconnect")
	}
}

func TestWebSocket_OriginAllowList(t *testing.T) {
	e := newTestEnv(t, nil, "http://localhost:3001")
	wsURL := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("expected handshake to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake response = %v, want 403", resp)
	}

	conn := e.dialWS(t, http.Header{"Origin": {"HTTP://LOCALHOST:3001"}})
	readWS(t, conn)
}

func TestBuildOriginChecker(t *testing.T) {
	if buildOriginChecker(nil) != nil {
		t.Error("empty allow-list should fall back to the same-origin default")
	}
	if buildOriginChecker([]string{"not a url"}) != nil {
		t.Error("invalid entries should be ignored")
	}

	check := buildOriginChecker([]string{"https://app.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "https://app.example.com", want: true},
		{origin: "https://APP.example.com", want: true},
		{origin: "http://app.example.com", want: false},
		{origin: "", want: true},
		{origin: "::bad", want: false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q allowed = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestHandleSSE_SnapshotAndStream(t *testing.T) {
	e := newTestEnv(t, nil)

	req, _ := http.NewRequest(http.MethodGet, e.http.URL+"/api/sse", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() map[string]any {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var msg map[string]any
				if err := json.Unmarshal([]byte(data), &msg); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return msg
			}
		}
	}

	if snap := readEvent(); snap["type"] != "status" {
		t.Errorf("first event = %v", snap)
	}

	e.hub.Broadcast(map[string]string{"type": "telegram_connected", "chatId": "42"})
	if ev := readEvent(); ev["chatId"] != "42" {
		t.Errorf("streamed event = %v", ev)
	}
}

func TestHandleSSE_ServerShutdown(t *testing.T) {
	e := newTestEnv(t, nil)

	serverCtx, serverCancel := context.WithCancel(context.Background())

	// calling the handler directly, so derive the request context from the
	// server context the way BaseContext does
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.server.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	serverCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after server shutdown")
	}
	if !strings.Contains(rec.Body.String(), `"type":"status"`) {
		t.Errorf("snapshot not written: %s", rec.Body.String())
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	e := newTestEnv(t, nil)
	serverCtx, serverCancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			e.server.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Count() < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
	if e.hub.Count() != 0 {
		t.Errorf("Count() = %d after shutdown, want 0", e.hub.Count())
	}
}

func TestDashboard(t *testing.T) {
	assets := fstest.MapFS{
		"assets/index.html": {Data: []byte("<title>{{.Title}}</title>")},
	}
	e := newTestEnv(t, assets)
	e.server.title = `<Gym & "Pool">`

	resp, err := http.Get(e.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if got := string(body); got != "<title>&lt;Gym &amp; &#34;Pool&#34;&gt;</title>" {
		t.Errorf("dashboard = %q", got)
	}
}

func TestDashboard_DefaultTitle(t *testing.T) {
	assets := fstest.MapFS{
		"assets/index.html": {Data: []byte("<title>{{.Title}}</title>")},
	}
	e := newTestEnv(t, assets)
	e.server.title = ""

	resp, err := http.Get(e.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if got := string(body); got != "<title>Rec Center Checker</title>" {
		t.Errorf("dashboard = %q", got)
	}
}

func TestStart_BindsAndShutsDown(t *testing.T) {
	h := hub.New(testLogger())
	p, err := poller.New(stubChecker{}, h, poller.Config{URL: "https://example.com", Interval: time.Hour}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(control.New(p, nil, testLogger()), h, 0, nil, "", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	addr := srv.Addr()
	if addr == "" {
		t.Fatal("Addr() empty after Start")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}

	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://127.0.0.1:" + port + "/health")
		if err != nil {
			return
		}
		resp.Body.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("server still serving after context cancellation")
}
