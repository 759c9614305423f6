package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recwatch/recwatch/internal/bot"
	"github.com/recwatch/recwatch/internal/control"
	"github.com/recwatch/recwatch/internal/hub"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// botStartTimeout bounds token verification against the bot service.
	botStartTimeout = 30 * time.Second

	maxRequestBodySize = 1 << 20

	defaultTitle     = "Rec Center Checker"
	titlePlaceholder = "{{.Title}}"
)

// Server handles HTTP requests for the control API, live channels and
// dashboard.
type Server struct {
	api      *control.API
	hub      *hub.Hub
	port     int
	assets   fs.FS
	title    string
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - api: control operations backing the JSON routes
//   - h: hub feeding the live channels
//   - port: TCP port to listen on; 0 picks a free port
//   - assets: embedded filesystem containing assets/index.html (may be nil)
//   - title: dashboard title
//   - allowedOrigins: WebSocket origin allow-list; empty means same-origin only
//   - logger: logger for server events
func NewServer(api *control.API, h *hub.Hub, port int, assets fs.FS, title string, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		api:    api,
		hub:    h,
		port:   port,
		assets: assets,
		title:  title,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     buildOriginChecker(allowedOrigins),
		},
		logger: logger.With("component", "server"),
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/config", s.handleConfig)

	mux.HandleFunc("POST /api/bot/start", s.handleBotStart)
	mux.HandleFunc("POST /api/bot/stop", s.handleBotStop)
	mux.HandleFunc("GET /api/bot/status", s.handleBotStatus)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/sse", s.handleSSE)

	if s.assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// runs until ctx is cancelled, then shuts down with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so live-channel handlers exit on
		// shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before [Server.Start].
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type pollResponse struct {
	Success bool `json:"success"`
	control.Snapshot
}

type botResponse struct {
	Success bool `json:"success"`
	bot.Status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, pollResponse{Success: true, Snapshot: s.api.Snapshot()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req control.ConfigRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if _, _, err := s.api.StartPolling(req); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pollResponse{Success: true, Snapshot: s.api.Snapshot()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.api.StopPolling()
	s.writeJSON(w, http.StatusOK, pollResponse{Success: true, Snapshot: s.api.Snapshot()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req control.ConfigRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.api.SetConfig(req); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pollResponse{Success: true, Snapshot: s.api.Snapshot()})
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	var req control.BotStartRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), botStartTimeout)
	defer cancel()

	status, err := s.api.BotStart(ctx, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, botResponse{Success: true, Status: status})
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, botResponse{Success: true, Status: s.api.BotStop()})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, botResponse{Success: true, Status: s.api.BotStatus()})
}

// handleDashboard serves the embedded dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleSSE streams live messages via Server-Sent Events.
//
// Writes carry a deadline so a slow or vanished client cannot block the
// handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.hub.Subscribe(s.snapshot)
	defer s.hub.Unsubscribe(sub)

	for {
		select {
		case data, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeAndFlush(data); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) snapshot() any {
	return s.api.Snapshot()
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body: %v", control.ErrValidation, err)
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, control.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, bot.ErrTokenInvalid), errors.Is(err, bot.ErrSessionConflict):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
