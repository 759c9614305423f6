package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recwatch/recwatch/internal/checker"
	"github.com/recwatch/recwatch/internal/hub"
)

// ErrClosed is returned by operations on a controller that has been shut down.
var ErrClosed = errors.New("poller is shut down")

// Checker runs one availability check.
type Checker interface {
	Check(ctx context.Context, url string) checker.Result
}

// Config is the polling target.
type Config struct {
	URL      string
	Interval time.Duration
}

// Update holds optional changes to a [Config]. Nil fields are left unchanged.
type Update struct {
	URL      *string
	Interval *time.Duration
}

// Status is a snapshot of polling state and configuration.
type Status struct {
	IsPolling  bool            `json:"isPolling"`
	Interval   int             `json:"interval"` // seconds
	URL        string          `json:"url"`
	LastCheck  *checker.Result `json:"lastCheck"`
	CheckCount int             `json:"checkCount"`
	LastError  *string         `json:"lastError"`
}

// StatusMessage is broadcast when polling starts or stops.
type StatusMessage struct {
	Type string `json:"type"`
	Status
}

// ResultMessage is broadcast after every check.
type ResultMessage struct {
	Type string `json:"type"`
	checker.Result
	CheckCount int `json:"checkCount"`
}

// ResultHook is called after every check with the check count at that time.
type ResultHook func(result checker.Result, checkCount int)

// loop is the handle of one running polling loop.
type loop struct {
	cancel context.CancelFunc
}

// Controller owns the polling loop and its state.
//
// All methods are safe for concurrent use. Broadcasts and hooks are never
// invoked while the controller's lock is held.
type Controller struct {
	checker     Checker
	broadcaster hub.Broadcaster
	logger      *slog.Logger

	// checks run on checkCtx so that Stop leaves an in-flight check alone
	checkCtx    context.Context
	checkCancel context.CancelFunc
	wg          sync.WaitGroup

	// checkMu serializes checks across loops, so a check left in flight by
	// Stop finishes before a restarted loop checks
	checkMu sync.Mutex

	mu            sync.Mutex
	cfg           Config
	running       *loop
	closed        bool
	checkCount    int
	lastResult    *checker.Result
	lastError     *string
	hooks         []ResultHook
	statusMessage func() any
}

// New creates an idle [Controller] for cfg.
//
// Results and status changes are pushed to b. cfg.Interval must be positive.
func New(c Checker, b hub.Broadcaster, cfg Config, logger *slog.Logger) (*Controller, error) {
	if c == nil {
		return nil, errors.New("checker is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		checker:     c,
		broadcaster: b,
		logger:      logger.With("component", "poller"),
		checkCtx:    ctx,
		checkCancel: cancel,
		cfg:         cfg,
	}, nil
}

// OnResult registers a hook called after every check.
func (c *Controller) OnResult(h ResultHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// SetStatusMessage replaces the message broadcast on start and stop.
// By default a [StatusMessage] built from [Controller.Status] is sent.
// fn must not be called while holding a lock the controller needs.
func (c *Controller) SetStatusMessage(fn func() any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusMessage = fn
}

// Start begins polling: it broadcasts a status event, checks immediately and
// then every interval.
//
// Start is idempotent. It returns false without side effects if polling is
// already running or the controller has been shut down.
func (c *Controller) Start() bool {
	c.mu.Lock()
	if c.running != nil || c.closed {
		c.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel}
	c.running = l
	c.checkCount = 0
	cfg := c.cfg
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("polling started", "url", cfg.URL, "interval", cfg.Interval.String())
	c.broadcastStatus()

	go c.run(ctx, l)
	return true
}

// Stop cancels future checks and broadcasts a status event.
//
// A check already in flight runs to completion and its result is still
// recorded and broadcast. Stop returns false if polling was not running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	l := c.running
	if l == nil {
		c.mu.Unlock()
		return false
	}
	c.running = nil
	c.mu.Unlock()

	l.cancel()
	c.logger.Info("polling stopped")
	c.broadcastStatus()
	return true
}

// UpdateConfig applies the non-nil fields of u and returns the new config.
//
// Polling is neither started nor stopped. A running loop picks up the new
// URL and interval when it schedules its next check. A non-positive
// interval or an empty URL is ignored.
func (c *Controller) UpdateConfig(u Update) Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.URL != nil && *u.URL != "" {
		c.cfg.URL = *u.URL
	}
	if u.Interval != nil && *u.Interval > 0 {
		c.cfg.Interval = *u.Interval
	}
	c.logger.Debug("config updated", "url", c.cfg.URL, "interval", c.cfg.Interval.String())
	return c.cfg
}

// Config returns the current polling target.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Status returns a snapshot of polling state and configuration.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		IsPolling:  c.running != nil,
		Interval:   int(c.cfg.Interval / time.Second),
		URL:        c.cfg.URL,
		CheckCount: c.checkCount,
		LastError:  c.lastError,
	}
	if c.lastResult != nil {
		r := *c.lastResult
		s.LastCheck = &r
	}
	return s
}

// Shutdown stops polling and waits for the loop and any in-flight check to
// finish. If ctx expires first, in-flight checks are cancelled and ctx's
// error is returned. After Shutdown, Start is a no-op.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Stop()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.checkCancel()
		return nil
	case <-ctx.Done():
		c.checkCancel()
		<-done
		return ctx.Err()
	}
}

// run is the self-rescheduling loop: check, wait one interval, repeat.
func (c *Controller) run(ctx context.Context, l *loop) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		c.checkOnce(ctx, l)

		timer := time.NewTimer(c.Config().Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// checkOnce runs one check for loop l, records it and broadcasts the result.
//
// A success is counted unless a newer loop has started since l; that loop
// owns checkCount.
func (c *Controller) checkOnce(ctx context.Context, l *loop) {
	c.checkMu.Lock()
	if ctx.Err() != nil {
		c.checkMu.Unlock()
		return
	}
	url := c.Config().URL
	result := c.checker.Check(c.checkCtx, url)

	c.mu.Lock()
	superseded := c.running != nil && c.running != l
	if result.Failed() {
		c.lastError = result.Error
	} else {
		r := result
		c.lastResult = &r
		c.lastError = nil
		if !superseded {
			c.checkCount++
		}
	}
	count := c.checkCount
	hooks := append([]ResultHook(nil), c.hooks...)
	c.mu.Unlock()
	c.checkMu.Unlock()

	if superseded {
		c.logger.Debug("check from a stopped loop finished after restart", "url", url)
	}

	if c.broadcaster != nil {
		c.broadcaster.Broadcast(ResultMessage{Type: "result", Result: result, CheckCount: count})
	}
	for _, h := range hooks {
		c.invokeHookSafe(h, result, count)
	}
}

func (c *Controller) broadcastStatus() {
	if c.broadcaster == nil {
		return
	}

	c.mu.Lock()
	fn := c.statusMessage
	c.mu.Unlock()

	if fn != nil {
		c.broadcaster.Broadcast(fn())
		return
	}
	c.broadcaster.Broadcast(StatusMessage{Type: "status", Status: c.Status()})
}

// invokeHookSafe calls a result hook with panic recovery.
func (c *Controller) invokeHookSafe(h ResultHook, result checker.Result, count int) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("result hook panicked", "panic", r, "url", result.URL)
		}
	}()
	h(result, count)
}
