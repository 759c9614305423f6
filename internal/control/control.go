package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/recwatch/recwatch/internal/bot"
	"github.com/recwatch/recwatch/internal/poller"
)

// ErrValidation is wrapped by every rejected request.
var ErrValidation = errors.New("invalid request")

// Interval limits accepted from callers.
const (
	MinInterval = time.Second
	MaxInterval = 24 * time.Hour
)

// Poller is the polling controller as seen by the API.
type Poller interface {
	Start() bool
	Stop() bool
	UpdateConfig(u poller.Update) poller.Config
	Status() poller.Status
}

// Bot is the bot session manager as seen by the API.
type Bot interface {
	Start(ctx context.Context, token string) error
	Stop()
	Status() bot.Status
	BroadcastStatus()
}

// Seconds is an interval in whole seconds. It decodes from a JSON number or
// a numeric string.
type Seconds int

func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(str))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("%w: interval must be a number of seconds: %v", ErrValidation, err)
	}
	// bounds are checked on the float so huge values cannot wrap when
	// converted to a duration
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: interval must be a finite number of seconds", ErrValidation)
	}
	if f < MinInterval.Seconds() || f > MaxInterval.Seconds() {
		return fmt.Errorf("%w: interval must be between %d and %d seconds, got %g",
			ErrValidation, int(MinInterval/time.Second), int(MaxInterval/time.Second), f)
	}
	*s = Seconds(f)
	return nil
}

// ConfigRequest carries optional overrides for the polling target.
type ConfigRequest struct {
	URL      *string  `json:"url,omitempty"`
	Interval *Seconds `json:"interval,omitempty"`
}

// BotStartRequest carries the bot token.
type BotStartRequest struct {
	Token string `json:"token"`
}

// Snapshot is the full state sent to newly connected listeners and
// returned by the status endpoint.
type Snapshot struct {
	Type string `json:"type"`
	poller.Status
	Telegram bot.Status `json:"telegram"`
}

// API executes control operations against the shared poller and bot.
type API struct {
	poller Poller
	bot    Bot
	logger *slog.Logger
}

// New creates an [API]. b may be nil when no bot is available.
func New(p Poller, b Bot, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		poller: p,
		bot:    b,
		logger: logger.With("component", "control"),
	}
}

// StartPolling applies any overrides in req and starts polling.
// It reports whether a new loop was started.
func (a *API) StartPolling(req ConfigRequest) (poller.Status, bool, error) {
	u, err := req.toUpdate()
	if err != nil {
		return poller.Status{}, false, err
	}
	a.poller.UpdateConfig(u)
	started := a.poller.Start()
	if !started {
		a.logger.Debug("start requested while polling")
	}
	return a.poller.Status(), started, nil
}

// StopPolling stops polling. It reports whether a loop was running.
func (a *API) StopPolling() (poller.Status, bool) {
	stopped := a.poller.Stop()
	return a.poller.Status(), stopped
}

// SetConfig applies the overrides in req without starting or stopping.
func (a *API) SetConfig(req ConfigRequest) (poller.Status, error) {
	u, err := req.toUpdate()
	if err != nil {
		return poller.Status{}, err
	}
	a.poller.UpdateConfig(u)
	return a.poller.Status(), nil
}

// Status returns the polling state and configuration.
func (a *API) Status() poller.Status {
	return a.poller.Status()
}

// BotStart starts the bot with req.Token and broadcasts the new bot status.
func (a *API) BotStart(ctx context.Context, req BotStartRequest) (bot.Status, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return bot.Status{}, fmt.Errorf("%w: token is required", ErrValidation)
	}
	if a.bot == nil {
		return bot.Status{}, fmt.Errorf("%w: bot is not available", ErrValidation)
	}

	err := a.bot.Start(ctx, token)
	a.bot.BroadcastStatus()
	if err != nil {
		return a.bot.Status(), err
	}
	return a.bot.Status(), nil
}

// BotStop stops the bot. The bot manager broadcasts its own status.
func (a *API) BotStop() bot.Status {
	if a.bot == nil {
		return bot.Status{}
	}
	a.bot.Stop()
	return a.bot.Status()
}

// BotStatus returns the bot session flags.
func (a *API) BotStatus() bot.Status {
	if a.bot == nil {
		return bot.Status{}
	}
	return a.bot.Status()
}

// Snapshot returns the polling status with the bot summary.
func (a *API) Snapshot() Snapshot {
	return Snapshot{
		Type:     "status",
		Status:   a.poller.Status(),
		Telegram: a.BotStatus(),
	}
}

// toUpdate validates r. An empty URL is treated as absent.
func (r ConfigRequest) toUpdate() (poller.Update, error) {
	var u poller.Update

	if r.URL != nil {
		raw := strings.TrimSpace(*r.URL)
		if raw != "" {
			if err := ValidateURL(raw); err != nil {
				return poller.Update{}, err
			}
			u.URL = &raw
		}
	}

	if r.Interval != nil {
		d := time.Duration(*r.Interval) * time.Second
		if err := ValidateInterval(d); err != nil {
			return poller.Update{}, err
		}
		u.Interval = &d
	}
	return u, nil
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrValidation, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url must use http or https, got %q", ErrValidation, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: url must include a host", ErrValidation)
	}
	return nil
}

// ValidateInterval checks d against [MinInterval] and [MaxInterval].
func ValidateInterval(d time.Duration) error {
	if d < MinInterval {
		return fmt.Errorf("%w: interval must be at least %s, got %s", ErrValidation, MinInterval, d)
	}
	if d > MaxInterval {
		return fmt.Errorf("%w: interval must be at most %s, got %s", ErrValidation, MaxInterval, d)
	}
	return nil
}
