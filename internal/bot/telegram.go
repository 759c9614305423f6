package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const (
	defaultPollTimeout     = 30 // seconds, Telegram long-poll hold time
	defaultRetryDelay      = 5 * time.Second
	defaultTeardownTimeout = 5 * time.Second

	// Telegram allows roughly one message per second to a single chat.
	defaultSendInterval = time.Second
	defaultSendBurst    = 3

	connectReply = "✅ Connected! You'll get a message here when spots open up."
)

// TelegramFactory creates Telegram bot sessions.
//
// The zero value is usable and talks to the public Bot API.
type TelegramFactory struct {
	// APIEndpoint is the Bot API URL format; defaults to [tgbotapi.APIEndpoint].
	APIEndpoint string

	// HTTPClient is used for all API calls. Its timeout must exceed
	// PollTimeout.
	HTTPClient *http.Client

	// PollTimeout is the long-poll hold time in seconds.
	PollTimeout int

	// RetryDelay is waited after a failed getUpdates call.
	RetryDelay time.Duration

	Logger *slog.Logger
}

// contextClient binds every Bot API request to a session context so
// teardown interrupts a pending long poll.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c *contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// CreateSession authenticates token with getMe and starts polling for the
// /start handshake. ctx bounds authentication only.
func (f *TelegramFactory) CreateSession(ctx context.Context, token string, cb Callbacks) (Session, error) {
	endpoint := f.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	pollTimeout := f.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	retryDelay := f.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	httpClient := f.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(pollTimeout)*time.Second + 10*time.Second}
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	stopAuth := context.AfterFunc(ctx, cancel)

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &contextClient{ctx: sessionCtx, client: httpClient})
	if !stopAuth() {
		cancel()
		return nil, fmt.Errorf("connect to telegram: %w", ctx.Err())
	}
	if err != nil {
		cancel()
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTokenInvalid, apiErr.Message)
		}
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}

	s := &telegramSession{
		api:         api,
		cb:          cb,
		limiter:     rate.NewLimiter(rate.Every(defaultSendInterval), defaultSendBurst),
		pollTimeout: pollTimeout,
		retryDelay:  retryDelay,
		ctx:         sessionCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      logger.With("component", "bot", "bot_user", api.Self.UserName),
	}
	go s.poll()

	s.logger.Info("telegram session authorized")
	return s, nil
}

type telegramSession struct {
	api         *tgbotapi.BotAPI
	cb          Callbacks
	limiter     *rate.Limiter
	pollTimeout int
	retryDelay  time.Duration
	logger      *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	conflict sync.Once
}

// Send delivers text to recipientID, pacing messages to stay under the
// Bot API flood limits.
func (s *telegramSession) Send(ctx context.Context, recipientID, text string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", recipientID, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if s.ctx.Err() != nil {
		return errors.New("send message: session closed")
	}

	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", ErrSessionConflict, err)
		}
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Teardown stops polling and waits for the poll loop to exit.
func (s *telegramSession) Teardown() error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(defaultTeardownTimeout):
		return errors.New("telegram poll loop did not exit in time")
	}
}

func (s *telegramSession) poll() {
	defer close(s.done)

	offset := 0
	for {
		if s.ctx.Err() != nil {
			return
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = s.pollTimeout
		updates, err := s.api.GetUpdates(cfg)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if isConflict(err) {
				s.reportConflict(err)
				return
			}
			s.logger.Warn("telegram getUpdates failed", "error", err, "retry_in", s.retryDelay.String())
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			s.handle(u)
		}
	}
}

func (s *telegramSession) handle(u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() || msg.Command() != "start" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if s.cb.OnRegister != nil {
		s.cb.OnRegister(chatID)
	}

	if err := s.Send(s.ctx, chatID, connectReply); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			s.reportConflict(err)
			return
		}
		s.logger.Warn("failed to confirm registration", "chat_id", chatID, "error", err)
	}
}

func (s *telegramSession) reportConflict(err error) {
	s.conflict.Do(func() {
		if !errors.Is(err, ErrSessionConflict) {
			err = fmt.Errorf("%w: %v", ErrSessionConflict, err)
		}
		if s.cb.OnConflict != nil {
			s.cb.OnConflict(err)
		}
	})
}

// isConflict reports whether err is the Bot API 409 returned when another
// client is polling with the same token.
func isConflict(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
