package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/recwatch/recwatch/internal/hub"
)

var (
	// ErrSessionConflict is reported when another process is polling with
	// the same token.
	ErrSessionConflict = errors.New("bot session conflict")

	// ErrTokenInvalid is returned when a session cannot be created for a token.
	ErrTokenInvalid = errors.New("bot token rejected")
)

// Callbacks are the events a [Session] reports back to its manager.
type Callbacks struct {
	// OnRegister is called when a recipient performs the connect handshake.
	OnRegister func(recipientID string)

	// OnConflict is called once when the remote service reports a
	// conflicting session. The session stops polling afterwards.
	OnConflict func(err error)
}

// Session is a live connection to the remote chat service.
type Session interface {
	Send(ctx context.Context, recipientID, text string) error
	Teardown() error
}

// SessionFactory creates sessions bound to a token.
type SessionFactory interface {
	CreateSession(ctx context.Context, token string, cb Callbacks) (Session, error)
}

// State is the manager's lifecycle state.
type State int

const (
	Unconfigured State = iota
	Configured
	Connected
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Connected:
		return "connected"
	default:
		return "unconfigured"
	}
}

// Status summarizes the bot session for snapshots.
type Status struct {
	Active     bool   `json:"active"`
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`
	ChatID     string `json:"chatId,omitempty"`
}

// StatusMessage is broadcast when the session state changes.
type StatusMessage struct {
	Type string `json:"type"`
	Status
}

// ConnectedMessage is broadcast when a recipient registers.
type ConnectedMessage struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

// Manager owns at most one bot session and the recipient bound to it.
//
// Start and Stop are serialized. Session callbacks only take the state lock,
// so a session may report events while Start or Stop is in progress.
type Manager struct {
	factory     SessionFactory
	broadcaster hub.Broadcaster
	logger      *slog.Logger

	lifecycle sync.Mutex

	mu      sync.Mutex
	token   string
	session Session
	chatID  string
	gen     uint64 // bumped whenever the session is replaced or dropped
}

// NewManager creates an unconfigured [Manager].
func NewManager(factory SessionFactory, b hub.Broadcaster, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:     factory,
		broadcaster: b,
		logger:      logger.With("component", "bot"),
	}
}

// Start binds the manager to token.
//
// Starting with the token of the current session is a no-op. A session for a
// different token is torn down before the new one is created. If creation
// fails the manager is left unconfigured and the error wraps
// [ErrTokenInvalid].
func (m *Manager) Start(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrTokenInvalid)
	}
	if m.factory == nil {
		return fmt.Errorf("%w: no session factory configured", ErrTokenInvalid)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.session != nil && m.token == token {
		m.mu.Unlock()
		m.logger.Debug("bot session already running for token")
		return nil
	}
	old := m.session
	m.session, m.token, m.chatID = nil, "", ""
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("replacing bot session")
		m.teardown(old)
	}

	s, err := m.factory.CreateSession(ctx, token, Callbacks{
		OnRegister: func(id string) { m.register(gen, id) },
		OnConflict: func(err error) { m.conflict(gen, err) },
	})
	if err != nil {
		m.logger.Warn("failed to create bot session", "error", err)
		if errors.Is(err, ErrTokenInvalid) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		// a conflict was reported before the session was installed
		m.mu.Unlock()
		m.teardown(s)
		return ErrSessionConflict
	}
	m.session, m.token = s, token
	m.mu.Unlock()

	m.logger.Info("bot session started")
	return nil
}

// Stop tears down the session, forgets the token and recipient, and
// broadcasts a status event. Teardown errors are logged.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	s := m.session
	m.session, m.token, m.chatID = nil, "", ""
	m.gen++
	m.mu.Unlock()

	if s != nil {
		m.teardown(s)
		m.logger.Info("bot session stopped")
	}
	m.BroadcastStatus()
}

// Notify delivers text to the registered recipient.
//
// It does nothing unless the manager is connected. Delivery failures are
// logged, and a conflict terminates the session.
func (m *Manager) Notify(ctx context.Context, text string) {
	m.mu.Lock()
	s, chatID, gen := m.session, m.chatID, m.gen
	m.mu.Unlock()

	if s == nil || chatID == "" {
		m.logger.Debug("bot not connected, message skipped")
		return
	}

	if err := s.Send(ctx, chatID, text); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			m.conflict(gen, err)
			return
		}
		m.logger.Error("bot message delivery failed", "chat_id", chatID, "error", err)
		return
	}
	m.logger.Info("bot message sent", "chat_id", chatID)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	switch {
	case m.session == nil:
		return Unconfigured
	case m.chatID == "":
		return Configured
	default:
		return Connected
	}
}

// Status returns the session flags.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Active:     m.session != nil,
		Configured: m.token != "",
		Connected:  m.session != nil && m.chatID != "",
		ChatID:     m.chatID,
	}
}

// BroadcastStatus pushes the current [Status] to listeners.
func (m *Manager) BroadcastStatus() {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.Broadcast(StatusMessage{Type: "telegram_status", Status: m.Status()})
}

// register binds the recipient if gen still identifies the live session.
// The most recent registrant replaces any earlier one.
func (m *Manager) register(gen uint64, chatID string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	prev := m.chatID
	m.chatID = chatID
	m.mu.Unlock()

	if prev != "" && prev != chatID {
		m.logger.Info("bot recipient replaced", "previous_chat_id", prev, "chat_id", chatID)
	} else {
		m.logger.Info("bot recipient registered", "chat_id", chatID)
	}

	if m.broadcaster != nil {
		m.broadcaster.Broadcast(ConnectedMessage{Type: "telegram_connected", ChatID: chatID})
	}
}

// conflict drops the session identified by gen. Teardown runs in the
// background because the session may be reporting from its own goroutine.
func (m *Manager) conflict(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	s := m.session
	m.session, m.token, m.chatID = nil, "", ""
	m.gen++
	m.mu.Unlock()

	m.logger.Warn("bot session conflict, stopping session", "error", err)
	if s != nil {
		go m.teardown(s)
	}
	m.BroadcastStatus()
}

func (m *Manager) teardown(s Session) {
	if err := s.Teardown(); err != nil {
		m.logger.Warn("bot session teardown failed", "error", err)
	}
}
