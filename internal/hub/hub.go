package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 100

// Broadcaster is implemented by anything that can push a message to all
// live listeners. Producers (poller, bot manager, control API) depend on this
// interface rather than on [Hub] directly.
type Broadcaster interface {
	Broadcast(msg any)
}

// Subscription is a single listener attached to a [Hub].
//
// Messages arrive on [Subscription.C] already serialized as JSON. The channel
// is closed when the subscription is removed with [Hub.Unsubscribe].
type Subscription struct {
	id     string
	ch     chan []byte
	closed bool // guarded by Hub.mu
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// C returns the channel on which serialized messages are delivered.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Hub is an in-memory fan-out of JSON messages to subscribers.
//
// Hub is safe for concurrent use. Each subscriber gets a buffered channel;
// if the buffer fills (slow consumer), new messages are dropped for that
// subscriber rather than blocking the producer.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	bufferSize  int
	logger      *slog.Logger
}

// New creates an empty [Hub].
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		bufferSize:  defaultBufferSize,
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a new listener.
//
// If snapshot is non-nil it is invoked while the hub is locked and its result
// is queued as the first message on the new subscription, so a late joiner
// sees current state before any subsequent broadcast. snapshot must not call
// back into the hub.
//
// Caller must call [Hub.Unsubscribe] when done to prevent resource leaks.
func (h *Hub) Subscribe(snapshot func() any) *Subscription {
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan []byte, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if snapshot != nil {
		if data, err := json.Marshal(snapshot()); err != nil {
			h.logger.Error("failed to encode snapshot", "error", err)
		} else {
			sub.ch <- data
		}
	}
	h.subscribers[sub.id] = sub

	h.logger.Debug("listener subscribed", "subscription", sub.id, "listeners", len(h.subscribers))
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with a subscription that was never
// registered.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subscribers, sub.id)
	close(sub.ch)

	h.logger.Debug("listener unsubscribed", "subscription", sub.id, "listeners", len(h.subscribers))
}

// Broadcast serializes msg and offers it to every open subscription.
//
// Closed subscriptions and subscriptions with a full buffer are skipped.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			h.logger.Debug("listener not ready, message dropped", "subscription", sub.id)
		}
	}
}

// Count returns the number of currently registered listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
