// Package bus delivers client lifecycle and state-change events to
// collaborators.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

// Topic names an event stream.
type Topic string

const (
	TopicConnectionOpen   Topic = "connection:open"
	TopicConnectionClosed Topic = "connection:closed"
	TopicConnectionFailed Topic = "connection:failed"
	TopicConnectionState  Topic = "connection:state"
	TopicTypingChanged    Topic = "typing:changed"
	TopicPresenceChanged  Topic = "presence:changed"
	TopicQueueOverflow    Topic = "queue:overflow"
	TopicNotification     Topic = "notification"

	// TopicAll matches every topic.
	TopicAll Topic = "*"
)

// Event is a published event.
type Event interface {
	Topic() Topic
}

// ConnectionOpen is published after the transport is established.
type ConnectionOpen struct{}

// ConnectionClosed is published when an established connection ends.
type ConnectionClosed struct {
	Reason error
}

// ConnectionFailed is published once reconnect attempts are exhausted.
type ConnectionFailed struct {
	Err      error
	Attempts int
}

// StateChanged is published on every connection state transition.
type StateChanged struct {
	From    string
	To      string
	Attempt int
	Backoff time.Duration
}

// TypingUser is one visible typist.
type TypingUser struct {
	UserID protocol.UserID
	Name   string
}

// TypingChanged is published when a channel's set of typists changes.
type TypingChanged struct {
	ChatID protocol.ChatID
	Typers []TypingUser
	// Text is the rendered indicator, empty when nobody is typing.
	Text string
}

// PresenceChanged is published for every presence event, changed or not.
type PresenceChanged struct {
	UserID protocol.UserID
	Status string
	At     time.Time
}

// QueueOverflow is published when the outbound queue drops its oldest
// command to make room.
type QueueOverflow struct {
	Dropped protocol.Command
	Size    int
}

// Notification is published for each notification shown to the user.
type Notification struct {
	Kind   string
	Title  string
	Body   string
	ChatID protocol.ChatID
}

func (ConnectionOpen) Topic() Topic   { return TopicConnectionOpen }
func (ConnectionClosed) Topic() Topic { return TopicConnectionClosed }
func (ConnectionFailed) Topic() Topic { return TopicConnectionFailed }
func (StateChanged) Topic() Topic     { return TopicConnectionState }
func (TypingChanged) Topic() Topic    { return TopicTypingChanged }
func (PresenceChanged) Topic() Topic  { return TopicPresenceChanged }
func (QueueOverflow) Topic() Topic    { return TopicQueueOverflow }
func (Notification) Topic() Topic     { return TopicNotification }

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id      string
	topic   Topic
	handler Handler
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "bus")}
}

// Subscribe registers handler for topic (or TopicAll) and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(topic Topic, handler Handler) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription. It reports whether id was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers ev to every matching subscriber synchronously. A
// panicking handler is logged and skipped.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}
	topic := ev.Topic()

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == topic || s.topic == TopicAll {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.call(s, ev); err != nil {
			b.logger.Warn("event handler failed", "topic", string(topic), "subscription", s.id, "error", err)
		}
	}
}

func (b *Bus) call(s subscription, ev Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	s.handler(ev)
	return nil
}
