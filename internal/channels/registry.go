// Package channels tracks the logical conversations multiplexed over the
// connection and the subscriber registered for each.
package channels

import (
	"log/slog"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

// MessageSubscriber receives the messages of one channel.
type MessageSubscriber interface {
	HandleMessage(msg protocol.NewMessage)
}

// SubscriberFunc adapts a function to MessageSubscriber.
type SubscriberFunc func(msg protocol.NewMessage)

// HandleMessage implements MessageSubscriber.
func (f SubscriberFunc) HandleMessage(msg protocol.NewMessage) { f(msg) }

// CommandSink accepts outbound commands. The outbound queue implements it.
type CommandSink interface {
	EnqueueOrSend(cmd protocol.Command)
}

type entry struct {
	subscriber MessageSubscriber
	joined     bool
}

// Registry maps channel ids to their subscriber. It is owned by the client
// loop and is not safe for concurrent use.
type Registry struct {
	entries map[protocol.ChatID]*entry
	order   []protocol.ChatID
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[protocol.ChatID]*entry),
		logger:  logger.With("component", "channels"),
	}
}

func (r *Registry) ensure(id protocol.ChatID) *entry {
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
		r.order = append(r.order, id)
	}
	return e
}

func (r *Registry) remove(id protocol.ChatID) {
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			return
		}
	}
}

// Join records the channel as joined and issues join_chat through sink.
// A non-nil subscriber replaces the current one. Joining a channel that is
// already joined only updates the subscriber.
func (r *Registry) Join(id protocol.ChatID, subscriber MessageSubscriber, sink CommandSink) {
	e := r.ensure(id)
	if subscriber != nil {
		e.subscriber = subscriber
	}
	if e.joined {
		r.logger.Debug("channel already joined", "chat_id", id.String())
		return
	}
	e.joined = true
	sink.EnqueueOrSend(protocol.JoinChat(id))
}

// Leave removes the channel and its subscriber and issues leave_chat.
func (r *Registry) Leave(id protocol.ChatID, sink CommandSink) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	joined := e.joined
	r.remove(id)
	if joined {
		sink.EnqueueOrSend(protocol.LeaveChat(id))
	}
	return true
}

// Subscribe sets the subscriber for a channel without any wire traffic.
func (r *Registry) Subscribe(id protocol.ChatID, subscriber MessageSubscriber) {
	if subscriber == nil {
		r.Unsubscribe(id)
		return
	}
	r.ensure(id).subscriber = subscriber
}

// Unsubscribe removes the subscriber. Membership is left untouched.
func (r *Registry) Unsubscribe(id protocol.ChatID) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.subscriber = nil
	if !e.joined {
		r.remove(id)
	}
}

// Route hands msg to the channel's subscriber. Messages for channels with
// no subscriber are dropped and logged; Route reports whether it delivered.
func (r *Registry) Route(msg protocol.NewMessage) bool {
	sub, ok := r.Subscriber(msg.ChatID)
	if !ok {
		r.logger.Debug("dropping message for unsubscribed channel", "chat_id", msg.ChatID.String())
		return false
	}
	sub.HandleMessage(msg)
	return true
}

// Rejoin issues join_chat for every joined channel not in skip, in join
// order. Subscribers are kept as they are. It returns the number of joins
// issued.
func (r *Registry) Rejoin(sink CommandSink, skip map[protocol.ChatID]bool) int {
	n := 0
	for _, id := range r.order {
		if !r.Joined(id) || skip[id] {
			continue
		}
		sink.EnqueueOrSend(protocol.JoinChat(id))
		n++
	}
	if n > 0 {
		r.logger.Info("rejoined channels", "count", n)
	}
	return n
}

// Joined reports whether the channel is joined.
func (r *Registry) Joined(id protocol.ChatID) bool {
	e, ok := r.entries[id]
	return ok && e.joined
}

// Subscriber returns the channel's subscriber, if any.
func (r *Registry) Subscriber(id protocol.ChatID) (MessageSubscriber, bool) {
	e, ok := r.entries[id]
	if !ok || e.subscriber == nil {
		return nil, false
	}
	return e.subscriber, true
}

// Channels returns the joined channels in join order.
func (r *Registry) Channels() []protocol.ChatID {
	out := make([]protocol.ChatID, 0, len(r.order))
	for _, id := range r.order {
		if r.entries[id].joined {
			out = append(out, id)
		}
	}
	return out
}
