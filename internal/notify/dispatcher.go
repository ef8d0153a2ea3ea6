// Package notify turns selected inbound events into user-facing
// notifications.
package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

// Kind identifies a notification type.
type Kind string

const (
	KindNewMessage     Kind = "new_message"
	KindFriendRequest  Kind = "friend_request"
	KindFriendAccepted Kind = "friend_accepted"
)

// maxBodyRunes bounds the message preview shown in a notification.
const maxBodyRunes = 140

// Notification is what gets shown to the user.
type Notification struct {
	Kind   Kind
	Title  string
	Body   string
	ChatID protocol.ChatID
	UserID protocol.UserID
}

// Notifier displays notifications.
type Notifier interface {
	Show(n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification) error

// Show implements Notifier.
func (f NotifierFunc) Show(n Notification) error { return f(n) }

// Permission reports whether the user allowed notifications.
type Permission interface {
	Granted() bool
}

// StaticPermission is a fixed permission answer.
type StaticPermission bool

// Granted implements Permission.
func (p StaticPermission) Granted() bool { return bool(p) }

// Dispatcher gates and builds notifications. It performs no dedupe beyond
// suppressing messages for the chat on screen.
//
// Dispatcher is owned by the client loop and is not safe for concurrent use.
type Dispatcher struct {
	notifier   Notifier
	permission Permission
	activeChat protocol.ChatID
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil permission is treated as denied.
func NewDispatcher(notifier Notifier, permission Permission, logger *slog.Logger) *Dispatcher {
	if permission == nil {
		permission = StaticPermission(false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier:   notifier,
		permission: permission,
		logger:     logger.With("component", "notify"),
	}
}

// SetActiveChat records the chat currently on screen. Empty clears it.
func (d *Dispatcher) SetActiveChat(id protocol.ChatID) { d.activeChat = id }

// ActiveChat returns the chat currently on screen.
func (d *Dispatcher) ActiveChat() protocol.ChatID { return d.activeChat }

// Build returns the notification for ev, or false if ev is not a
// notifiable event.
func Build(ev protocol.Event) (Notification, bool) {
	switch e := ev.(type) {
	case protocol.NewMessage:
		return Notification{
			Kind:   KindNewMessage,
			Title:  fmt.Sprintf("New message from %s", e.Sender.Name()),
			Body:   preview(e.Message),
			ChatID: e.ChatID,
			UserID: e.Sender.ID,
		}, true
	case protocol.FriendRequest:
		return Notification{
			Kind:   KindFriendRequest,
			Title:  "Friend request",
			Body:   fmt.Sprintf("%s sent you a friend request", displayName(e.Username, e.UserID)),
			UserID: e.UserID,
		}, true
	case protocol.FriendAccepted:
		return Notification{
			Kind:   KindFriendAccepted,
			Title:  "Friend request accepted",
			Body:   fmt.Sprintf("%s accepted your friend request", displayName(e.Username, e.UserID)),
			UserID: e.UserID,
		}, true
	default:
		return Notification{}, false
	}
}

// Notify shows a notification for ev when permission is granted and, for
// messages, the chat is not the active one. It returns the notification
// and whether it was shown.
func (d *Dispatcher) Notify(ev protocol.Event) (Notification, bool) {
	n, ok := Build(ev)
	if !ok {
		return Notification{}, false
	}
	if !d.permission.Granted() {
		d.logger.Debug("notification permission not granted", "kind", string(n.Kind))
		return n, false
	}
	if n.Kind == KindNewMessage && d.activeChat != "" && n.ChatID == d.activeChat {
		d.logger.Debug("suppressing notification for active chat", "chat_id", n.ChatID.String())
		return n, false
	}
	if d.notifier == nil {
		return n, false
	}
	if err := d.notifier.Show(n); err != nil {
		d.logger.Warn("show notification", "kind", string(n.Kind), "error", err)
		return n, false
	}
	return n, true
}

func displayName(username string, id protocol.UserID) string {
	if name := strings.TrimSpace(username); name != "" {
		return name
	}
	return id.String()
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxBodyRunes {
		return text
	}
	return string(runes[:maxBodyRunes-1]) + "…"
}
