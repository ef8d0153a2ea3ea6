package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haasonsaas/chatlink/internal/bus"
	"github.com/haasonsaas/chatlink/internal/channels"
	"github.com/haasonsaas/chatlink/internal/connection"
	"github.com/haasonsaas/chatlink/internal/protocol"
)

var errNoActiveChat = errors.New("no active chat; use /join <id> or /view <id>")

// chatClient is the part of client.Client the interactive session drives.
type chatClient interface {
	JoinChat(chatID protocol.ChatID) error
	LeaveChat(chatID protocol.ChatID) error
	SendMessage(chatID protocol.ChatID, text string) error
	StartTyping(chatID protocol.ChatID) error
	StopTyping(chatID protocol.ChatID) error
	RegisterMessageHandler(chatID protocol.ChatID, handler channels.MessageSubscriber) error
	UpdateOnlineStatus(online bool) error
	SetActiveChat(chatID protocol.ChatID) error
	Subscribe(topic bus.Topic, handler bus.Handler) string
	Channels() []protocol.ChatID
	OnlineUsers() []protocol.UserID
	State() connection.State
}

// syncWriter serializes writes from the input goroutine and the client loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// session interprets input lines as slash commands or messages for the
// active chat.
type session struct {
	client chatClient
	out    io.Writer
	paint  palette

	mu     sync.Mutex
	active protocol.ChatID
}

func newSession(c chatClient, out io.Writer) *session {
	return &session{client: c, out: out, paint: plainPalette}
}

func (s *session) activeChat() protocol.ChatID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *session) setActive(id protocol.ChatID) error {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	return s.client.SetActiveChat(id)
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...) //nolint:errcheck // terminal output
}

// statusf prints a "* " line about the connection or a channel.
func (s *session) statusf(format string, args ...any) {
	s.printf("%s", s.paint.status("* "+fmt.Sprintf(format, args...)))
}

// alertf prints a "! " line for errors and notifications.
func (s *session) alertf(format string, args ...any) {
	s.printf("%s", s.paint.alert("! "+fmt.Sprintf(format, args...)))
}

// watch prints client events.
func (s *session) watch() {
	s.client.Subscribe(bus.TopicAll, func(ev bus.Event) {
		switch e := ev.(type) {
		case bus.ConnectionOpen:
			s.statusf("connected")
		case bus.ConnectionClosed:
			if e.Reason != nil && !errors.Is(e.Reason, connection.ErrDisconnected) {
				s.statusf("connection lost: %v", e.Reason)
			}
		case bus.ConnectionFailed:
			s.statusf("giving up after %d attempts: %v", e.Attempts, e.Err)
		case bus.StateChanged:
			if e.To == connection.Reconnecting.String() && e.Backoff > 0 {
				s.statusf("reconnecting in %s", e.Backoff)
			}
		case bus.TypingChanged:
			if e.ChatID == s.activeChat() && e.Text != "" {
				s.statusf("%s", e.Text)
			}
		case bus.PresenceChanged:
			s.statusf("%s is %s", e.UserID, e.Status)
		case bus.QueueOverflow:
			s.statusf("offline queue full, dropped a %s", e.Dropped.Kind)
		}
	})
}

func (s *session) join(id protocol.ChatID) error {
	handler := channels.SubscriberFunc(func(msg protocol.NewMessage) {
		s.printf("[%s] %s: %s", msg.ChatID, s.paint.sender(msg.Sender.Name()), msg.Message)
	})
	if err := s.client.RegisterMessageHandler(id, handler); err != nil {
		return err
	}
	if err := s.client.JoinChat(id); err != nil {
		return err
	}
	return s.setActive(id)
}

// handle runs one input line. It reports whether the session should end.
func (s *session) handle(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		active := s.activeChat()
		if active == "" {
			return false, errNoActiveChat
		}
		return false, s.client.SendMessage(active, line)
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	arg := func() (protocol.ChatID, error) {
		if len(args) > 0 {
			return protocol.ChatID(args[0]), nil
		}
		if active := s.activeChat(); active != "" {
			return active, nil
		}
		return "", errNoActiveChat
	}

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		s.printf("commands: /join <id>, /leave [id], /view <id>, /typing [on|off], /status, /who, /online, /offline, /quit")
		return false, nil
	case "/join":
		if len(args) != 1 {
			return false, errors.New("usage: /join <id>")
		}
		return false, s.join(protocol.ChatID(args[0]))
	case "/leave":
		id, err := arg()
		if err != nil {
			return false, err
		}
		if err := s.client.LeaveChat(id); err != nil {
			return false, err
		}
		if id == s.activeChat() {
			return false, s.setActive("")
		}
		return false, nil
	case "/view":
		if len(args) != 1 {
			return false, errors.New("usage: /view <id>")
		}
		return false, s.setActive(protocol.ChatID(args[0]))
	case "/typing":
		active := s.activeChat()
		if active == "" {
			return false, errNoActiveChat
		}
		if len(args) > 0 && args[0] == "off" {
			return false, s.client.StopTyping(active)
		}
		return false, s.client.StartTyping(active)
	case "/status":
		chats := s.client.Channels()
		ids := make([]string, len(chats))
		for i, id := range chats {
			ids[i] = id.String()
		}
		s.printf("state: %s, active: %s, joined: [%s]", s.client.State(), s.activeChat(), strings.Join(ids, " "))
		return false, nil
	case "/who":
		users := s.client.OnlineUsers()
		if len(users) == 0 {
			s.printf("nobody is online")
			return false, nil
		}
		ids := make([]string, len(users))
		for i, id := range users {
			ids[i] = id.String()
		}
		s.printf("online: %s", strings.Join(ids, " "))
		return false, nil
	case "/online":
		return false, s.client.UpdateOnlineStatus(true)
	case "/offline":
		return false, s.client.UpdateOnlineStatus(false)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
}
