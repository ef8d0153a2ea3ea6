package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inbound wire event names.
const (
	EventNewMessage        = "new_message"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventFriendRequest     = "friend_request"
	EventFriendAccepted    = "friend_accepted"
)

// Event is a decoded inbound frame. The set of implementations is closed;
// consumers switch on the concrete type.
type Event interface {
	EventName() string
	isEvent()
}

// Sender describes the author of a message. Servers send either a bare
// username string or an object with id and username.
type Sender struct {
	ID       UserID `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sender) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Username)
	}
	type plain Sender
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Sender(p)
	return nil
}

// Name returns the best label for display.
func (s Sender) Name() string {
	if s.Username != "" {
		return s.Username
	}
	return string(s.ID)
}

// Timestamp accepts RFC 3339 strings, "2006-01-02 15:04:05" strings, and
// unix milliseconds.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("created_at: unrecognized time %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// NewMessage is a chat message delivered to a channel.
type NewMessage struct {
	ChatID    ChatID    `json:"chat_id"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	CreatedAt Timestamp `json:"created_at"`
}

// UserTyping reports that a user started (or is still) composing.
type UserTyping struct {
	ChatID   ChatID `json:"chat_id"`
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
}

// UserStoppedTyping reports that a user stopped composing.
type UserStoppedTyping struct {
	ChatID   ChatID `json:"chat_id"`
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
}

// UserOnline reports a user coming online.
type UserOnline struct {
	UserID UserID `json:"user_id"`
}

// UserOffline reports a user going offline.
type UserOffline struct {
	UserID UserID `json:"user_id"`
}

// FriendRequest reports an incoming friend request.
type FriendRequest struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
}

// FriendAccepted reports that a sent friend request was accepted.
type FriendAccepted struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
}

func (NewMessage) EventName() string        { return EventNewMessage }
func (UserTyping) EventName() string        { return EventUserTyping }
func (UserStoppedTyping) EventName() string { return EventUserStoppedTyping }
func (UserOnline) EventName() string        { return EventUserOnline }
func (UserOffline) EventName() string       { return EventUserOffline }
func (FriendRequest) EventName() string     { return EventFriendRequest }
func (FriendAccepted) EventName() string    { return EventFriendAccepted }

func (NewMessage) isEvent()        {}
func (UserTyping) isEvent()        {}
func (UserStoppedTyping) isEvent() {}
func (UserOnline) isEvent()        {}
func (UserOffline) isEvent()       {}
func (FriendRequest) isEvent()     {}
func (FriendAccepted) isEvent()    {}
