// Package protocol implements the chat wire format: JSON text frames of the
// form {"event": "<name>", "data": {...}}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid JSON,
	// lack an event name, or carry a payload that fails validation.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownEvent is returned for well-formed frames whose event name
	// is not part of the inbound vocabulary.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrInvalidCommand is returned by Encode for commands that can never
	// be sent, such as a chat command without a chat id.
	ErrInvalidCommand = errors.New("invalid command")
)

// Frame is the envelope shared by both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type chatPayload struct {
	ChatID ChatID `json:"chat_id"`
}

type sendMessagePayload struct {
	ChatID  ChatID `json:"chat_id"`
	Message string `json:"message"`
}

type onlineStatusPayload struct {
	Online bool `json:"online"`
}

// Encode serializes an outbound command into a frame.
func Encode(cmd Command) ([]byte, error) {
	var payload any
	switch cmd.Kind {
	case KindJoinChat, KindLeaveChat, KindStartTyping, KindStopTyping:
		if cmd.ChatID == "" {
			return nil, fmt.Errorf("encode %s: %w: chat id is required", cmd.Kind, ErrInvalidCommand)
		}
		payload = chatPayload{ChatID: cmd.ChatID}
	case KindSendMessage:
		if cmd.ChatID == "" {
			return nil, fmt.Errorf("encode %s: %w: chat id is required", cmd.Kind, ErrInvalidCommand)
		}
		payload = sendMessagePayload{ChatID: cmd.ChatID, Message: cmd.Message}
	case KindUpdateOnlineStatus:
		payload = onlineStatusPayload{Online: cmd.Online}
	default:
		return nil, fmt.Errorf("encode: %w: unsupported kind %q", ErrInvalidCommand, cmd.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Kind, err)
	}
	frame, err := json.Marshal(Frame{Event: string(cmd.Kind), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Kind, err)
	}
	return frame, nil
}

// DecodeFrame parses the envelope only.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return frame, nil
}

// Decode parses and validates an inbound frame into a typed event.
// The returned error wraps ErrMalformedFrame or ErrUnknownEvent.
func Decode(raw []byte) (Event, error) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		return nil, err
	}

	var event Event
	switch frame.Event {
	case EventNewMessage:
		event, err = decodeAs[NewMessage](frame)
	case EventUserTyping:
		event, err = decodeAs[UserTyping](frame)
	case EventUserStoppedTyping:
		event, err = decodeAs[UserStoppedTyping](frame)
	case EventUserOnline:
		event, err = decodeAs[UserOnline](frame)
	case EventUserOffline:
		event, err = decodeAs[UserOffline](frame)
	case EventFriendRequest:
		event, err = decodeAs[FriendRequest](frame)
	case EventFriendAccepted:
		event, err = decodeAs[FriendAccepted](frame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func decodeAs[T Event](frame Frame) (Event, error) {
	if err := validatePayload(frame.Event, frame.Data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, frame.Event, err)
	}
	var v T
	if err := json.Unmarshal(frame.Data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, frame.Event, err)
	}
	return v, nil
}
