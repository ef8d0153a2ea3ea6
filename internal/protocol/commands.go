package protocol

import (
	"time"

	"github.com/google/uuid"
)

// CommandKind is the outbound wire event name of a command.
type CommandKind string

const (
	KindJoinChat           CommandKind = "join_chat"
	KindLeaveChat          CommandKind = "leave_chat"
	KindSendMessage        CommandKind = "send_message"
	KindStartTyping        CommandKind = "start_typing"
	KindStopTyping         CommandKind = "stop_typing"
	KindUpdateOnlineStatus CommandKind = "update_online_status"
)

// Command is an outbound instruction to the server. ID is local only; it
// correlates log lines for a command that sat in the outbound queue.
type Command struct {
	ID         string
	Kind       CommandKind
	ChatID     ChatID
	Message    string
	Online     bool
	EnqueuedAt time.Time
}

// Queueable reports whether the command may be buffered while offline.
// Online status updates are best effort and never queued.
func (c Command) Queueable() bool {
	switch c.Kind {
	case KindJoinChat, KindLeaveChat, KindSendMessage, KindStartTyping, KindStopTyping:
		return true
	default:
		return false
	}
}

func newCommand(kind CommandKind, chatID ChatID) Command {
	return Command{
		ID:     uuid.NewString(),
		Kind:   kind,
		ChatID: chatID,
	}
}

// JoinChat builds a join_chat command.
func JoinChat(chatID ChatID) Command { return newCommand(KindJoinChat, chatID) }

// LeaveChat builds a leave_chat command.
func LeaveChat(chatID ChatID) Command { return newCommand(KindLeaveChat, chatID) }

// StartTyping builds a start_typing command.
func StartTyping(chatID ChatID) Command { return newCommand(KindStartTyping, chatID) }

// StopTyping builds a stop_typing command.
func StopTyping(chatID ChatID) Command { return newCommand(KindStopTyping, chatID) }

// SendMessage builds a send_message command.
func SendMessage(chatID ChatID, text string) Command {
	cmd := newCommand(KindSendMessage, chatID)
	cmd.Message = text
	return cmd
}

// UpdateOnlineStatus builds an update_online_status command.
func UpdateOnlineStatus(online bool) Command {
	cmd := newCommand(KindUpdateOnlineStatus, "")
	cmd.Online = online
	return cmd
}
