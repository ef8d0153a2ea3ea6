// Package outbound buffers commands issued while the connection is down and
// replays them in order once it is back.
package outbound

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

// ErrOffline is returned by Flush when the sender is not connected.
var ErrOffline = errors.New("outbound: not connected")

// Sender writes commands to the connection.
type Sender interface {
	Connected() bool
	Send(cmd protocol.Command) error
}

// Config configures a Queue.
type Config struct {
	// MaxSize bounds the number of buffered commands. When full, the oldest
	// command is dropped. Zero means unbounded.
	MaxSize int

	// OnOverflow is called with each command dropped by MaxSize.
	OnOverflow func(dropped protocol.Command, size int)

	// Now stamps EnqueuedAt. Default: time.Now
	Now func() time.Time

	Logger *slog.Logger
}

// Queue forwards commands while connected and buffers them otherwise.
// Buffered commands are never deduplicated.
//
// Queue is owned by the client loop and is not safe for concurrent use.
type Queue struct {
	sender     Sender
	pending    []protocol.Command
	maxSize    int
	onOverflow func(protocol.Command, int)
	now        func() time.Time
	logger     *slog.Logger
}

// NewQueue creates an empty queue that writes through sender.
func NewQueue(sender Sender, config Config) *Queue {
	q := &Queue{
		sender:     sender,
		maxSize:    config.MaxSize,
		onOverflow: config.OnOverflow,
		now:        config.Now,
		logger:     config.Logger,
	}
	if q.now == nil {
		q.now = time.Now
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	q.logger = q.logger.With("component", "outbound")
	return q
}

// EnqueueOrSend sends cmd when connected with nothing buffered ahead of it,
// and buffers it otherwise. Commands that are not queueable are sent only
// when connected and dropped when not.
func (q *Queue) EnqueueOrSend(cmd protocol.Command) {
	if !cmd.Queueable() {
		if !q.sender.Connected() {
			q.logger.Debug("dropping unqueueable command while offline", "kind", string(cmd.Kind), "command_id", cmd.ID)
			return
		}
		if err := q.sender.Send(cmd); err != nil {
			q.logger.Warn("send failed", "kind", string(cmd.Kind), "command_id", cmd.ID, "error", err)
		}
		return
	}

	if q.sender.Connected() && len(q.pending) == 0 {
		err := q.sender.Send(cmd)
		if err == nil {
			return
		}
		if errors.Is(err, protocol.ErrInvalidCommand) {
			q.logger.Warn("dropping invalid command", "kind", string(cmd.Kind), "command_id", cmd.ID, "error", err)
			return
		}
		q.logger.Warn("send failed, queueing", "kind", string(cmd.Kind), "command_id", cmd.ID, "error", err)
		q.push(cmd)
		return
	}

	q.push(cmd)
	if q.sender.Connected() {
		if _, err := q.Flush(); err != nil {
			q.logger.Debug("flush interrupted", "pending", len(q.pending), "error", err)
		}
	}
}

func (q *Queue) push(cmd protocol.Command) {
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = q.now()
	}
	if q.maxSize > 0 && len(q.pending) >= q.maxSize {
		dropped := q.pending[0]
		q.pending[0] = protocol.Command{}
		q.pending = q.pending[1:]
		q.logger.Warn("outbound queue full, dropping oldest",
			"kind", string(dropped.Kind),
			"chat_id", dropped.ChatID.String(),
			"command_id", dropped.ID,
			"max_size", q.maxSize,
		)
		if q.onOverflow != nil {
			q.onOverflow(dropped, q.maxSize)
		}
	}
	q.pending = append(q.pending, cmd)
}

// PushFront buffers cmds ahead of everything already queued, keeping their
// relative order. MaxSize does not apply.
func (q *Queue) PushFront(cmds ...protocol.Command) {
	if len(cmds) == 0 {
		return
	}
	now := q.now()
	head := make([]protocol.Command, 0, len(cmds)+len(q.pending))
	for _, cmd := range cmds {
		if cmd.EnqueuedAt.IsZero() {
			cmd.EnqueuedAt = now
		}
		head = append(head, cmd)
	}
	q.pending = append(head, q.pending...)
}

// Flush sends buffered commands in enqueue order. It stops at the first
// send failure; that command and everything after it stay buffered for the
// next flush. It returns the number of commands sent.
func (q *Queue) Flush() (int, error) {
	sent := 0
	for len(q.pending) > 0 {
		if !q.sender.Connected() {
			return sent, ErrOffline
		}
		cmd := q.pending[0]
		if err := q.sender.Send(cmd); err != nil {
			if errors.Is(err, protocol.ErrInvalidCommand) {
				q.logger.Warn("dropping invalid command", "kind", string(cmd.Kind), "command_id", cmd.ID, "error", err)
				q.pop()
				continue
			}
			return sent, fmt.Errorf("flush %s: %w", cmd.Kind, err)
		}
		q.pop()
		sent++
	}
	if len(q.pending) == 0 {
		q.pending = nil
	}
	return sent, nil
}

func (q *Queue) pop() {
	q.pending[0] = protocol.Command{}
	q.pending = q.pending[1:]
}

// Len returns the number of buffered commands.
func (q *Queue) Len() int { return len(q.pending) }

// Pending returns a copy of the buffered commands in order.
func (q *Queue) Pending() []protocol.Command {
	out := make([]protocol.Command, len(q.pending))
	copy(out, q.pending)
	return out
}

// PendingJoins returns the channels that have a buffered join_chat.
func (q *Queue) PendingJoins() map[protocol.ChatID]bool {
	joins := make(map[protocol.ChatID]bool)
	for _, cmd := range q.pending {
		if cmd.Kind == protocol.KindJoinChat {
			joins[cmd.ChatID] = true
		}
	}
	return joins
}
