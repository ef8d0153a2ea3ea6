package outbound

import (
	"errors"
	"fmt"
	"testing"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

type fakeSender struct {
	connected bool
	failAfter int // fail once this many sends succeeded; negative never fails
	sent      []protocol.Command
}

func newSender(connected bool) *fakeSender {
	return &fakeSender{connected: connected, failAfter: -1}
}

func (s *fakeSender) Connected() bool { return s.connected }

func (s *fakeSender) Send(cmd protocol.Command) error {
	if !s.connected {
		return errors.New("not connected")
	}
	if cmd.Kind == "bogus" {
		return fmt.Errorf("encode: %w", protocol.ErrInvalidCommand)
	}
	if s.failAfter >= 0 && len(s.sent) >= s.failAfter {
		s.connected = false
		return errors.New("connection dropped")
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func messages(cmds []protocol.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		if c.Kind == protocol.KindSendMessage {
			out[i] = c.Message
		} else {
			out[i] = string(c.Kind) + ":" + c.ChatID.String()
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSendsImmediatelyWhenConnected(t *testing.T) {
	s := newSender(true)
	q := NewQueue(s, Config{})

	q.EnqueueOrSend(protocol.SendMessage("1", "hi"))

	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	if got := messages(s.sent); !equal(got, []string{"hi"}) {
		t.Fatalf("sent = %v", got)
	}
}

func TestBuffersWhileOfflineAndFlushesFIFO(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})

	for i := 0; i < 5; i++ {
		q.EnqueueOrSend(protocol.SendMessage("1", fmt.Sprintf("m%d", i)))
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	for _, cmd := range q.Pending() {
		if cmd.EnqueuedAt.IsZero() {
			t.Fatal("EnqueuedAt not stamped")
		}
	}

	s.connected = true
	n, err := q.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("Flush() sent %d, want 5", n)
	}
	if got, want := messages(s.sent), []string{"m0", "m1", "m2", "m3", "m4"}; !equal(got, want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
}

func TestFlushIsResumable(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})
	for _, m := range []string{"a", "b", "c", "d"} {
		q.EnqueueOrSend(protocol.SendMessage("1", m))
	}

	s.connected = true
	s.failAfter = 2
	n, err := q.Flush()
	if err == nil {
		t.Fatal("Flush() should report the failed send")
	}
	if n != 2 {
		t.Fatalf("Flush() sent %d, want 2", n)
	}
	if got := messages(q.Pending()); !equal(got, []string{"c", "d"}) {
		t.Fatalf("pending = %v, want [c d]", got)
	}

	s.connected = true
	s.failAfter = -1
	if _, err := q.Flush(); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if got := messages(s.sent); !equal(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("sent = %v", got)
	}
}

func TestFlushOffline(t *testing.T) {
	q := NewQueue(newSender(false), Config{})
	q.EnqueueOrSend(protocol.SendMessage("1", "x"))
	if _, err := q.Flush(); !errors.Is(err, ErrOffline) {
		t.Fatalf("Flush() error = %v, want ErrOffline", err)
	}
}

func TestNoDeduplication(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})

	q.EnqueueOrSend(protocol.SendMessage("1", "same"))
	q.EnqueueOrSend(protocol.SendMessage("1", "same"))

	s.connected = true
	q.Flush()
	if got := messages(s.sent); !equal(got, []string{"same", "same"}) {
		t.Fatalf("sent = %v", got)
	}
}

func TestConnectedWithBacklogPreservesOrder(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})
	q.EnqueueOrSend(protocol.SendMessage("1", "first"))

	s.connected = true
	q.EnqueueOrSend(protocol.SendMessage("1", "second"))

	if got := messages(s.sent); !equal(got, []string{"first", "second"}) {
		t.Fatalf("sent = %v, want [first second]", got)
	}
}

func TestFailedDirectSendIsQueued(t *testing.T) {
	s := newSender(true)
	s.failAfter = 0
	q := NewQueue(s, Config{})

	q.EnqueueOrSend(protocol.SendMessage("1", "retry me"))
	if got := messages(q.Pending()); !equal(got, []string{"retry me"}) {
		t.Fatalf("pending = %v", got)
	}
}

func TestOnlineStatusIsNeverQueued(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})

	q.EnqueueOrSend(protocol.UpdateOnlineStatus(true))
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}

	s.connected = true
	q.EnqueueOrSend(protocol.UpdateOnlineStatus(false))
	if len(s.sent) != 1 || s.sent[0].Kind != protocol.KindUpdateOnlineStatus {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestInvalidCommandsAreDropped(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})
	q.EnqueueOrSend(protocol.Command{Kind: "bogus", ChatID: "1"})
	q.EnqueueOrSend(protocol.SendMessage("1", "ok"))

	s.connected = true
	n, err := q.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 1 || q.Len() != 0 {
		t.Fatalf("sent %d, pending %d", n, q.Len())
	}
}

func TestMaxSizeDropsOldest(t *testing.T) {
	var dropped []string
	q := NewQueue(newSender(false), Config{
		MaxSize: 2,
		OnOverflow: func(cmd protocol.Command, size int) {
			if size != 2 {
				t.Errorf("overflow size = %d, want 2", size)
			}
			dropped = append(dropped, cmd.Message)
		},
	})

	q.EnqueueOrSend(protocol.SendMessage("1", "a"))
	q.EnqueueOrSend(protocol.SendMessage("1", "b"))
	q.EnqueueOrSend(protocol.SendMessage("1", "c"))

	if got := messages(q.Pending()); !equal(got, []string{"b", "c"}) {
		t.Fatalf("pending = %v, want [b c]", got)
	}
	if !equal(dropped, []string{"a"}) {
		t.Fatalf("dropped = %v, want [a]", dropped)
	}
}

func TestPushFrontAndPendingJoins(t *testing.T) {
	s := newSender(false)
	q := NewQueue(s, Config{})

	q.EnqueueOrSend(protocol.JoinChat("42"))
	q.EnqueueOrSend(protocol.SendMessage("42", "hi"))
	q.PushFront(protocol.JoinChat("7"), protocol.JoinChat("8"))

	joins := q.PendingJoins()
	if len(joins) != 3 || !joins["42"] || !joins["7"] || !joins["8"] {
		t.Fatalf("PendingJoins() = %v", joins)
	}

	s.connected = true
	q.Flush()
	want := []string{"join_chat:7", "join_chat:8", "join_chat:42", "hi"}
	if got := messages(s.sent); !equal(got, want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
}
