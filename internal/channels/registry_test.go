package channels

import (
	"testing"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

type recordingSink struct {
	commands []protocol.Command
}

func (s *recordingSink) EnqueueOrSend(cmd protocol.Command) {
	s.commands = append(s.commands, cmd)
}

func (s *recordingSink) kinds() []string {
	out := make([]string, len(s.commands))
	for i, c := range s.commands {
		out[i] = string(c.Kind) + ":" + c.ChatID.String()
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

func TestJoinIssuesJoinOnce(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	r.Join("42", nil, sink)
	r.Join("42", nil, sink)

	if got, want := sink.kinds(), []string{"join_chat:42"}; !equal(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	if !r.Joined("42") {
		t.Fatal("Joined(42) = false")
	}
}

func TestRouteDeliversToSubscriber(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	var got []string
	r.Join("7", SubscriberFunc(func(msg protocol.NewMessage) {
		got = append(got, msg.Message)
	}), sink)

	if !r.Route(protocol.NewMessage{ChatID: "7", Message: "one"}) {
		t.Fatal("Route() = false for a subscribed channel")
	}
	r.Route(protocol.NewMessage{ChatID: "7", Message: "two"})
	if r.Route(protocol.NewMessage{ChatID: "8", Message: "lost"}) {
		t.Fatal("Route() = true for an unknown channel")
	}

	if !equal(got, []string{"one", "two"}) {
		t.Fatalf("delivered = %v", got)
	}
}

func TestSubscribeReplacesHandler(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	var first, second int
	r.Join("1", SubscriberFunc(func(protocol.NewMessage) { first++ }), sink)
	r.Subscribe("1", SubscriberFunc(func(protocol.NewMessage) { second++ }))
	r.Route(protocol.NewMessage{ChatID: "1"})

	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", first, second)
	}
	if len(sink.commands) != 1 {
		t.Fatalf("Subscribe() produced wire traffic: %v", sink.kinds())
	}
}

func TestUnsubscribeKeepsMembership(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	r.Join("1", SubscriberFunc(func(protocol.NewMessage) {}), sink)
	r.Unsubscribe("1")

	if r.Route(protocol.NewMessage{ChatID: "1"}) {
		t.Fatal("Route() delivered after Unsubscribe()")
	}
	if !r.Joined("1") {
		t.Fatal("Unsubscribe() dropped membership")
	}
}

func TestSubscribeBeforeJoin(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	calls := 0
	r.Subscribe("9", SubscriberFunc(func(protocol.NewMessage) { calls++ }))
	if r.Joined("9") {
		t.Fatal("Subscribe() should not join")
	}
	r.Join("9", nil, sink)
	r.Route(protocol.NewMessage{ChatID: "9"})
	if calls != 1 {
		t.Fatalf("calls = %d, want the pre-registered handler kept", calls)
	}
}

func TestLeave(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	r.Join("42", SubscriberFunc(func(protocol.NewMessage) {}), sink)
	if !r.Leave("42", sink) {
		t.Fatal("Leave() = false for a joined channel")
	}
	if r.Leave("42", sink) {
		t.Fatal("Leave() = true for a channel already left")
	}

	if got, want := sink.kinds(), []string{"join_chat:42", "leave_chat:42"}; !equal(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	if _, ok := r.Subscriber("42"); ok {
		t.Fatal("subscriber survived Leave()")
	}
}

func TestRejoinKeepsOrderAndSubscribers(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	sub := SubscriberFunc(func(protocol.NewMessage) {})
	r.Join("a", sub, sink)
	r.Join("b", nil, sink)
	r.Join("c", nil, sink)
	r.Subscribe("d", sub)

	rejoin := &recordingSink{}
	n := r.Rejoin(rejoin, map[protocol.ChatID]bool{"b": true})

	if n != 2 {
		t.Fatalf("Rejoin() = %d, want 2", n)
	}
	if got, want := rejoin.kinds(), []string{"join_chat:a", "join_chat:c"}; !equal(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	if _, ok := r.Subscriber("a"); !ok {
		t.Fatal("subscriber lost across rejoin")
	}
}

func TestChannels(t *testing.T) {
	r := NewRegistry(nil)
	sink := &recordingSink{}

	r.Join("3", nil, sink)
	r.Join("1", nil, sink)
	r.Subscribe("2", SubscriberFunc(func(protocol.NewMessage) {}))

	got := r.Channels()
	if len(got) != 2 || got[0] != "3" || got[1] != "1" {
		t.Fatalf("Channels() = %v, want [3 1]", got)
	}
}
