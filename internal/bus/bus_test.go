package bus

import (
	"errors"
	"testing"
)

func TestPublishMatchesTopic(t *testing.T) {
	b := New(nil)

	var opens, all int
	b.Subscribe(TopicConnectionOpen, func(Event) { opens++ })
	b.Subscribe(TopicAll, func(Event) { all++ })

	b.Publish(ConnectionOpen{})
	b.Publish(ConnectionClosed{Reason: errors.New("gone")})

	if opens != 1 {
		t.Errorf("open handler calls = %d, want 1", opens)
	}
	if all != 2 {
		t.Errorf("wildcard handler calls = %d, want 2", all)
	}
}

func TestPublishOrder(t *testing.T) {
	b := New(nil)

	var got []string
	b.Subscribe(TopicPresenceChanged, func(Event) { got = append(got, "first") })
	b.Subscribe(TopicPresenceChanged, func(Event) { got = append(got, "second") })

	b.Publish(PresenceChanged{UserID: "u1", Status: "online"})

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("order = %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(nil)

	calls := 0
	id := b.Subscribe(TopicTypingChanged, func(Event) { calls++ })
	if !b.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false for a live subscription")
	}
	if b.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = true for a removed subscription")
	}

	b.Publish(TypingChanged{ChatID: "7"})
	if calls != 0 {
		t.Fatalf("calls = %d after unsubscribe", calls)
	}
}

func TestPublishRecoversPanics(t *testing.T) {
	b := New(nil)

	reached := false
	b.Subscribe(TopicQueueOverflow, func(Event) { panic("boom") })
	b.Subscribe(TopicQueueOverflow, func(Event) { reached = true })

	b.Publish(QueueOverflow{Size: 1})
	if !reached {
		t.Fatal("a panicking handler stopped delivery")
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		event Event
		want  Topic
	}{
		{ConnectionOpen{}, "connection:open"},
		{ConnectionClosed{}, "connection:closed"},
		{ConnectionFailed{}, "connection:failed"},
		{StateChanged{}, "connection:state"},
		{TypingChanged{}, "typing:changed"},
		{PresenceChanged{}, "presence:changed"},
		{QueueOverflow{}, "queue:overflow"},
		{Notification{}, "notification"},
	}
	for _, tt := range tests {
		if got := tt.event.Topic(); got != tt.want {
			t.Errorf("%T.Topic() = %q, want %q", tt.event, got, tt.want)
		}
	}
}
