package presence

import (
	"testing"
	"time"
)

func TestStatusUnknownByDefault(t *testing.T) {
	tr := NewTracker(nil)
	if got := tr.Status("u1"); got != StatusUnknown {
		t.Fatalf("Status() = %q, want unknown", got)
	}
	if _, ok := tr.Get("u1"); ok {
		t.Fatal("Get() found a record that was never set")
	}
}

func TestSetStatusUpserts(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tr := NewTracker(func() time.Time { return now })

	first := tr.SetStatus("u1", StatusOnline)
	now = now.Add(time.Minute)
	second := tr.SetStatus("u1", StatusOnline)

	if tr.Status("u1") != StatusOnline {
		t.Fatalf("Status() = %q, want online", tr.Status("u1"))
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("UpdatedAt not refreshed: %v then %v", first.UpdatedAt, second.UpdatedAt)
	}

	tr.SetStatus("u1", StatusOffline)
	if tr.Status("u1") != StatusOffline {
		t.Fatalf("Status() = %q, want offline", tr.Status("u1"))
	}
}

func TestOnline(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetStatus("c", StatusOnline)
	tr.SetStatus("a", StatusOnline)
	tr.SetStatus("b", StatusOffline)

	got := tr.Online()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Online() = %v, want [a c]", got)
	}
}
