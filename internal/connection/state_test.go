package connection

import (
	"testing"
	"time"

	"github.com/haasonsaas/chatlink/internal/backoff"
)

func TestTransition(t *testing.T) {
	policy := backoff.DefaultPolicy()

	tests := []struct {
		name   string
		from   Snapshot
		input  Input
		want   Snapshot
		wantFx Effects
	}{
		{
			name:   "connect from disconnected dials",
			from:   Snapshot{State: Disconnected},
			input:  InputConnect,
			want:   Snapshot{State: Connecting, Dialing: true},
			wantFx: Effects{Dial: true},
		},
		{
			name:   "connect from failed dials fresh",
			from:   Snapshot{State: Failed, Attempt: 5},
			input:  InputConnect,
			want:   Snapshot{State: Connecting, Dialing: true},
			wantFx: Effects{Dial: true},
		},
		{
			name:  "connect while connecting is a no-op",
			from:  Snapshot{State: Connecting, Dialing: true},
			input: InputConnect,
			want:  Snapshot{State: Connecting, Dialing: true},
		},
		{
			name:  "connect while connected is a no-op",
			from:  Snapshot{State: Connected},
			input: InputConnect,
			want:  Snapshot{State: Connected},
		},
		{
			name:  "connect while reconnecting is a no-op",
			from:  Snapshot{State: Reconnecting, Attempt: 2, Backoff: 4 * time.Second},
			input: InputConnect,
			want:  Snapshot{State: Reconnecting, Attempt: 2, Backoff: 4 * time.Second},
		},
		{
			name:   "dial success opens",
			from:   Snapshot{State: Connecting, Dialing: true},
			input:  InputDialSucceeded,
			want:   Snapshot{State: Connected},
			wantFx: Effects{EmitOpen: true},
		},
		{
			name:   "reconnect success resets attempts",
			from:   Snapshot{State: Reconnecting, Attempt: 3, Backoff: 8 * time.Second, Dialing: true},
			input:  InputDialSucceeded,
			want:   Snapshot{State: Connected},
			wantFx: Effects{EmitOpen: true},
		},
		{
			name:  "dial success without a dial in flight is ignored",
			from:  Snapshot{State: Reconnecting, Backoff: time.Second},
			input: InputDialSucceeded,
			want:  Snapshot{State: Reconnecting, Backoff: time.Second},
		},
		{
			name:   "initial dial failure schedules first retry",
			from:   Snapshot{State: Connecting, Dialing: true},
			input:  InputDialFailed,
			want:   Snapshot{State: Reconnecting, Backoff: time.Second},
			wantFx: Effects{Retry: true, RetryAfter: time.Second},
		},
		{
			name:   "reconnect failure doubles the delay",
			from:   Snapshot{State: Reconnecting, Attempt: 1, Dialing: true},
			input:  InputDialFailed,
			want:   Snapshot{State: Reconnecting, Attempt: 2, Backoff: 4 * time.Second},
			wantFx: Effects{Retry: true, RetryAfter: 4 * time.Second},
		},
		{
			name:   "fifth failed reconnect fails terminally",
			from:   Snapshot{State: Reconnecting, Attempt: 4, Dialing: true},
			input:  InputDialFailed,
			want:   Snapshot{State: Failed, Attempt: 5},
			wantFx: Effects{EmitFailed: true},
		},
		{
			name:  "connection lost outside connected is ignored",
			from:  Snapshot{State: Connecting, Dialing: true},
			input: InputConnectionLost,
			want:  Snapshot{State: Connecting, Dialing: true},
		},
		{
			name:  "connection lost reconnects",
			from:  Snapshot{State: Connected},
			input: InputConnectionLost,
			want:  Snapshot{State: Reconnecting, Backoff: time.Second},
			wantFx: Effects{
				Retry:          true,
				RetryAfter:     time.Second,
				CloseTransport: true,
				EmitClosed:     true,
			},
		},
		{
			name:   "retry due dials",
			from:   Snapshot{State: Reconnecting, Attempt: 1, Backoff: 2 * time.Second},
			input:  InputRetryDue,
			want:   Snapshot{State: Reconnecting, Attempt: 1, Backoff: 2 * time.Second, Dialing: true},
			wantFx: Effects{Dial: true},
		},
		{
			name:  "retry due while dialing is ignored",
			from:  Snapshot{State: Reconnecting, Dialing: true},
			input: InputRetryDue,
			want:  Snapshot{State: Reconnecting, Dialing: true},
		},
		{
			name:  "retry due after disconnect is ignored",
			from:  Snapshot{State: Disconnected},
			input: InputRetryDue,
			want:  Snapshot{State: Disconnected},
		},
		{
			name:   "disconnect from connected emits closed",
			from:   Snapshot{State: Connected},
			input:  InputDisconnect,
			want:   Snapshot{State: Disconnected},
			wantFx: Effects{CancelRetry: true, CloseTransport: true, EmitClosed: true},
		},
		{
			name:   "disconnect while reconnecting cancels the retry",
			from:   Snapshot{State: Reconnecting, Attempt: 2, Backoff: 4 * time.Second},
			input:  InputDisconnect,
			want:   Snapshot{State: Disconnected},
			wantFx: Effects{CancelRetry: true, CloseTransport: true},
		},
		{
			name:  "disconnect when disconnected is a no-op",
			from:  Snapshot{State: Disconnected},
			input: InputDisconnect,
			want:  Snapshot{State: Disconnected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fx := Transition(tt.from, tt.input, policy)
			if got != tt.want {
				t.Errorf("snapshot = %+v, want %+v", got, tt.want)
			}
			if fx != tt.wantFx {
				t.Errorf("effects = %+v, want %+v", fx, tt.wantFx)
			}
		})
	}
}

func TestTransitionBackoffSequence(t *testing.T) {
	policy := backoff.Policy{BaseDelay: time.Second, Factor: 2, MaxAttempts: 5}

	snap, _ := Transition(Snapshot{}, InputConnect, policy)
	snap, fx := Transition(snap, InputDialFailed, policy)

	var delays []time.Duration
	for fx.Retry {
		delays = append(delays, fx.RetryAfter)
		snap, _ = Transition(snap, InputRetryDue, policy)
		snap, fx = Transition(snap, InputDialFailed, policy)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
	if snap.State != Failed {
		t.Errorf("final state = %v, want failed", snap.State)
	}
	if !fx.EmitFailed {
		t.Error("expected connection:failed to be emitted")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		Reconnecting: "reconnecting",
		Failed:       "failed",
		State(99):    "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
