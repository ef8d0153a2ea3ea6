// Package connection owns the physical connection lifecycle: connect,
// disconnect, and automatic reconnect with exponential backoff.
//
// The lifecycle is an explicit state machine. Transition is a pure function
// from (snapshot, input) to (snapshot, effects); Manager executes the effects
// against a transport and timers.
package connection

import (
	"time"

	"github.com/haasonsaas/chatlink/internal/backoff"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Input drives a transition.
type Input int

const (
	// InputConnect is an explicit connect request.
	InputConnect Input = iota
	// InputDisconnect is an explicit disconnect request.
	InputDisconnect
	// InputDialSucceeded reports that the in-flight dial completed.
	InputDialSucceeded
	// InputDialFailed reports that the in-flight dial failed.
	InputDialFailed
	// InputConnectionLost reports a transport failure or server close.
	InputConnectionLost
	// InputRetryDue fires when the backoff delay has elapsed.
	InputRetryDue
)

func (in Input) String() string {
	switch in {
	case InputConnect:
		return "connect"
	case InputDisconnect:
		return "disconnect"
	case InputDialSucceeded:
		return "dial_succeeded"
	case InputDialFailed:
		return "dial_failed"
	case InputConnectionLost:
		return "connection_lost"
	case InputRetryDue:
		return "retry_due"
	default:
		return "unknown"
	}
}

// Snapshot is the observable connection record.
type Snapshot struct {
	State State
	// Attempt counts consecutive failed reconnect attempts. It resets to
	// zero on every successful connection.
	Attempt int
	// Backoff is the delay of the currently scheduled retry, if any.
	Backoff time.Duration
	// Dialing is true while a dial is in flight.
	Dialing bool
}

// Effects are the side effects a transition asks for.
type Effects struct {
	Dial           bool
	Retry          bool
	RetryAfter     time.Duration
	CancelRetry    bool
	CloseTransport bool
	EmitOpen       bool
	EmitClosed     bool
	EmitFailed     bool
}

// Transition computes the next snapshot and the effects to run. Inputs that
// do not apply to the current state leave it unchanged with no effects.
func Transition(cur Snapshot, in Input, policy backoff.Policy) (Snapshot, Effects) {
	var fx Effects

	switch in {
	case InputConnect:
		switch cur.State {
		case Disconnected, Failed:
			return Snapshot{State: Connecting, Dialing: true}, Effects{Dial: true}
		}

	case InputDisconnect:
		if cur.State == Disconnected {
			return cur, fx
		}
		fx.CancelRetry = true
		fx.CloseTransport = true
		fx.EmitClosed = cur.State == Connected
		return Snapshot{State: Disconnected}, fx

	case InputDialSucceeded:
		if !cur.Dialing {
			return cur, fx
		}
		switch cur.State {
		case Connecting, Reconnecting:
			return Snapshot{State: Connected}, Effects{EmitOpen: true}
		}

	case InputDialFailed:
		if !cur.Dialing {
			return cur, fx
		}
		switch cur.State {
		case Connecting:
			delay := policy.Delay(0)
			return Snapshot{State: Reconnecting, Backoff: delay}, Effects{Retry: true, RetryAfter: delay}
		case Reconnecting:
			failures := cur.Attempt + 1
			if policy.Exhausted(failures) {
				return Snapshot{State: Failed, Attempt: failures}, Effects{EmitFailed: true}
			}
			delay := policy.Delay(failures)
			return Snapshot{State: Reconnecting, Attempt: failures, Backoff: delay}, Effects{Retry: true, RetryAfter: delay}
		}

	case InputConnectionLost:
		if cur.State != Connected {
			return cur, fx
		}
		delay := policy.Delay(0)
		return Snapshot{State: Reconnecting, Backoff: delay}, Effects{
			Retry:          true,
			RetryAfter:     delay,
			CloseTransport: true,
			EmitClosed:     true,
		}

	case InputRetryDue:
		if cur.State != Reconnecting || cur.Dialing {
			return cur, fx
		}
		next := cur
		next.Dialing = true
		return next, Effects{Dial: true}
	}

	return cur, fx
}
