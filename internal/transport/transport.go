// Package transport defines the physical connection contract used by the
// connection manager. Implementations live in subpackages.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Handlers receive inbound traffic for a connection. Both callbacks are
// invoked from the connection's reader goroutine.
type Handlers struct {
	// OnFrame is called once per inbound text frame.
	OnFrame func(data []byte)
	// OnClose is called at most once when the connection ends for any
	// reason other than a local Close. The error describes why.
	OnClose func(err error)
}

// Conn is an established bidirectional connection.
type Conn interface {
	// Serve starts delivering inbound frames to h. It must be called
	// exactly once.
	Serve(h Handlers)
	// Send writes one frame. It fails once the connection is broken.
	Send(data []byte) error
	// Close tears down the connection without invoking OnClose.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
