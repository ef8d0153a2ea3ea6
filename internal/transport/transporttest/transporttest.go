// Package transporttest provides in-memory transport fakes for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haasonsaas/chatlink/internal/transport"
)

// ErrDialRefused is the default error for scripted dial failures.
var ErrDialRefused = errors.New("transporttest: dial refused")

// Dialer hands out fake connections. Failures can be scripted ahead of time.
type Dialer struct {
	mu       sync.Mutex
	failures []error
	dials    int
	last     *Conn
	conns    chan *Conn
	gate     chan struct{}
}

// NewDialer creates a dialer whose dials succeed by default.
func NewDialer() *Dialer {
	return &Dialer{conns: make(chan *Conn, 64)}
}

// FailNext makes the next n dials fail with err (ErrDialRefused if nil).
func (d *Dialer) FailNext(n int, err error) {
	if err == nil {
		err = ErrDialRefused
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures = append(d.failures, err)
	}
}

// Hold blocks subsequent dials until Release is called.
func (d *Dialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Release unblocks dials held by Hold.
func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}
	c := NewConn()
	d.last = c
	select {
	case d.conns <- c:
	default:
	}
	return c, nil
}

// Dials returns the number of dial attempts so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recent successful connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// NextConn waits for the next successful dial.
func (d *Dialer) NextConn(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-d.conns:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Conn is an in-memory connection that records outbound frames.
type Conn struct {
	mu        sync.Mutex
	deliver   sync.Mutex // held while handlers run, keeps deliveries ordered
	handlers  transport.Handlers
	served    bool
	backlog   [][]byte
	sent      [][]byte
	sendErr   error
	closed    bool
	local     bool
	dropped   error
	sentCh    chan []byte
	servedCh  chan struct{}
	closeOnce sync.Once
}

// NewConn creates an open connection.
func NewConn() *Conn {
	return &Conn{
		sentCh:   make(chan []byte, 1024),
		servedCh: make(chan struct{}),
	}
}

// Serve implements transport.Conn. Like a socket read pump, delivery runs
// off the caller's goroutine. Frames injected before Serve are delivered
// first, in order.
func (c *Conn) Serve(h transport.Handlers) {
	c.mu.Lock()
	if c.served {
		c.mu.Unlock()
		return
	}
	c.served = true
	c.handlers = h
	backlog := c.backlog
	c.backlog = nil
	dropped := c.dropped
	c.mu.Unlock()

	c.deliver.Lock()
	close(c.servedCh)
	go func() {
		defer c.deliver.Unlock()
		for _, frame := range backlog {
			if h.OnFrame != nil {
				h.OnFrame(frame)
			}
		}
		if dropped != nil && h.OnClose != nil {
			h.OnClose(dropped)
		}
	}()
}

// Send implements transport.Conn.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	frame := append([]byte(nil), data...)
	c.sent = append(c.sent, frame)
	select {
	case c.sentCh <- frame:
	default:
	}
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.local = true
	return nil
}

// Inject delivers an inbound frame.
func (c *Conn) Inject(data []byte) {
	c.mu.Lock()
	if !c.served {
		c.backlog = append(c.backlog, append([]byte(nil), data...))
		c.mu.Unlock()
		return
	}
	h := c.handlers
	c.mu.Unlock()
	c.deliver.Lock()
	defer c.deliver.Unlock()
	if h.OnFrame != nil {
		h.OnFrame(data)
	}
}

// Drop simulates the remote end going away.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = errors.New("transporttest: connection dropped")
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.local {
			c.mu.Unlock()
			return
		}
		c.closed = true
		if !c.served {
			c.dropped = err
			c.mu.Unlock()
			return
		}
		h := c.handlers
		c.mu.Unlock()
		c.deliver.Lock()
		defer c.deliver.Unlock()
		if h.OnClose != nil {
			h.OnClose(err)
		}
	})
}

// FailSends makes subsequent sends return err. Nil restores sending.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a copy of every frame written so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Next waits for the next outbound frame.
func (c *Conn) Next(timeout time.Duration) ([]byte, bool) {
	select {
	case frame := <-c.sentCh:
		return frame, true
	case <-time.After(timeout):
		return nil, false
	}
}

// WaitServed blocks until Serve has been called.
func (c *Conn) WaitServed(timeout time.Duration) bool {
	select {
	case <-c.servedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ClosedLocally reports whether Close was called.
func (c *Conn) ClosedLocally() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}
