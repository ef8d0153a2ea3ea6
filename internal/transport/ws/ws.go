// Package ws implements the transport contract over gorilla/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/chatlink/internal/transport"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultMaxMessageBytes  = 1 << 20
)

// Config configures the WebSocket dialer.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Header is sent with the handshake request.
	Header http.Header

	// PrepareHeader, if set, may add per-dial headers (trace propagation).
	PrepareHeader func(ctx context.Context, h http.Header)

	// HandshakeTimeout bounds the opening handshake (default 10s).
	HandshakeTimeout time.Duration

	// WriteWait bounds a single frame write (default 10s).
	WriteWait time.Duration

	// PongWait is how long the reader waits for any traffic, pongs
	// included, before declaring the peer gone (default 60s).
	PongWait time.Duration

	// PingInterval is how often pings are sent. Defaults to 9/10 of
	// PongWait. Negative disables pings.
	PingInterval time.Duration

	// MaxMessageBytes limits inbound frame size (default 1 MiB).
	MaxMessageBytes int64
}

// Dialer opens WebSocket connections.
type Dialer struct {
	config Config
	dialer *websocket.Dialer
}

// NewDialer creates a dialer with defaults applied.
func NewDialer(config Config) *Dialer {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaultWriteWait
	}
	if config.PongWait <= 0 {
		config.PongWait = defaultPongWait
	}
	if config.PingInterval == 0 {
		config.PingInterval = config.PongWait * 9 / 10
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Dialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Dial performs the WebSocket handshake.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	header := d.config.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if d.config.PrepareHeader != nil {
		d.config.PrepareHeader(ctx, header)
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.config.URL, header)
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain before close
		_ = resp.Body.Close()                 //nolint:errcheck // best-effort cleanup
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: handshake status %d: %w", d.config.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.config.URL, err)
	}
	return newConn(conn, d.config), nil
}

type conn struct {
	ws     *websocket.Conn
	config Config

	writeMu sync.Mutex
	closed  atomic.Bool
	served  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func newConn(ws *websocket.Conn, config Config) *conn {
	return &conn{
		ws:     ws,
		config: config,
		done:   make(chan struct{}),
	}
}

func (c *conn) Serve(h transport.Handlers) {
	if !c.served.CompareAndSwap(false, true) {
		return
	}
	go c.readLoop(h)
	if c.config.PingInterval > 0 {
		go c.pingLoop()
	}
}

func (c *conn) Send(data []byte) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait)) //nolint:errcheck
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.shutdown()

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck // best-effort close handshake
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) readLoop(h transport.Handlers) {
	c.ws.SetReadLimit(c.config.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait)) //nolint:errcheck
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown()
			// A local Close already knows the connection is gone.
			if c.closed.CompareAndSwap(false, true) {
				_ = c.ws.Close() //nolint:errcheck // best-effort cleanup
				if h.OnClose != nil {
					h.OnClose(closeReason(err))
				}
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait)) //nolint:errcheck
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if h.OnFrame != nil {
			h.OnFrame(data)
		}
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait))
			c.writeMu.Unlock()
			if err != nil {
				// The reader observes the broken connection and reports it.
				_ = c.ws.Close() //nolint:errcheck // unblock the reader
				return
			}
		}
	}
}

// CloseError describes why the peer ended the connection.
type CloseError struct {
	Code   int
	Reason string
	Err    error
}

func (e *CloseError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("connection closed (%d %s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("connection lost: %v", e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

func closeReason(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: ce.Code, Reason: ce.Text, Err: err}
	}
	return &CloseError{Err: err}
}
