package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/chatlink/internal/backoff"
	"github.com/haasonsaas/chatlink/internal/transport"
)

var (
	// ErrNotConnected is returned by Send outside the Connected state.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrRetriesExhausted wraps the last dial error once the reconnect
	// budget is spent.
	ErrRetriesExhausted = errors.New("connection: reconnect attempts exhausted")

	// ErrDisconnected is the close reason for an explicit disconnect.
	ErrDisconnected = errors.New("connection: disconnected by client")
)

// Hooks receive lifecycle notifications. All hooks run on the loop goroutine.
type Hooks struct {
	Opened       func()
	Closed       func(reason error)
	Failed       func(err error)
	Frame        func(data []byte)
	StateChanged func(from, to Snapshot)
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Option configures a Manager.
type Option func(*Manager)

// WithAfterFunc replaces the timer used for backoff delays.
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.afterFunc = fn
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFramePoster sets how inbound frames are handed to the loop. Transport
// read pumps call it off the loop goroutine, so a blocking poster such as
// loop.PostWait slows reads when the loop falls behind. Default: post
func WithFramePoster(post func(func()) bool) Option {
	return func(m *Manager) {
		if post != nil {
			m.postFrame = post
		}
	}
}

// WithDialTimeout bounds each dial. Zero leaves the dialer's own timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

// Manager runs the connection state machine against a transport.
//
// Manager is not safe for concurrent use. Every method must be called on
// the goroutine that post delivers to; transport callbacks and timers are
// marshalled back through post.
type Manager struct {
	dialer      transport.Dialer
	policy      backoff.Policy
	hooks       Hooks
	post        func(func()) bool
	postFrame   func(func()) bool
	afterFunc   AfterFunc
	logger      *slog.Logger
	dialTimeout time.Duration

	snap       Snapshot
	conn       transport.Conn
	gen        uint64
	cancelDial context.CancelFunc
	stopRetry  func() bool
	lastErr    error
	closeErr   error
}

// NewManager creates a manager in the Disconnected state.
func NewManager(dialer transport.Dialer, policy backoff.Policy, post func(func()) bool, hooks Hooks, opts ...Option) *Manager {
	m := &Manager{
		dialer:    dialer,
		policy:    policy.Normalize(),
		hooks:     hooks,
		post:      post,
		postFrame: post,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		logger: slog.Default().With("component", "connection"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current connection record.
func (m *Manager) Snapshot() Snapshot { return m.snap }

// State returns the current lifecycle state.
func (m *Manager) State() State { return m.snap.State }

// Connected reports whether frames can be sent.
func (m *Manager) Connected() bool {
	return m.snap.State == Connected && m.conn != nil
}

// Connect starts connecting. It is a no-op unless the connection is
// Disconnected or Failed.
func (m *Manager) Connect() {
	m.apply(InputConnect)
}

// Disconnect closes the connection and cancels any pending retry.
func (m *Manager) Disconnect() {
	m.closeErr = ErrDisconnected
	m.apply(InputDisconnect)
}

// Send writes one encoded frame. A write failure is reported as a lost
// connection on the next loop turn.
func (m *Manager) Send(data []byte) error {
	if !m.Connected() {
		return ErrNotConnected
	}
	conn, gen := m.conn, m.gen
	if err := conn.Send(data); err != nil {
		m.post(func() { m.lost(gen, conn, err) })
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

func (m *Manager) apply(in Input) {
	from := m.snap
	next, fx := Transition(from, in, m.policy)

	if fx.CancelRetry {
		m.cancelRetry()
	}
	if fx.CloseTransport {
		m.closeTransport()
	}
	if fx.CancelRetry {
		// Invalidate in-flight dials and timers.
		m.gen++
	}

	m.snap = next
	if from != next {
		m.logger.Debug("connection state changed",
			"input", in.String(),
			"from", from.State.String(),
			"to", next.State.String(),
			"attempt", next.Attempt,
			"backoff", next.Backoff,
		)
		if m.hooks.StateChanged != nil {
			m.hooks.StateChanged(from, next)
		}
	}

	if fx.EmitClosed {
		reason := m.closeErr
		m.closeErr = nil
		m.logger.Info("connection closed", "reason", errString(reason))
		if m.hooks.Closed != nil {
			m.hooks.Closed(reason)
		}
	}
	if fx.EmitOpen {
		m.logger.Info("connection open")
		if m.hooks.Opened != nil {
			m.hooks.Opened()
		}
	}
	if fx.EmitFailed {
		err := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, next.Attempt, m.lastErr)
		m.logger.Error("connection failed", "attempts", next.Attempt, "error", m.lastErr)
		if m.hooks.Failed != nil {
			m.hooks.Failed(err)
		}
	}
	if fx.Dial {
		m.dial()
	}
	if fx.Retry {
		m.scheduleRetry(fx.RetryAfter)
	}
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.dialTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), m.dialTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	m.cancelDial = cancel

	dialer := m.dialer
	go func() {
		conn, err := dialer.Dial(ctx)
		cancel()
		if !m.post(func() { m.dialDone(gen, conn, err) }) && conn != nil {
			_ = conn.Close() //nolint:errcheck // loop is gone
		}
	}()
}

func (m *Manager) dialDone(gen uint64, conn transport.Conn, err error) {
	if gen != m.gen {
		if conn != nil {
			_ = conn.Close() //nolint:errcheck // stale dial
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.lastErr = err
		m.logger.Warn("dial failed", "attempt", m.snap.Attempt, "state", m.snap.State.String(), "error", err)
		m.apply(InputDialFailed)
		return
	}

	m.conn = conn
	m.lastErr = nil
	m.apply(InputDialSucceeded)
	if m.conn != conn {
		// A hook disconnected while handling open.
		return
	}
	conn.Serve(transport.Handlers{
		OnFrame: func(data []byte) {
			m.postFrame(func() {
				if gen == m.gen && m.conn == conn && m.hooks.Frame != nil {
					m.hooks.Frame(data)
				}
			})
		},
		OnClose: func(err error) {
			m.post(func() { m.lost(gen, conn, err) })
		},
	})
}

func (m *Manager) lost(gen uint64, conn transport.Conn, err error) {
	if gen != m.gen || m.conn != conn {
		return
	}
	m.logger.Warn("connection lost", "error", err)
	m.closeErr = err
	m.apply(InputConnectionLost)
}

func (m *Manager) scheduleRetry(delay time.Duration) {
	gen := m.gen
	m.logger.Info("reconnect scheduled", "attempt", m.snap.Attempt, "delay", delay)
	m.stopRetry = m.afterFunc(delay, func() {
		m.post(func() {
			if gen != m.gen {
				return
			}
			m.stopRetry = nil
			m.apply(InputRetryDue)
		})
	})
}

func (m *Manager) cancelRetry() {
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
}

func (m *Manager) closeTransport() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
		m.conn = nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
