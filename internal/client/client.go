// Package client is the chat transport client. It multiplexes logical chat
// channels over one WebSocket connection, reconnects with backoff, buffers
// commands while offline, and turns inbound frames into routed messages,
// typing indicators, presence updates and notifications.
//
// All component state is owned by a single event loop goroutine. Public
// methods post work to the loop and return immediately; outcomes arrive as
// bus events. Message handlers and bus handlers run on the loop goroutine
// and may call the posting methods, but must not call ActiveTypers,
// PresenceOf, OnlineUsers, Channels or Close, which wait for the loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/chatlink/internal/bus"
	"github.com/haasonsaas/chatlink/internal/channels"
	"github.com/haasonsaas/chatlink/internal/config"
	"github.com/haasonsaas/chatlink/internal/connection"
	"github.com/haasonsaas/chatlink/internal/loop"
	"github.com/haasonsaas/chatlink/internal/notify"
	"github.com/haasonsaas/chatlink/internal/observability"
	"github.com/haasonsaas/chatlink/internal/outbound"
	"github.com/haasonsaas/chatlink/internal/presence"
	"github.com/haasonsaas/chatlink/internal/protocol"
	"github.com/haasonsaas/chatlink/internal/transport"
	"github.com/haasonsaas/chatlink/internal/transport/ws"
	"github.com/haasonsaas/chatlink/internal/typing"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client: closed")

// Client is a chat transport client. Create one with New and share it by
// reference.
type Client struct {
	cfg       *config.Config
	logger    *slog.Logger
	loop      *loop.Loop
	bus       *bus.Bus
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	now       func() time.Time
	afterFunc connection.AfterFunc

	conn       *connection.Manager
	registry   *channels.Registry
	typing     *typing.Aggregator
	presence   *presence.Tracker
	queue      *outbound.Queue
	dispatcher *notify.Dispatcher

	// Loop-owned.
	online  *bool
	idle       map[protocol.ChatID]idleTimer
	idleSeq    uint64
	sweepEvery time.Duration
	sweepStop  chan struct{}

	state   atomic.Int32
	attempt atomic.Int64

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

type idleTimer struct {
	seq  uint64
	stop func() bool
}

// New creates a client in the Disconnected state. A nil cfg uses
// config.Default; a server URL is required unless WithDialer is given.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.afterFunc == nil {
		o.afterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	if o.tracer == nil {
		o.tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	if o.permission == nil {
		o.permission = notify.StaticPermission(cfg.Notify.Enabled)
	}

	c := &Client{
		cfg:       cfg,
		logger:    o.logger.With("component", "client"),
		bus:       bus.New(o.logger),
		metrics:   observability.NewMetrics(o.registerer),
		tracer:    o.tracer,
		now:       o.now,
		afterFunc: o.afterFunc,
		idle:      make(map[protocol.ChatID]idleTimer),
		done:      make(chan struct{}),
	}

	dialer := o.dialer
	if dialer == nil {
		if strings.TrimSpace(cfg.Server.URL) == "" {
			return nil, errors.New("client: server url is required")
		}
		dialer = ws.NewDialer(c.wsConfig())
	}

	c.loop = loop.New(0, o.logger)
	c.registry = channels.NewRegistry(o.logger)
	c.typing = typing.NewAggregator(&typing.Config{TTL: cfg.Typing.TTL, Now: o.now})
	c.presence = presence.NewTracker(o.now)
	c.dispatcher = notify.NewDispatcher(o.notifier, o.permission, o.logger)
	c.queue = outbound.NewQueue(wireSender{c}, outbound.Config{
		MaxSize:    cfg.Queue.MaxSize,
		OnOverflow: c.onOverflow,
		Now:        o.now,
		Logger:     o.logger,
	})
	c.conn = connection.NewManager(c.instrument(dialer), cfg.Reconnect.BackoffPolicy(), c.loop.Post,
		connection.Hooks{
			Opened:       c.onOpen,
			Closed:       c.onClosed,
			Failed:       c.onFailed,
			Frame:        c.handleFrame,
			StateChanged: c.onStateChanged,
		},
		connection.WithAfterFunc(o.afterFunc),
		connection.WithFramePoster(c.loop.PostWait),
		connection.WithLogger(o.logger.With("component", "connection")),
		connection.WithDialTimeout(cfg.Server.HandshakeTimeout),
	)
	c.metrics.SetConnectionState(connection.Disconnected.String())

	c.loop.Start()
	if !o.noSweep {
		c.sweepEvery = cfg.Typing.SweepInterval
	}
	return c, nil
}

func (c *Client) wsConfig() ws.Config {
	header := http.Header{}
	for name, value := range c.cfg.Server.Headers {
		header.Set(name, value)
	}
	if token := strings.TrimSpace(c.cfg.Server.AuthToken); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return ws.Config{
		URL:              c.cfg.Server.URL,
		Header:           header,
		PrepareHeader:    c.tracer.InjectHeader,
		HandshakeTimeout: c.cfg.Server.HandshakeTimeout,
		PongWait:         c.cfg.Server.PongWait,
		PingInterval:     c.cfg.Server.PingInterval,
		MaxMessageBytes:  c.cfg.Server.MaxMessageBytes,
	}
}

// instrument wraps d with a dial span and latency metrics.
func (c *Client) instrument(d transport.Dialer) transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context) (transport.Conn, error) {
		ctx, span := c.tracer.TraceDial(ctx, c.cfg.Server.URL, int(c.attempt.Load()))
		defer span.End()

		start := time.Now()
		conn, err := d.Dial(ctx)
		elapsed := time.Since(start)
		c.metrics.RecordDial(err, elapsed.Seconds())
		c.tracer.RecordError(span, err)
		c.logger.Debug("dial finished", "trace_id", observability.GetTraceID(ctx), "duration", elapsed, "error", err)
		return conn, err
	})
}

func (c *Client) post(fn func()) error {
	if c.closed.Load() || !c.loop.Post(fn) {
		return ErrClosed
	}
	return nil
}

func (c *Client) do(fn func()) error {
	if c.closed.Load() || !c.loop.Do(fn) {
		return ErrClosed
	}
	return nil
}

// Connect starts connecting. It does nothing while a connection is already
// up or being established.
func (c *Client) Connect() error {
	return c.post(c.conn.Connect)
}

// Disconnect closes the connection and cancels any pending reconnect.
// Joined channels are remembered and rejoined on the next Connect.
func (c *Client) Disconnect() error {
	return c.post(c.conn.Disconnect)
}

// JoinChat joins a channel. While offline the join is queued.
func (c *Client) JoinChat(chatID protocol.ChatID) error {
	return c.post(func() {
		c.registry.Join(chatID, nil, commandSink{c})
	})
}

// LeaveChat leaves a channel and drops its handler and typing state.
func (c *Client) LeaveChat(chatID protocol.ChatID) error {
	return c.post(func() {
		c.registry.Leave(chatID, commandSink{c})
		c.disarmIdle(chatID)
		if c.typing.ClearChat(chatID) {
			c.publishTyping(chatID)
		}
	})
}

// SendMessage sends text to a channel, queueing it while offline.
func (c *Client) SendMessage(chatID protocol.ChatID, text string) error {
	return c.post(func() {
		c.enqueue(protocol.SendMessage(chatID, text))
	})
}

// StartTyping tells the channel that the local user is typing. With
// typing.idle_stop set, stop_typing follows automatically unless StartTyping
// is called again within typing.ttl.
func (c *Client) StartTyping(chatID protocol.ChatID) error {
	return c.post(func() {
		c.enqueue(protocol.StartTyping(chatID))
		c.armIdle(chatID)
	})
}

// StopTyping tells the channel that the local user stopped typing.
func (c *Client) StopTyping(chatID protocol.ChatID) error {
	return c.post(func() {
		c.disarmIdle(chatID)
		c.enqueue(protocol.StopTyping(chatID))
	})
}

// RegisterMessageHandler sets the handler for a channel's messages,
// replacing any previous one. It does not join the channel.
func (c *Client) RegisterMessageHandler(chatID protocol.ChatID, handler channels.MessageSubscriber) error {
	return c.post(func() {
		c.registry.Subscribe(chatID, handler)
	})
}

// UnregisterMessageHandler removes the channel's handler. Membership is kept.
func (c *Client) UnregisterMessageHandler(chatID protocol.ChatID) error {
	return c.post(func() {
		c.registry.Unsubscribe(chatID)
	})
}

// UpdateOnlineStatus publishes the local user's status. It is sent only
// while connected, and the latest value is re-sent after every reconnect.
func (c *Client) UpdateOnlineStatus(online bool) error {
	return c.post(func() {
		c.online = &online
		c.enqueue(protocol.UpdateOnlineStatus(online))
	})
}

// SetActiveChat marks the channel on screen; its messages do not notify.
// An empty id clears it.
func (c *Client) SetActiveChat(chatID protocol.ChatID) error {
	return c.post(func() {
		c.dispatcher.SetActiveChat(chatID)
	})
}

// Subscribe registers handler for a bus topic (bus.TopicAll for every
// event) and returns the subscription id.
func (c *Client) Subscribe(topic bus.Topic, handler bus.Handler) string {
	return c.bus.Subscribe(topic, handler)
}

// Unsubscribe removes a bus subscription.
func (c *Client) Unsubscribe(id string) bool {
	return c.bus.Unsubscribe(id)
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	return connection.State(c.state.Load())
}

// ActiveTypers returns the users typing in a channel, oldest first.
func (c *Client) ActiveTypers(chatID protocol.ChatID) []typing.Entry {
	var out []typing.Entry
	_ = c.do(func() { out = c.typing.ActiveTypers(chatID) }) //nolint:errcheck // closed client has no typers
	return out
}

// PresenceOf returns the last known status of a user.
func (c *Client) PresenceOf(userID protocol.UserID) presence.Status {
	status := presence.StatusUnknown
	_ = c.do(func() { status = c.presence.Status(userID) }) //nolint:errcheck // unknown once closed
	return status
}

// OnlineUsers returns the users last reported online, sorted by id.
func (c *Client) OnlineUsers() []protocol.UserID {
	var out []protocol.UserID
	_ = c.do(func() { out = c.presence.Online() }) //nolint:errcheck // none once closed
	return out
}

// Channels returns the joined channels in join order.
func (c *Client) Channels() []protocol.ChatID {
	var out []protocol.ChatID
	_ = c.do(func() { out = c.registry.Channels() }) //nolint:errcheck // none once closed
	return out
}

// Close disconnects, stops the typing sweep and the event loop. Later
// calls return ErrClosed.
func (c *Client) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		c.loop.Do(func() {
			c.conn.Disconnect()
			c.endTypingSession()
		})
		c.closed.Store(true)
		close(c.done)
		c.loop.Close()
		err = nil
	})
	return err
}

func (c *Client) enqueue(cmd protocol.Command) {
	c.queue.EnqueueOrSend(cmd)
	c.metrics.SetQueueDepth(c.queue.Len())
}

func (c *Client) onOpen() {
	var rejoins commandBuffer
	c.registry.Rejoin(&rejoins, c.queue.PendingJoins())
	c.queue.PushFront(rejoins...)

	if pending := c.queue.Len(); pending > 0 {
		_, span := c.tracer.TraceFlush(context.Background(), pending)
		sent, err := c.queue.Flush()
		c.tracer.AddEvent(span, "queue.flushed", "sent", sent, "remaining", c.queue.Len())
		c.tracer.RecordError(span, err)
		span.End()
		if err != nil {
			c.logger.Warn("flush interrupted", "sent", sent, "pending", c.queue.Len(), "error", err)
		} else {
			c.logger.Info("flushed outbound queue", "sent", sent)
		}
	}
	c.metrics.SetQueueDepth(c.queue.Len())

	if c.online != nil {
		c.enqueue(protocol.UpdateOnlineStatus(*c.online))
	}
	c.bus.Publish(bus.ConnectionOpen{})
}

func (c *Client) onClosed(reason error) {
	c.bus.Publish(bus.ConnectionClosed{Reason: reason})
}

func (c *Client) onFailed(err error) {
	c.bus.Publish(bus.ConnectionFailed{Err: err, Attempts: c.conn.Snapshot().Attempt})
}

func (c *Client) onStateChanged(from, to connection.Snapshot) {
	c.state.Store(int32(to.State))
	c.attempt.Store(int64(to.Attempt))
	if from.State != to.State {
		c.metrics.SetConnectionState(to.State.String())
		switch to.State {
		case connection.Disconnected, connection.Failed:
			c.endTypingSession()
		default:
			c.startSweeper()
		}
	}
	if to.State == connection.Reconnecting && to.Dialing && !from.Dialing {
		c.metrics.ReconnectAttempted()
	}
	c.bus.Publish(bus.StateChanged{
		From:    from.State.String(),
		To:      to.State.String(),
		Attempt: to.Attempt,
		Backoff: to.Backoff,
	})
}

func (c *Client) onOverflow(dropped protocol.Command, size int) {
	c.metrics.QueueOverflowed()
	c.bus.Publish(bus.QueueOverflow{Dropped: dropped, Size: size})
}

func (c *Client) handleFrame(data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		c.metrics.FrameDropped(reason)
		c.logger.Warn("dropping inbound frame", "reason", reason, "error", err)
		return
	}
	c.metrics.FrameReceived(ev.EventName())

	switch e := ev.(type) {
	case protocol.NewMessage:
		if !c.registry.Route(e) {
			c.metrics.FrameDropped("unrouted")
		}
		c.notify(e)
	case protocol.UserTyping:
		if c.typing.OnTypingSignal(e.ChatID, e.UserID, e.Username) {
			c.publishTyping(e.ChatID)
		}
	case protocol.UserStoppedTyping:
		if c.typing.OnStopSignal(e.ChatID, e.UserID) {
			c.publishTyping(e.ChatID)
		}
	case protocol.UserOnline:
		c.setPresence(e.UserID, presence.StatusOnline)
	case protocol.UserOffline:
		c.setPresence(e.UserID, presence.StatusOffline)
	case protocol.FriendRequest, protocol.FriendAccepted:
		c.notify(e)
	default:
		c.logger.Debug("unhandled event", "event", ev.EventName())
	}
}

func (c *Client) notify(ev protocol.Event) {
	n, shown := c.dispatcher.Notify(ev)
	c.metrics.RecordNotification(string(n.Kind), shown)
	if !shown {
		return
	}
	c.bus.Publish(bus.Notification{
		Kind:   string(n.Kind),
		Title:  n.Title,
		Body:   n.Body,
		ChatID: n.ChatID,
	})
}

func (c *Client) setPresence(userID protocol.UserID, status presence.Status) {
	rec := c.presence.SetStatus(userID, status)
	c.metrics.RecordPresence(string(status))
	c.bus.Publish(bus.PresenceChanged{
		UserID: rec.UserID,
		Status: string(rec.Status),
		At:     rec.UpdatedAt,
	})
}

func (c *Client) publishTyping(chatID protocol.ChatID) {
	entries := c.typing.ActiveTypers(chatID)
	users := make([]bus.TypingUser, len(entries))
	for i, e := range entries {
		users[i] = bus.TypingUser{UserID: e.UserID, Name: e.Name}
	}
	c.bus.Publish(bus.TypingChanged{
		ChatID: chatID,
		Typers: users,
		Text:   typing.Describe(entries),
	})
}

func (c *Client) sweep() {
	for _, chatID := range c.typing.Sweep() {
		c.publishTyping(chatID)
	}
}

// startSweeper runs the typing sweep while a connection is being kept up.
func (c *Client) startSweeper() {
	if c.sweepStop != nil || c.sweepEvery <= 0 {
		return
	}
	stop := make(chan struct{})
	c.sweepStop = stop
	go c.runSweeper(c.sweepEvery, stop)
}

// endTypingSession stops the sweep, cancels idle-stop timers and clears
// remote typing state, which no longer gets stop signals.
func (c *Client) endTypingSession() {
	if c.sweepStop != nil {
		close(c.sweepStop)
		c.sweepStop = nil
	}
	for chatID := range c.idle {
		c.disarmIdle(chatID)
	}
	for _, chatID := range c.typing.ClearAll() {
		c.publishTyping(chatID)
	}
}

func (c *Client) runSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			c.loop.Post(c.sweep)
		}
	}
}

func (c *Client) armIdle(chatID protocol.ChatID) {
	if !c.cfg.Typing.IdleStop {
		return
	}
	c.disarmIdle(chatID)
	c.idleSeq++
	seq := c.idleSeq
	stop := c.afterFunc(c.typing.TTL(), func() {
		c.loop.Post(func() {
			t, ok := c.idle[chatID]
			if !ok || t.seq != seq {
				return
			}
			delete(c.idle, chatID)
			c.logger.Debug("typing idle, sending stop", "chat_id", chatID.String())
			c.enqueue(protocol.StopTyping(chatID))
		})
	})
	c.idle[chatID] = idleTimer{seq: seq, stop: stop}
}

func (c *Client) disarmIdle(chatID protocol.ChatID) {
	t, ok := c.idle[chatID]
	if !ok {
		return
	}
	t.stop()
	delete(c.idle, chatID)
}

// wireSender encodes commands onto the connection.
type wireSender struct{ c *Client }

func (s wireSender) Connected() bool { return s.c.conn.Connected() }

func (s wireSender) Send(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	if err := s.c.conn.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Kind, err)
	}
	s.c.metrics.FrameSent(string(cmd.Kind))
	s.c.logger.Debug("sent command", "kind", string(cmd.Kind), "chat_id", cmd.ChatID.String(), "command_id", cmd.ID)
	return nil
}

// commandSink routes registry commands through the outbound queue.
type commandSink struct{ c *Client }

func (s commandSink) EnqueueOrSend(cmd protocol.Command) { s.c.enqueue(cmd) }

// commandBuffer collects commands instead of sending them.
type commandBuffer []protocol.Command

func (b *commandBuffer) EnqueueOrSend(cmd protocol.Command) { *b = append(*b, cmd) }
