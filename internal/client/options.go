package client

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/chatlink/internal/connection"
	"github.com/haasonsaas/chatlink/internal/notify"
	"github.com/haasonsaas/chatlink/internal/observability"
	"github.com/haasonsaas/chatlink/internal/transport"
)

// Option customizes a Client.
type Option func(*options)

type options struct {
	dialer     transport.Dialer
	notifier   notify.Notifier
	permission notify.Permission
	now        func() time.Time
	afterFunc  connection.AfterFunc
	registerer prometheus.Registerer
	tracer     *observability.Tracer
	logger     *slog.Logger
	noSweep    bool
}

// WithDialer replaces the WebSocket dialer built from the server config.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithNotifier sets where notifications are shown.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithPermission overrides the notification permission derived from
// notify.enabled.
func WithPermission(p notify.Permission) Option {
	return func(o *options) { o.permission = p }
}

// WithClock sets the time source for typing expiry and presence stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithAfterFunc replaces the timer used for reconnect backoff and the
// local typing idle stop.
func WithAfterFunc(fn connection.AfterFunc) Option {
	return func(o *options) { o.afterFunc = fn }
}

// WithRegisterer registers client metrics with reg instead of the default
// Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracer sets the tracer for dial and flush spans.
func WithTracer(t *observability.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// withoutSweepTicker disables the background typing sweep. Tests drive
// sweeps by hand.
func withoutSweepTicker() Option {
	return func(o *options) { o.noSweep = true }
}
