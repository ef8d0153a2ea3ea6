package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// connectionStates are the label values of the connection state gauge.
var connectionStates = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// Metrics collects client-side transport metrics.
//
// All recording methods are safe on a nil *Metrics, which records nothing.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.FrameReceived("new_message")
//	metrics.SetConnectionState("connected")
type Metrics struct {
	// ConnectionState is 1 for the current state and 0 for the others.
	// Labels: state
	ConnectionState *prometheus.GaugeVec

	// ReconnectAttempts counts reconnect dials.
	ReconnectAttempts prometheus.Counter

	// DialDuration measures handshake latency in seconds.
	// Labels: status (success|error)
	DialDuration *prometheus.HistogramVec

	// Frames counts frames by direction and event name.
	// Labels: direction (inbound|outbound), event
	Frames *prometheus.CounterVec

	// FramesDropped counts inbound frames that were discarded.
	// Labels: reason (malformed|unknown_event|unrouted)
	FramesDropped *prometheus.CounterVec

	// QueueDepth is the number of buffered outbound commands.
	QueueDepth prometheus.Gauge

	// QueueOverflows counts commands dropped because the queue was full.
	QueueOverflows prometheus.Counter

	// Notifications counts notification decisions.
	// Labels: kind, result (shown|suppressed)
	Notifications *prometheus.CounterVec

	// PresenceEvents counts presence updates by status.
	// Labels: status (online|offline)
	PresenceEvents *prometheus.CounterVec
}

// NewMetrics creates the client metrics and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatlink_connection_state",
				Help: "Current connection state (1 for the active state)",
			},
			[]string{"state"},
		),

		ReconnectAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatlink_reconnect_attempts_total",
				Help: "Total number of reconnect dials",
			},
		),

		DialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatlink_dial_duration_seconds",
				Help:    "Duration of connection handshakes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"status"},
		),

		Frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlink_frames_total",
				Help: "Total number of frames by direction and event",
			},
			[]string{"direction", "event"},
		),

		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlink_frames_dropped_total",
				Help: "Total number of inbound frames dropped by reason",
			},
			[]string{"reason"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatlink_outbound_queue_depth",
				Help: "Number of outbound commands waiting for a connection",
			},
		),

		QueueOverflows: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatlink_outbound_queue_overflows_total",
				Help: "Total number of queued commands dropped because the queue was full",
			},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlink_notifications_total",
				Help: "Total number of notification decisions by kind and result",
			},
			[]string{"kind", "result"},
		),

		PresenceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlink_presence_events_total",
				Help: "Total number of presence events by status",
			},
			[]string{"status"},
		),
	}
}

// SetConnectionState marks state as the current connection state.
func (m *Metrics) SetConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// ReconnectAttempted counts one reconnect dial.
func (m *Metrics) ReconnectAttempted() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// RecordDial records a handshake outcome and its latency.
func (m *Metrics) RecordDial(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DialDuration.WithLabelValues(status).Observe(durationSeconds)
}

// FrameReceived counts one inbound frame.
func (m *Metrics) FrameReceived(event string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues("inbound", event).Inc()
}

// FrameSent counts one outbound frame.
func (m *Metrics) FrameSent(event string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues("outbound", event).Inc()
}

// FrameDropped counts one discarded inbound frame.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// SetQueueDepth records the outbound queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// QueueOverflowed counts one command dropped from a full queue.
func (m *Metrics) QueueOverflowed() {
	if m == nil {
		return
	}
	m.QueueOverflows.Inc()
}

// RecordNotification counts a notification decision.
func (m *Metrics) RecordNotification(kind string, shown bool) {
	if m == nil {
		return
	}
	result := "suppressed"
	if shown {
		result = "shown"
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}

// RecordPresence counts one presence event.
func (m *Metrics) RecordPresence(status string) {
	if m == nil {
		return
	}
	m.PresenceEvents.WithLabelValues(status).Inc()
}
