package observability

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestSetConnectionState(t *testing.T) {
	m := newTestMetrics(t)

	m.SetConnectionState("connecting")
	m.SetConnectionState("connected")

	expected := `
		# HELP chatlink_connection_state Current connection state (1 for the active state)
		# TYPE chatlink_connection_state gauge
		chatlink_connection_state{state="connected"} 1
		chatlink_connection_state{state="connecting"} 0
		chatlink_connection_state{state="disconnected"} 0
		chatlink_connection_state{state="failed"} 0
		chatlink_connection_state{state="reconnecting"} 0
	`
	if err := testutil.CollectAndCompare(m.ConnectionState, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestFrameCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.FrameReceived("new_message")
	m.FrameReceived("new_message")
	m.FrameSent("join_chat")

	expected := `
		# HELP chatlink_frames_total Total number of frames by direction and event
		# TYPE chatlink_frames_total counter
		chatlink_frames_total{direction="inbound",event="new_message"} 2
		chatlink_frames_total{direction="outbound",event="join_chat"} 1
	`
	if err := testutil.CollectAndCompare(m.Frames, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	m.FrameDropped("malformed")
	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues("malformed")); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestQueueMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.SetQueueDepth(3)
	m.QueueOverflowed()
	m.QueueOverflowed()

	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.QueueOverflows); got != 2 {
		t.Errorf("overflows = %v, want 2", got)
	}
}

func TestRecordDial(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDial(nil, 0.2)
	m.RecordDial(errors.New("refused"), 0.01)
	m.ReconnectAttempted()

	if count := testutil.CollectAndCount(m.DialDuration); count != 2 {
		t.Errorf("Expected 2 label combinations, got %d", count)
	}
	if got := testutil.ToFloat64(m.ReconnectAttempts); got != 1 {
		t.Errorf("reconnect attempts = %v, want 1", got)
	}
}

func TestRecordNotificationAndPresence(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordNotification("new_message", true)
	m.RecordNotification("new_message", false)
	m.RecordPresence("online")
	m.RecordPresence("online")

	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("new_message", "shown")); got != 1 {
		t.Errorf("shown = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("new_message", "suppressed")); got != 1 {
		t.Errorf("suppressed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PresenceEvents.WithLabelValues("online")); got != 2 {
		t.Errorf("presence = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SetConnectionState("connected")
	m.ReconnectAttempted()
	m.RecordDial(nil, 1)
	m.FrameReceived("x")
	m.FrameSent("x")
	m.FrameDropped("x")
	m.SetQueueDepth(1)
	m.QueueOverflowed()
	m.RecordNotification("x", true)
	m.RecordPresence("online")
}

func TestNewMetricsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected a panic when registering twice")
		}
	}()
	NewMetrics(reg)
}
