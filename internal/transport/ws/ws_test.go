package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/chatlink/internal/transport"
)

const waitTimeout = 2 * time.Second

func newServer(t *testing.T, handle func(*websocket.Conn, *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendReceive(t *testing.T) {
	headers := make(chan http.Header, 1)
	url := newServer(t, func(conn *websocket.Conn, r *http.Request) {
		headers <- r.Header.Clone()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})

	d := NewDialer(Config{
		URL:    url,
		Header: http.Header{"Authorization": []string{"Bearer secret"}},
		PrepareHeader: func(_ context.Context, h http.Header) {
			h.Set("Traceparent", "00-test")
		},
	})
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	frames := make(chan string, 4)
	conn.Serve(transport.Handlers{
		OnFrame: func(data []byte) { frames <- string(data) },
	})

	if err := conn.Send([]byte(`{"event":"join_chat"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-frames:
		if got != `{"event":"join_chat"}` {
			t.Fatalf("frame = %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for echo")
	}

	h := <-headers
	if got := h.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
	if got := h.Get("Traceparent"); got != "00-test" {
		t.Errorf("Traceparent = %q", got)
	}
}

func TestServerCloseReportsReason(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})

	conn, err := NewDialer(Config{URL: url}).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	closed := make(chan error, 1)
	conn.Serve(transport.Handlers{OnClose: func(err error) { closed <- err }})

	select {
	case err := <-closed:
		var ce *CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("close error = %T %v, want *CloseError", err, err)
		}
		if ce.Code != websocket.CloseGoingAway || ce.Reason != "restarting" {
			t.Fatalf("close = %d %q", ce.Code, ce.Reason)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for close")
	}

	if err := conn.Send([]byte("x")); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("Send() after close = %v, want ErrClosed", err)
	}
}

func TestLocalCloseIsSilent(t *testing.T) {
	release := make(chan struct{})
	url := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(release)
				return
			}
		}
	})

	conn, err := NewDialer(Config{URL: url}).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	closed := make(chan error, 1)
	conn.Serve(transport.Handlers{OnClose: func(err error) { closed <- err }})

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-release:
	case <-time.After(waitTimeout):
		t.Fatal("server never saw the close")
	}
	select {
	case err := <-closed:
		t.Fatalf("OnClose called after local Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDialHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewDialer(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}).Dial(context.Background())
	if err == nil {
		t.Fatal("Dial() should fail on a rejected handshake")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error = %v, want the handshake status", err)
	}
}
