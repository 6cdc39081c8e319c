package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades every request and echoes text frames back.
func echoServer(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketSendReceive(t *testing.T) {
	url := echoServer(t)

	dialer := &WebSocketDialer{HandshakeTimeout: 2 * time.Second}
	conn, err := dialer.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte(`{"type":"ping-reply"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	data, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got := string(data); got != `{"type":"ping-reply"}` {
		t.Errorf("Receive = %q", got)
	}
}

func TestWebSocketDialFailure(t *testing.T) {
	dialer := &WebSocketDialer{HandshakeTimeout: 500 * time.Millisecond}
	if _, err := dialer.Dial(context.Background(), "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatal("Dial to closed port succeeded, want error")
	}
}

func TestWebSocketCloseUnblocksReceive(t *testing.T) {
	url := echoServer(t)

	dialer := &WebSocketDialer{}
	conn, err := dialer.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	received := make(chan error, 1)
	go func() {
		_, err := conn.Receive()
		received <- err
	}()

	// Give the reader a moment to park, then close out from under it.
	time.Sleep(20 * time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	select {
	case err := <-received:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Receive after Close = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive still blocked after Close")
	}

	if err := conn.Send([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}
