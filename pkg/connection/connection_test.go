package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/euphony-chat/euphony/internal/wiretest"
	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/transport"
)

func newTestConnection(t *testing.T, dialer transport.Dialer) *Connection {
	t.Helper()
	conn, err := New(Config{
		URL:            "wss://test.invalid/room/test/ws",
		Dialer:         dialer,
		PingTimeout:    time.Minute,
		ReconnectDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

// eventRecorder registers for an event and reports each firing.
func eventRecorder(conn *Connection, name string) chan struct{} {
	fired := make(chan struct{}, 8)
	conn.Register(name, func(any) { fired <- struct{}{} })
	return fired
}

func waitFired(t *testing.T, fired chan struct{}, name string) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s event never fired", name)
	}
}

func TestConnectSuccess(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	connected := eventRecorder(conn, EventConnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := conn.State(); got != StateRunning {
		t.Errorf("state = %v, want %v", got, StateRunning)
	}
	waitFired(t, connected, "connected")
}

func TestConnectDialFailure(t *testing.T) {
	dialer := &wiretest.Dialer{}
	dialer.FailNext(1)
	conn := newTestConnection(t, dialer)

	if err := conn.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded, want dial error")
	}
	if got := conn.State(); got != StateNotRunning {
		t.Errorf("state after failed connect = %v, want %v", got, StateNotRunning)
	}

	// A failed connect leaves the connection usable.
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
}

func TestConnectWhileRunning(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := conn.Connect(context.Background()); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("Connect while running = %v, want ErrIncorrectState", err)
	}
}

func TestConnectDoubleStart(t *testing.T) {
	gate := make(chan struct{})
	dialer := &wiretest.Dialer{}
	dialer.SetGate(gate)
	conn := newTestConnection(t, dialer)

	first := make(chan error, 1)
	go func() { first <- conn.Connect(context.Background()) }()

	// Wait until the first call is inside the dialer.
	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != StateConnecting && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnecting) {
		t.Errorf("concurrent Connect = %v, want ErrAlreadyConnecting", err)
	}

	close(gate)
	if err := <-first; err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
}

func TestSendAwaitsReply(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ws := dialer.Conn(t, 0)

	replyFired := eventRecorder(conn, "who-reply")

	type result struct {
		packet *proto.Packet
		err    error
	}
	got := make(chan result, 1)
	go func() {
		p, err := conn.Send(context.Background(), proto.WhoType, proto.WhoCommand{}, true)
		got <- result{p, err}
	}()

	cmd := ws.Command(t, proto.WhoType)
	ws.Deliver(t, map[string]any{
		"id":   cmd.ID,
		"type": "who-reply",
		"data": map[string]any{"listing": []any{}},
	})

	r := <-got
	if r.err != nil {
		t.Fatalf("Send failed: %v", r.err)
	}
	if r.packet.ID != cmd.ID {
		t.Errorf("reply id = %q, want %q", r.packet.ID, cmd.ID)
	}
	if n := conn.PendingReplies(); n != 0 {
		t.Errorf("pending replies after resolution = %d, want 0", n)
	}
	// The reply also fires as a named event.
	waitFired(t, replyFired, "who-reply")
}

func TestSendFireAndForget(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ws := dialer.Conn(t, 0)

	p, err := conn.Send(context.Background(), proto.PingReplyType, proto.PingReplyCommand{UnixTime: 1}, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if p != nil {
		t.Errorf("fire-and-forget returned packet %+v", p)
	}
	if n := conn.PendingReplies(); n != 0 {
		t.Errorf("pending replies = %d, want 0", n)
	}
	ws.NextSent(t)
}

func TestSendNotConnected(t *testing.T) {
	conn := newTestConnection(t, &wiretest.Dialer{})
	if _, err := conn.Send(context.Background(), proto.WhoType, nil, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while not running = %v, want ErrNotConnected", err)
	}
}

func TestMonotonicIDs(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ws := dialer.Conn(t, 0)

	var last string
	for i := 0; i < 3; i++ {
		if _, err := conn.Send(context.Background(), proto.PingReplyType, nil, false); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		p := ws.NextSent(t)
		if p.ID == last {
			t.Fatalf("id %q reused", p.ID)
		}
		last = p.ID
	}
}

func TestDisconnectFailsPending(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ws := dialer.Conn(t, 0)

	sendErr := make(chan error, 1)
	go func() {
		_, err := conn.Send(context.Background(), proto.LogType, proto.LogCommand{N: 50}, true)
		sendErr <- err
	}()
	ws.NextSent(t) // command is on the wire, reply pending

	conn.Disconnect()

	select {
	case err := <-sendErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending Send after Disconnect = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending Send still blocked after Disconnect")
	}
	if n := conn.PendingReplies(); n != 0 {
		t.Errorf("pending replies after Disconnect = %d, want 0", n)
	}
	if got := conn.State(); got != StateNotRunning {
		t.Errorf("state after Disconnect = %v, want %v", got, StateNotRunning)
	}
}

func TestTransportLossFailsPendingAndReconnects(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	reconnecting := eventRecorder(conn, EventReconnecting)
	reconnected := eventRecorder(conn, EventReconnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ws := dialer.Conn(t, 0)

	sendErr := make(chan error, 1)
	go func() {
		_, err := conn.Send(context.Background(), proto.LogType, proto.LogCommand{N: 50}, true)
		sendErr <- err
	}()
	ws.NextSent(t)

	// Peer drops the connection under the pending command.
	ws.Close()

	select {
	case err := <-sendErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending Send after transport loss = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending Send hung across transport loss")
	}

	waitFired(t, reconnecting, "reconnecting")
	waitFired(t, reconnected, "reconnected")

	// The fresh transport is live.
	dialer.Conn(t, 1)
	if got := conn.State(); got != StateRunning {
		t.Errorf("state after reconnect = %v, want %v", got, StateRunning)
	}
}

func TestReconnectRetriesWithBackoff(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	reconnected := eventRecorder(conn, EventReconnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dialer.FailNext(3)
	dialer.Conn(t, 0).Close()
	waitFired(t, reconnected, "reconnected")

	// 1 connect + 3 failures + 1 success.
	if got := dialer.DialCount(); got != 5 {
		t.Errorf("dial count = %d, want 5", got)
	}
}

func TestWatchdogForcesReconnect(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn, err := New(Config{
		URL:            "wss://test.invalid/room/test/ws",
		Dialer:         dialer,
		PingTimeout:    30 * time.Millisecond,
		ReconnectDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(conn.Close)
	reconnected := eventRecorder(conn, EventReconnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Deliver nothing: the watchdog must trip and force a fresh dial.
	waitFired(t, reconnected, "reconnected")
	if got := dialer.DialCount(); got < 2 {
		t.Errorf("dial count = %d, want at least 2", got)
	}
}

func TestForcedReconnect(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	reconnected := eventRecorder(conn, EventReconnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn.Reconnect()
	waitFired(t, reconnected, "reconnected")
	dialer.Conn(t, 1)
}

func TestDisconnectIdempotent(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Two concurrent disconnects: one tears down, the other waits.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Disconnect()
		}()
	}
	wg.Wait()

	// And again after full completion: a no-op.
	conn.Disconnect()
	if got := conn.State(); got != StateNotRunning {
		t.Errorf("state = %v, want %v", got, StateNotRunning)
	}
}

func TestDisconnectDuringReconnectLoop(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Make every redial fail so the engine stays in the retry loop.
	dialer.FailNext(1 << 20)
	dialer.Conn(t, 0).Close()

	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != StateReconnecting && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		conn.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect hung while engine was reconnecting")
	}
	if got := conn.State(); got != StateNotRunning {
		t.Errorf("state = %v, want %v", got, StateNotRunning)
	}
}

func TestSendBlocksDuringReconnect(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dialer.FailNext(2)
	dialer.Conn(t, 0).Close()

	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != StateReconnecting && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Send during the reconnect parks until the engine settles, then
	// transmits on the fresh transport.
	if _, err := conn.Send(context.Background(), proto.PingReplyType, nil, false); err != nil {
		t.Fatalf("Send across reconnect failed: %v", err)
	}
	dialer.Conn(t, 1).NextSent(t)
}

func TestSendContextCancellation(t *testing.T) {
	dialer := &wiretest.Dialer{}
	conn := newTestConnection(t, dialer)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ws := dialer.Conn(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	sendErr := make(chan error, 1)
	go func() {
		_, err := conn.Send(ctx, proto.WhoType, nil, true)
		sendErr <- err
	}()
	ws.NextSent(t)
	cancel()

	select {
	case err := <-sendErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled Send = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Send still blocked")
	}
	if n := conn.PendingReplies(); n != 0 {
		t.Errorf("pending replies after cancellation = %d, want 0", n)
	}
}
