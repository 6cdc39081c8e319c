// Package wiretest provides a scripted in-memory transport for protocol
// tests: the test plays the server side, delivering frames and
// inspecting what the client sent.
package wiretest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/transport"
)

// Conn is a transport.Conn backed by channels. Incoming carries frames
// the client will receive; Sent collects frames the client transmitted.
type Conn struct {
	Incoming chan []byte
	Sent     chan []byte

	closed chan struct{}
	once   sync.Once
}

// NewConn creates an open scripted transport.
func NewConn() *Conn {
	return &Conn{
		Incoming: make(chan []byte, 64),
		Sent:     make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	c.Sent <- data
	return nil
}

func (c *Conn) Receive() ([]byte, error) {
	select {
	case data := <-c.Incoming:
		return data, nil
	case <-c.closed:
		return nil, transport.ErrClosed
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Deliver queues an arbitrary value, JSON-encoded, as one frame.
func (c *Conn) Deliver(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.Incoming <- data
}

// Event pushes a server event with no correlation id.
func (c *Conn) Event(t *testing.T, ptype proto.PacketType, payload any) {
	t.Helper()
	c.push(t, &proto.Packet{Type: ptype}, payload)
}

// Reply answers a command, reusing its correlation id.
func (c *Conn) Reply(t *testing.T, cmd *proto.Packet, payload any) {
	t.Helper()
	c.push(t, &proto.Packet{ID: cmd.ID, Type: cmd.Type.Reply()}, payload)
}

// ReplyError answers a command with a server-reported error.
func (c *Conn) ReplyError(t *testing.T, cmd *proto.Packet, message string) {
	t.Helper()
	c.push(t, &proto.Packet{ID: cmd.ID, Type: cmd.Type.Reply(), Error: message}, nil)
}

func (c *Conn) push(t *testing.T, packet *proto.Packet, payload any) {
	t.Helper()
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		packet.Data = data
	}
	frame, err := packet.Encode()
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	c.Incoming <- frame
}

// NextSent returns the next packet the client transmitted.
func (c *Conn) NextSent(t *testing.T) *proto.Packet {
	t.Helper()
	select {
	case data := <-c.Sent:
		p, err := proto.DecodePacket(data)
		if err != nil {
			t.Fatalf("client sent malformed packet: %v", err)
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("client sent nothing")
		return nil
	}
}

// Command returns the next packet the client transmitted, requiring the
// expected type.
func (c *Conn) Command(t *testing.T, want proto.PacketType) *proto.Packet {
	t.Helper()
	p := c.NextSent(t)
	if p.Type != want {
		t.Fatalf("client sent %q, want %q", p.Type, want)
	}
	return p
}

// Dialer hands out Conns, optionally failing or gating dial attempts.
type Dialer struct {
	mu       sync.Mutex
	conns    []*Conn
	urls     []string
	failures int
	gate     chan struct{}
	dials    int
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, fmt.Errorf("dial refused")
	}
	conn := NewConn()
	d.conns = append(d.conns, conn)
	d.urls = append(d.urls, url)
	return conn, nil
}

// Conn waits for the i-th successful dial and returns its transport.
func (d *Dialer) Conn(t *testing.T, i int) *Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if len(d.conns) > i {
			conn := d.conns[i]
			d.mu.Unlock()
			return conn
		}
		d.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never dialed", i)
	return nil
}

// URL returns the url of the i-th successful dial.
func (d *Dialer) URL(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[i]
}

// DialCount returns the number of dial attempts, failed ones included.
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// FailNext makes the next n dial attempts fail.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

// SetGate makes every dial attempt block until the channel is closed.
func (d *Dialer) SetGate(gate chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = gate
}
