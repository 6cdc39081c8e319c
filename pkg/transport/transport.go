// Package transport provides the string-frame channel underneath a
// connection: open one websocket, send and receive whole text frames,
// close. Retry and correlation logic live a layer up.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the channel has been
// closed, whether by the peer or by a concurrent Close call.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional text-frame channel.
type Conn interface {
	// Send transmits one text frame. It fails with ErrClosed if the
	// channel is already closed.
	Send(data []byte) error

	// Receive blocks until a frame arrives. It fails with ErrClosed
	// when the peer closes or Close is called concurrently.
	Receive() ([]byte, error)

	// Close tears down the channel. Idempotent, and safe to call
	// from a different goroutine than the one blocked in Receive.
	Close() error
}

// Dialer opens transport connections. The production implementation is
// WebSocketDialer; tests substitute scripted fakes.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
