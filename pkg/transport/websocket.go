package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocketDialer opens websocket connections using gorilla/websocket.
// The zero value is ready to use.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the websocket handshake. Zero means the
	// gorilla default.
	HandshakeTimeout time.Duration

	// Header is sent with the HTTP upgrade request (cookies, user agent).
	Header http.Header
}

// Dial opens a websocket connection to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts *websocket.Conn to the Conn interface. Gorilla permits
// one concurrent reader and one concurrent writer; writeMu serializes
// writers, and the connection engine is the only reader.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  sync.Once
}

func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return ErrClosed
	}
	return nil
}

func (c *wsConn) Receive() ([]byte, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, ErrClosed
		}
		// The protocol is JSON text frames; skip anything else.
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Close() error {
	c.closed.Do(func() {
		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.ws.Close()
	})
	return nil
}
