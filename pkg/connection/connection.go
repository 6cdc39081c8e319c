// Package connection implements the reconnecting request/reply engine
// underneath a room: it owns one transport, assigns correlation ids to
// outgoing packets, resolves waiters when replies arrive, fires a named
// event per received packet type, and recovers from connection loss
// (including silent loss, detected by a ping-timeout watchdog).
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/euphony-chat/euphony/pkg/events"
	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/transport"
)

// Synthetic event names fired by the engine itself, alongside the
// per-packet-type events.
const (
	EventConnected     = "connected"
	EventReconnecting  = "reconnecting"
	EventReconnected   = "reconnected"
	EventDisconnecting = "disconnecting"
)

var (
	// ErrAlreadyConnecting is returned by Connect while another
	// Connect call is still dialing.
	ErrAlreadyConnecting = errors.New("connection: connect already in progress")

	// ErrIncorrectState is returned by Connect when the connection is
	// running or shutting down; callers must disconnect first.
	ErrIncorrectState = errors.New("connection: must disconnect first")

	// ErrNotConnected is returned by Send when the connection is not
	// running once any in-flight transition has settled.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrClosed resolves a pending reply whose connection was torn
	// down before the reply arrived.
	ErrClosed = errors.New("connection: closed while awaiting reply")
)

// Defaults for Config. The server pings roughly every thirty seconds;
// two missed pings mean the connection is half-dead.
const (
	DefaultPingTimeout    = 60 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

// Config configures a Connection.
type Config struct {
	// URL is the websocket endpoint, built with proto.RoomURL.
	URL string

	// Dialer opens transports. Nil means a plain WebSocketDialer.
	Dialer transport.Dialer

	// PingTimeout forces a reconnect after this much frame silence.
	PingTimeout time.Duration

	// ReconnectDelay is slept between failed reconnect attempts.
	ReconnectDelay time.Duration

	// Logger receives engine diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics, if non-nil, records engine activity.
	Metrics *Metrics
}

type replyResult struct {
	packet *proto.Packet
	err    error
}

// Connection is the reconnecting request/reply engine. Create one with
// New, register event handlers, then call Connect. All exported methods
// are safe for concurrent use.
type Connection struct {
	url            string
	dialer         transport.Dialer
	pingTimeout    time.Duration
	reconnectDelay time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	events         *events.Registry

	mu      sync.Mutex
	state   State
	stateCh chan struct{} // closed and replaced on every state change
	ws      transport.Conn
	pending map[string]chan replyResult
	wdog    *time.Timer
	epoch   uint64 // invalidates stale watchdog callbacks
	nextID  uint64
	runDone chan struct{} // closed when the receive loop exits
}

// New creates a Connection in StateNotRunning.
func New(config Config) (*Connection, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("connection: URL is required")
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = &transport.WebSocketDialer{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pingTimeout := config.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = DefaultPingTimeout
	}
	reconnectDelay := config.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}

	return &Connection{
		url:            config.URL,
		dialer:         dialer,
		pingTimeout:    pingTimeout,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		metrics:        config.Metrics,
		events:         events.NewRegistry(logger),
		stateCh:        make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingReplies returns the number of commands still awaiting a reply.
func (c *Connection) PendingReplies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Register subscribes a handler to a named event: a packet type for
// server traffic, or one of the synthetic Event* names.
func (c *Connection) Register(name string, handler events.Handler) {
	c.events.Register(name, handler)
}

// Connect dials the transport and starts the receive loop. It must be
// called from StateNotRunning: a concurrent Connect fails with
// ErrAlreadyConnecting, any other state with ErrIncorrectState. On dial
// failure the connection returns to StateNotRunning.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateNotRunning:
	case StateConnecting:
		c.mu.Unlock()
		return ErrAlreadyConnecting
	default:
		c.mu.Unlock()
		return ErrIncorrectState
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	ws, err := c.dialer.Dial(ctx, c.url)

	c.mu.Lock()
	if err != nil {
		c.setStateLocked(StateNotRunning)
		c.mu.Unlock()
		return fmt.Errorf("connection: %w", err)
	}
	c.installLocked(ws)
	done := make(chan struct{})
	c.runDone = done
	c.setStateLocked(StateRunning)
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.url)
	c.events.Fire(EventConnected, nil)
	go c.run(ws, done)
	return nil
}

// Disconnect tears the connection down and returns once the receive
// loop has exited. Every pending reply is resolved with ErrClosed.
// Safe to call from any state: a no-op when not running, and when a
// connect attempt or another Disconnect is in flight it waits for that
// to settle instead of double-closing.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	for {
		switch c.state {
		case StateNotRunning:
			c.mu.Unlock()
			return
		case StateConnecting, StateDisconnecting:
			// Another caller owns the transition; wait it out.
			ch := c.stateCh
			c.mu.Unlock()
			<-ch
			c.mu.Lock()
		case StateRunning, StateReconnecting:
			c.setStateLocked(StateDisconnecting)
			c.events.Fire(EventDisconnecting, nil)
			ws := c.ws
			done := c.runDone
			c.teardownLocked()
			c.mu.Unlock()

			if ws != nil {
				ws.Close()
			}
			if done != nil {
				<-done
			}

			c.mu.Lock()
			c.runDone = nil
			c.setStateLocked(StateNotRunning)
			c.mu.Unlock()
			c.logger.Info("disconnected")
			return
		}
	}
}

// Reconnect forces a fresh transport without tearing down the engine.
// It returns before the new handshake completes. Outside StateRunning
// it does nothing: a reconnect is already in progress or the caller
// never connected.
func (c *Connection) Reconnect() {
	c.mu.Lock()
	ws := c.ws
	running := c.state == StateRunning
	c.mu.Unlock()
	if running && ws != nil {
		// The receive loop observes the closed transport and enters
		// the reconnect path.
		ws.Close()
	}
}

// Close disconnects and stops the event dispatcher. The connection
// cannot be used afterwards.
func (c *Connection) Close() {
	c.Disconnect()
	c.events.Close()
}

// Send transmits a command of the given type and, if awaitReply is
// true, blocks until the correlated reply arrives. Callers arriving
// while a connect or reconnect is settling wait for it; if the settled
// state is not running, Send fails with ErrNotConnected. A connection
// torn down while the reply is outstanding fails the call with
// ErrClosed.
func (c *Connection) Send(ctx context.Context, ptype proto.PacketType, payload any, awaitReply bool) (*proto.Packet, error) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("connection: encode %s payload: %w", ptype, err)
		}
		data = encoded
	}

	c.mu.Lock()
	for !c.state.settled() {
		ch := c.stateCh
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
		c.mu.Lock()
	}
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	id := strconv.FormatUint(c.nextID, 10)
	c.nextID++
	ws := c.ws

	var reply chan replyResult
	if awaitReply {
		reply = make(chan replyResult, 1)
		c.pending[id] = reply
		c.metrics.setPending(len(c.pending))
	}
	c.mu.Unlock()

	packet := &proto.Packet{ID: id, Type: ptype, Data: data}
	frame, err := packet.Encode()
	if err != nil {
		c.dropPending(id)
		return nil, err
	}
	if err := ws.Send(frame); err != nil {
		c.dropPending(id)
		// Provoke the receive loop into the reconnect path.
		ws.Close()
		return nil, fmt.Errorf("connection: send %s: %w", ptype, ErrClosed)
	}
	c.metrics.packetSent()

	if !awaitReply {
		return nil, nil
	}

	select {
	case result := <-reply:
		return result.packet, result.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	}
}

// run is the background receive loop: decode each frame, resolve its
// pending reply if correlated, then fire the packet-type event. The
// reply is always resolved before the event fires. Transport errors
// never escape the loop; they trigger the reconnect path instead.
func (c *Connection) run(ws transport.Conn, done chan struct{}) {
	defer close(done)
	for {
		data, err := ws.Receive()
		if err != nil {
			ws = c.handleLoss(ws)
			if ws == nil {
				return
			}
			continue
		}

		c.touchWatchdog()
		c.metrics.packetReceived()

		packet, err := proto.DecodePacket(data)
		if err != nil {
			c.metrics.decodeError()
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if packet.ID != "" {
			c.resolve(packet)
		}
		c.events.Fire(string(packet.Type), packet)
	}
}

// handleLoss runs in the receive loop after a transport error. While
// meant to be running it reconnects, returning the fresh transport;
// during a disconnect it returns nil and the loop exits.
func (c *Connection) handleLoss(ws transport.Conn) transport.Conn {
	c.mu.Lock()
	if c.state != StateRunning {
		// Disconnect owns the teardown.
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateReconnecting)
	c.teardownLocked()
	c.mu.Unlock()

	ws.Close()
	c.logger.Warn("connection lost, reconnecting")
	c.events.Fire(EventReconnecting, nil)
	return c.reconnectLoop()
}

// reconnectLoop re-dials until it succeeds or a Disconnect supersedes
// it. Each failed attempt sleeps ReconnectDelay, aborting the sleep
// early if the state changes.
func (c *Connection) reconnectLoop() transport.Conn {
	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		c.metrics.reconnect()
		ws, err := c.dialer.Dial(context.Background(), c.url)

		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			if err == nil {
				ws.Close()
			}
			return nil
		}
		if err == nil {
			c.installLocked(ws)
			c.setStateLocked(StateRunning)
			c.mu.Unlock()
			c.logger.Info("reconnected", "attempts", attempt)
			c.events.Fire(EventReconnected, nil)
			return ws
		}
		ch := c.stateCh
		c.mu.Unlock()

		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		select {
		case <-time.After(c.reconnectDelay):
		case <-ch:
		}
	}
}

// resolve completes the pending reply matching the packet's id, if any.
func (c *Connection) resolve(packet *proto.Packet) {
	c.mu.Lock()
	reply, ok := c.pending[packet.ID]
	if ok {
		delete(c.pending, packet.ID)
		c.metrics.setPending(len(c.pending))
	}
	c.mu.Unlock()
	if ok {
		reply <- replyResult{packet: packet}
	}
}

// dropPending removes a caller's own pending entry, e.g. on context
// cancellation. A reply that already resolved is left alone.
func (c *Connection) dropPending(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return
	}
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.metrics.setPending(len(c.pending))
	}
}

// setStateLocked transitions the state and wakes every waiter parked on
// the previous state. Callers hold mu.
func (c *Connection) setStateLocked(s State) {
	c.state = s
	close(c.stateCh)
	c.stateCh = make(chan struct{})
}

// installLocked attaches a fresh transport: new pending table, new
// watchdog, new epoch. Callers hold mu.
func (c *Connection) installLocked(ws transport.Conn) {
	c.ws = ws
	c.pending = make(map[string]chan replyResult)
	c.metrics.setPending(0)
	c.epoch++
	epoch := c.epoch
	c.wdog = time.AfterFunc(c.pingTimeout, func() { c.watchdogExpired(epoch) })
}

// teardownLocked detaches the transport unit: watchdog stopped, every
// pending reply resolved with ErrClosed, handle cleared. The transport
// itself is closed by the caller outside the lock. Callers hold mu.
func (c *Connection) teardownLocked() {
	if c.wdog != nil {
		c.wdog.Stop()
		c.wdog = nil
	}
	c.epoch++
	for id, reply := range c.pending {
		delete(c.pending, id)
		reply <- replyResult{err: ErrClosed}
	}
	c.metrics.setPending(0)
	c.ws = nil
}

// touchWatchdog rearms the ping watchdog; called for every frame the
// receive loop processes.
func (c *Connection) touchWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wdog != nil {
		c.wdog.Reset(c.pingTimeout)
	}
}

// watchdogExpired fires when no frame arrived for PingTimeout. The
// server pings periodically, so silence means a half-dead connection:
// close the transport and let the receive loop reconnect.
func (c *Connection) watchdogExpired(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.mu.Unlock()

	c.metrics.watchdogExpired()
	c.logger.Warn("ping timeout, forcing reconnect", "timeout", c.pingTimeout)
	ws.Close()
}
