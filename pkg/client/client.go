// Package client manages a set of room connections under one identity:
// one nick, one base URL, one handler set applied to every joined room.
// It adds no protocol logic of its own; each room stays independently
// usable through Get.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/euphony-chat/euphony/pkg/room"
	"github.com/euphony-chat/euphony/pkg/transport"
)

var (
	// ErrAlreadyJoined is returned by Join for a room the client is
	// already in.
	ErrAlreadyJoined = errors.New("client: already joined")

	// ErrClosed is returned by Join after Close.
	ErrClosed = errors.New("client: closed")
)

// Handlers is an optional callback per room event, applied to every
// room the client joins. Nil fields are skipped. Each callback receives
// the room it fired in, so one handler set serves many rooms.
type Handlers struct {
	Connected  func(r *room.Room)
	Snapshot   func(r *room.Room, log []room.LiveMessage)
	Send       func(r *room.Room, msg room.LiveMessage)
	Join       func(r *room.Room, s room.Session)
	Part       func(r *room.Room, s room.Session)
	Nick       func(r *room.Room, change room.NickChange)
	Edit       func(r *room.Room, msg room.LiveMessage)
	PM         func(r *room.Room, invite room.PMInvite)
	Disconnect func(r *room.Room, reason string)
}

// Config configures a Client. Zero values defer to the room and
// connection defaults.
type Config struct {
	// Nick is asserted in every joined room.
	Nick string

	// Human marks the client's sessions as human rather than bot.
	Human bool

	// BaseURL overrides proto.DefaultBaseURL for every room.
	BaseURL string

	// Dialer overrides the websocket dialer; tests inject fakes here.
	Dialer transport.Dialer

	PingTimeout    time.Duration
	ReconnectDelay time.Duration

	// Logger receives diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// MetricsRegistry, if non-nil, enables per-room connection metrics.
	MetricsRegistry prometheus.Registerer

	// Tracer records spans for room commands.
	Tracer trace.Tracer

	// Handlers are wired onto every joined room before it connects.
	Handlers Handlers
}

// RoomOptions carries the per-room knobs of Join.
type RoomOptions struct {
	// Password authenticates to a passcode-protected room.
	Password string

	// Private addresses a PM room ("pm:" prefix).
	Private bool

	// Nick overrides Config.Nick for this room only.
	Nick string
}

// Client is a set of joined rooms. All methods are safe for concurrent
// use.
type Client struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room.Room
	closed bool
}

// New creates an empty client.
func New(config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config,
		logger: logger,
		rooms:  make(map[string]*room.Room),
	}
}

// Join creates a room, wires the client's handlers onto it, and
// connects. The room is registered only after the connect succeeds; a
// failed join leaves no trace.
func (c *Client) Join(ctx context.Context, name string, opts RoomOptions) (*room.Room, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := c.rooms[name]; ok {
		c.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	c.mu.Unlock()

	nick := opts.Nick
	if nick == "" {
		nick = c.config.Nick
	}
	r, err := room.New(room.Config{
		Name:            name,
		Password:        opts.Password,
		Nick:            nick,
		Human:           c.config.Human,
		Private:         opts.Private,
		BaseURL:         c.config.BaseURL,
		Dialer:          c.config.Dialer,
		PingTimeout:     c.config.PingTimeout,
		ReconnectDelay:  c.config.ReconnectDelay,
		Logger:          c.logger,
		MetricsRegistry: c.config.MetricsRegistry,
		Tracer:          c.config.Tracer,
	})
	if err != nil {
		return nil, err
	}
	c.wire(r)

	if err := r.Connect(ctx); err != nil {
		r.Close()
		return nil, err
	}

	c.mu.Lock()
	if c.closed || c.rooms[name] != nil {
		// Lost a race with Close or a concurrent Join; back out.
		c.mu.Unlock()
		r.Close()
		if c.closed {
			return nil, ErrClosed
		}
		return nil, ErrAlreadyJoined
	}
	c.rooms[name] = r
	c.mu.Unlock()

	c.logger.Info("joined room", "room", name)
	return r, nil
}

// Leave disconnects and discards one room. Unknown names are a no-op.
func (c *Client) Leave(name string) {
	c.mu.Lock()
	r, ok := c.rooms[name]
	delete(c.rooms, name)
	c.mu.Unlock()
	if ok {
		r.Close()
		c.logger.Info("left room", "room", name)
	}
}

// Get returns a joined room by name.
func (c *Client) Get(name string) (*room.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[name]
	return r, ok
}

// Rooms returns every joined room, ordered by name.
func (c *Client) Rooms() []*room.Room {
	c.mu.Lock()
	rooms := make([]*room.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name() < rooms[j].Name() })
	return rooms
}

// Close leaves every room. The client cannot be reused afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	rooms := c.rooms
	c.rooms = nil
	c.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// wire registers the non-nil handlers on a room.
func (c *Client) wire(r *room.Room) {
	h := c.config.Handlers
	if h.Connected != nil {
		r.OnConnected(func() { h.Connected(r) })
	}
	if h.Snapshot != nil {
		r.OnSnapshot(func(log []room.LiveMessage) { h.Snapshot(r, log) })
	}
	if h.Send != nil {
		r.OnSend(func(msg room.LiveMessage) { h.Send(r, msg) })
	}
	if h.Join != nil {
		r.OnJoin(func(s room.Session) { h.Join(r, s) })
	}
	if h.Part != nil {
		r.OnPart(func(s room.Session) { h.Part(r, s) })
	}
	if h.Nick != nil {
		r.OnNick(func(change room.NickChange) { h.Nick(r, change) })
	}
	if h.Edit != nil {
		r.OnEdit(func(msg room.LiveMessage) { h.Edit(r, msg) })
	}
	if h.PM != nil {
		r.OnPM(func(invite room.PMInvite) { h.PM(r, invite) })
	}
	if h.Disconnect != nil {
		r.OnDisconnect(func(reason string) { h.Disconnect(r, reason) })
	}
}
