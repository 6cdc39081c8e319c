// Package room layers euphoria room semantics on top of the connection
// engine: the bounce/hello/snapshot handshake, nick negotiation,
// membership tracking, and the message commands. A Room never touches
// the transport directly; every exchange goes through the connection's
// correlated send or arrives as a named event.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/euphony-chat/euphony/pkg/connection"
	"github.com/euphony-chat/euphony/pkg/events"
	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/transport"
)

// Room-level event names. Payload types are noted per event; the typed
// On* helpers wrap these for ordinary use.
const (
	EventConnected  = "connected"  // nil
	EventSnapshot   = "snapshot"   // []LiveMessage
	EventSend       = "send"       // LiveMessage
	EventJoin       = "join"       // Session
	EventPart       = "part"       // Session
	EventNick       = "nick"       // NickChange
	EventEdit       = "edit"       // LiveMessage
	EventPM         = "pm"         // PMInvite
	EventDisconnect = "disconnect" // string (reason)
)

var (
	// ErrNotConnected is returned by room commands when the room is
	// not (or no longer) connected.
	ErrNotConnected = errors.New("room: not connected")

	// ErrNoAuthOption means the room bounced the connection but offers
	// no passcode authentication, so this client cannot get in.
	ErrNoAuthOption = errors.New("room: no passcode authentication offered")

	// ErrNoPassword means the room requires a passcode and none was
	// configured.
	ErrNoPassword = errors.New("room: password required but not configured")

	// ErrWrongPassword means the server rejected the configured
	// passcode.
	ErrWrongPassword = errors.New("room: wrong password")
)

// Config configures a Room.
type Config struct {
	// Name is the room name, without any "pm:" prefix.
	Name string

	// Password authenticates to private rooms. Empty means none
	// configured; connecting to a passcode-protected room fails with
	// ErrNoPassword.
	Password string

	// Nick is asserted once the handshake completes, if it differs
	// from what the server assigned. Empty keeps the server's nick.
	Nick string

	// Human sets the ?h=1 flag so the session lists as a person
	// rather than a bot.
	Human bool

	// Private addresses the room as a PM room ("pm:" prefix).
	Private bool

	// BaseURL overrides proto.DefaultBaseURL.
	BaseURL string

	// Dialer overrides the websocket dialer; tests inject fakes here.
	Dialer transport.Dialer

	// PingTimeout and ReconnectDelay tune the connection engine; zero
	// means the engine defaults.
	PingTimeout    time.Duration
	ReconnectDelay time.Duration

	// Logger receives diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// MetricsRegistry, if non-nil, enables connection metrics labeled
	// with the room name.
	MetricsRegistry prometheus.Registerer

	// Tracer records spans for room commands. Nil means the global
	// tracer provider.
	Tracer trace.Tracer
}

// Room is one session's presence in one euphoria room.
type Room struct {
	name   string
	logger *slog.Logger
	tracer trace.Tracer
	conn   *connection.Connection
	events *events.Registry

	mu               sync.Mutex
	password         string
	nick             string // target nick; updated by Nick()
	helloReceived    bool
	snapshotReceived bool
	gateSettled      bool
	gateErr          error
	gateCh           chan struct{} // closed on every gate transition

	session              *proto.SessionView
	listing              Listing
	private              bool
	version              string
	accountID            string
	accountHasAccess     bool
	accountEmailVerified bool
	pmWithNick           string
	pmWithUserID         string
}

// New creates a Room and its connection. The room does not connect
// until Connect is called; handlers registered before that observe the
// whole lifecycle.
func New(config Config) (*Room, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("room: Name is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room", config.Name)

	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer("euphony")
	}

	var metrics *connection.Metrics
	if config.MetricsRegistry != nil {
		metrics = connection.NewMetrics(config.MetricsRegistry, prometheus.Labels{"room": config.Name})
	}

	conn, err := connection.New(connection.Config{
		URL:            proto.RoomURL(config.BaseURL, config.Name, config.Private, config.Human),
		Dialer:         config.Dialer,
		PingTimeout:    config.PingTimeout,
		ReconnectDelay: config.ReconnectDelay,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, err
	}

	r := &Room{
		name:     config.Name,
		logger:   logger,
		tracer:   tracer,
		conn:     conn,
		events:   events.NewRegistry(logger),
		password: config.Password,
		nick:     config.Nick,
		private:  config.Private,
		gateCh:   make(chan struct{}),
	}
	r.registerHandlers()
	return r, nil
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// SessionView returns this client's own session as last reported by the
// server, or false before the first hello.
func (r *Room) SessionView() (proto.SessionView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return proto.SessionView{}, false
	}
	return *r.session, true
}

// Users returns an immutable snapshot of the current session listing.
func (r *Room) Users() Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listing
}

// Private reports whether the server marked the room private.
func (r *Room) Private() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.private
}

// Version returns the server version from the hello event.
func (r *Room) Version() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// PMWith returns the counterpart of a PM room, as reported by the
// snapshot. Both values are empty for regular rooms.
func (r *Room) PMWith() (nick, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pmWithNick, r.pmWithUserID
}

// Account returns the account identity from the hello event: the
// account id (empty for agent sessions), whether the account grants
// access to the room, and whether its email is verified.
func (r *Room) Account() (id string, hasAccess, emailVerified bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accountID, r.accountHasAccess, r.accountEmailVerified
}

// On registers a handler for a named room event.
func (r *Room) On(name string, handler events.Handler) {
	r.events.Register(name, handler)
}

// OnConnected runs fn each time the handshake completes, including
// after automatic reconnects.
func (r *Room) OnConnected(fn func()) {
	r.On(EventConnected, func(any) { fn() })
}

// OnSnapshot runs fn with the message log delivered by each snapshot.
func (r *Room) OnSnapshot(fn func([]LiveMessage)) {
	r.On(EventSnapshot, func(payload any) { fn(payload.([]LiveMessage)) })
}

// OnSend runs fn for every message posted to the room.
func (r *Room) OnSend(fn func(LiveMessage)) {
	r.On(EventSend, func(payload any) { fn(payload.(LiveMessage)) })
}

// OnJoin runs fn for every session entering the room.
func (r *Room) OnJoin(fn func(Session)) {
	r.On(EventJoin, func(payload any) { fn(payload.(Session)) })
}

// OnPart runs fn for every session leaving the room, including those
// dropped by a network partition.
func (r *Room) OnPart(fn func(Session)) {
	r.On(EventPart, func(payload any) { fn(payload.(Session)) })
}

// OnNick runs fn for every nick change in the room.
func (r *Room) OnNick(fn func(NickChange)) {
	r.On(EventNick, func(payload any) { fn(payload.(NickChange)) })
}

// OnEdit runs fn for every message edit or deletion.
func (r *Room) OnEdit(fn func(LiveMessage)) {
	r.On(EventEdit, func(payload any) { fn(payload.(LiveMessage)) })
}

// OnPM runs fn when someone opens a PM room with this session.
func (r *Room) OnPM(fn func(PMInvite)) {
	r.On(EventPM, func(payload any) { fn(payload.(PMInvite)) })
}

// OnDisconnect runs fn with the server's reason when it announces an
// impending disconnect.
func (r *Room) OnDisconnect(fn func(reason string)) {
	r.On(EventDisconnect, func(payload any) { fn(payload.(string)) })
}

// Connect opens the connection and waits for the handshake: hello and
// snapshot both received (in either order), authentication passed if
// the room bounced, and the configured nick asserted. On failure the
// room is left disconnected and the error distinguishes transport
// failures from ErrNoAuthOption, ErrNoPassword and ErrWrongPassword.
// Calling Connect on an already-connected room fails with
// connection.ErrIncorrectState and leaves the room as it was.
func (r *Room) Connect(ctx context.Context) error {
	r.mu.Lock()
	prevHello, prevSnapshot := r.helloReceived, r.snapshotReceived
	prevSettled, prevErr := r.gateSettled, r.gateErr
	r.resetHandshakeLocked()
	r.mu.Unlock()

	if err := r.conn.Connect(ctx); err != nil {
		// The connection refused, typically because it is already
		// running. Its handshake state still stands; put it back so an
		// established room keeps serving commands.
		r.mu.Lock()
		r.helloReceived, r.snapshotReceived = prevHello, prevSnapshot
		if prevSettled {
			r.settleGateLocked(prevErr)
		}
		r.mu.Unlock()
		return err
	}
	if err := r.awaitGate(ctx); err != nil {
		r.mu.Lock()
		r.settleGateLocked(ErrNotConnected)
		r.mu.Unlock()
		r.conn.Disconnect()
		return err
	}
	return nil
}

// Disconnect leaves the room and tears down the connection. Commands
// blocked on the handshake fail with ErrNotConnected. Idempotent.
func (r *Room) Disconnect() {
	r.mu.Lock()
	r.settleGateLocked(ErrNotConnected)
	r.mu.Unlock()
	r.conn.Disconnect()
}

// Close disconnects and releases the room's dispatchers. The room
// cannot be reused afterwards.
func (r *Room) Close() {
	r.Disconnect()
	r.conn.Close()
	r.events.Close()
}

// Send posts a message, optionally as a child of parentID.
func (r *Room) Send(ctx context.Context, content, parentID string) (LiveMessage, error) {
	var reply proto.SendReply
	err := r.command(ctx, proto.SendType, proto.SendCommand{Content: content, Parent: parentID}, &reply)
	if err != nil {
		return LiveMessage{}, err
	}
	return r.liveMessage(reply), nil
}

// Nick requests a new nick. The returned nick is the server's
// authoritative choice, which may differ from the request; the room's
// target nick and cached own session follow the reply, not the request.
func (r *Room) Nick(ctx context.Context, nick string) (string, error) {
	var reply proto.NickReply
	if err := r.command(ctx, proto.NickType, proto.NickCommand{Name: nick}, &reply); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.nick = reply.To
	if r.session != nil {
		updated := *r.session
		updated.Name = reply.To
		r.session = &updated
	}
	r.mu.Unlock()
	return reply.To, nil
}

// GetMessage fetches a single message by id.
func (r *Room) GetMessage(ctx context.Context, id string) (LiveMessage, error) {
	var reply proto.GetMessageReply
	if err := r.command(ctx, proto.GetMessageType, proto.GetMessageCommand{ID: id}, &reply); err != nil {
		return LiveMessage{}, err
	}
	return r.liveMessage(reply), nil
}

// Log fetches the n most recent messages, or those before the given
// message id, oldest first.
func (r *Room) Log(ctx context.Context, n int, beforeID string) ([]LiveMessage, error) {
	var reply proto.LogReply
	if err := r.command(ctx, proto.LogType, proto.LogCommand{N: n, Before: beforeID}, &reply); err != nil {
		return nil, err
	}
	return r.liveMessages(reply.Log), nil
}

// Who fetches the authoritative session listing and replaces the cached
// one wholesale.
func (r *Room) Who(ctx context.Context) (Listing, error) {
	var reply proto.WhoReply
	if err := r.command(ctx, proto.WhoType, proto.WhoCommand{}, &reply); err != nil {
		return Listing{}, err
	}
	listing := newListing(reply.Listing)
	r.mu.Lock()
	r.listing = listing
	r.mu.Unlock()
	return listing, nil
}

// PM opens a private chat with the given user id. It returns the PM
// room name and the invited user's current nick.
func (r *Room) PM(ctx context.Context, userID string) (pmID, toNick string, err error) {
	var reply proto.PMInitiateReply
	if err := r.command(ctx, proto.PMInitiateType, proto.PMInitiateCommand{UserID: userID}, &reply); err != nil {
		return "", "", err
	}
	return reply.PMID, reply.ToNick, nil
}

// command issues one correlated send after the handshake gate opens,
// converting a server-reported error into a *proto.ServerError.
func (r *Room) command(ctx context.Context, ptype proto.PacketType, payload, out any) error {
	ctx, span := r.tracer.Start(ctx, "euphony.room."+string(ptype),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("euphony.room", r.name),
			attribute.String("euphony.packet_type", string(ptype)),
		))
	defer span.End()

	err := r.commandInner(ctx, ptype, payload, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Room) commandInner(ctx context.Context, ptype proto.PacketType, payload, out any) error {
	if err := r.awaitGate(ctx); err != nil {
		return err
	}
	packet, err := r.conn.Send(ctx, ptype, payload, true)
	if err != nil {
		return err
	}
	if err := packet.Err(); err != nil {
		return err
	}
	if out != nil {
		if err := packet.Payload(out); err != nil {
			return err
		}
	}
	return nil
}

// awaitGate blocks until the connected-gate settles. A gate reset by a
// reconnect keeps callers waiting for the fresh handshake; a gate
// settled with an error fails them.
func (r *Room) awaitGate(ctx context.Context) error {
	r.mu.Lock()
	for !r.gateSettled {
		ch := r.gateCh
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
		r.mu.Lock()
	}
	err := r.gateErr
	r.mu.Unlock()
	return err
}

// settleGateLocked settles the connected-gate, waking every waiter.
// A nil error means connected. Callers hold mu.
func (r *Room) settleGateLocked(err error) {
	r.gateSettled = true
	r.gateErr = err
	close(r.gateCh)
	r.gateCh = make(chan struct{})
}

// resetHandshakeLocked clears the hello/snapshot progress and reopens
// the gate, making the next handshake indistinguishable from a fresh
// connect. Callers hold mu.
func (r *Room) resetHandshakeLocked() {
	r.helloReceived = false
	r.snapshotReceived = false
	r.gateSettled = false
	r.gateErr = nil
	close(r.gateCh)
	r.gateCh = make(chan struct{})
}

// registerHandlers wires the room's protocol logic to connection
// events. Handlers run on the connection's dispatcher, one at a time,
// in arrival order.
func (r *Room) registerHandlers() {
	handle := func(name proto.PacketType, fn func(*proto.Packet)) {
		r.conn.Register(string(name), func(payload any) {
			fn(payload.(*proto.Packet))
		})
	}
	handle(proto.BounceEventType, r.onBounce)
	handle(proto.HelloEventType, r.onHello)
	handle(proto.SnapshotEventType, r.onSnapshot)
	handle(proto.JoinEventType, r.onJoin)
	handle(proto.PartEventType, r.onPart)
	handle(proto.NetworkEventType, r.onNetwork)
	handle(proto.NickEventType, r.onNick)
	handle(proto.SendEventType, r.onSend)
	handle(proto.EditMessageEventType, r.onEdit)
	handle(proto.DisconnectEventType, r.onDisconnectEvent)
	handle(proto.LoginEventType, r.onIdentityChange)
	handle(proto.LogoutEventType, r.onIdentityChange)
	handle(proto.PingEventType, r.onPing)
	handle(proto.PMInitiateEventType, r.onPMInitiate)

	r.conn.Register(connection.EventReconnecting, func(any) {
		r.mu.Lock()
		r.resetHandshakeLocked()
		r.mu.Unlock()
	})
}

// onBounce handles the access-denied path of the handshake: try the
// configured passcode, or settle the gate with the reason the attempt
// cannot succeed.
func (r *Room) onBounce(packet *proto.Packet) {
	var bounce proto.BounceEvent
	if err := packet.Payload(&bounce); err != nil {
		r.logger.Warn("dropping malformed bounce-event", "error", err)
		return
	}

	r.mu.Lock()
	password := r.password
	r.mu.Unlock()

	var failure error
	switch {
	case !bounce.OffersPasscode():
		failure = ErrNoAuthOption
	case password == "":
		failure = ErrNoPassword
	}
	if failure != nil {
		r.logger.Warn("cannot authenticate", "reason", failure, "bounce_reason", bounce.Reason)
		r.mu.Lock()
		r.settleGateLocked(failure)
		r.mu.Unlock()
		return
	}

	reply, err := r.conn.Send(context.Background(), proto.AuthType,
		proto.AuthCommand{Type: proto.AuthPasscode, Passcode: password}, true)
	if err != nil {
		// Connection died mid-auth; the reconnect handshake retries.
		r.logger.Warn("auth send failed", "error", err)
		return
	}
	var auth proto.AuthReply
	if err := packetInto(reply, &auth); err != nil || !auth.Success {
		r.logger.Warn("authentication rejected", "reason", auth.Reason)
		r.mu.Lock()
		r.settleGateLocked(ErrWrongPassword)
		r.mu.Unlock()
	}
	// On success the server proceeds with hello/snapshot as usual.
}

func packetInto(packet *proto.Packet, out any) error {
	if err := packet.Err(); err != nil {
		return err
	}
	return packet.Payload(out)
}

func (r *Room) onHello(packet *proto.Packet) {
	var hello proto.HelloEvent
	if err := packet.Payload(&hello); err != nil {
		r.logger.Warn("dropping malformed hello-event", "error", err)
		return
	}

	r.mu.Lock()
	session := hello.Session
	r.session = &session
	r.private = hello.RoomIsPrivate
	r.version = hello.Version
	r.accountID = hello.AccountID
	r.accountHasAccess = hello.AccountHasAccess
	r.accountEmailVerified = hello.AccountEmailVerified
	r.helloReceived = true
	r.mu.Unlock()

	r.finishHandshake()
}

func (r *Room) onSnapshot(packet *proto.Packet) {
	var snapshot proto.SnapshotEvent
	if err := packet.Payload(&snapshot); err != nil {
		r.logger.Warn("dropping malformed snapshot-event", "error", err)
		return
	}

	r.mu.Lock()
	r.listing = newListing(snapshot.Listing)
	r.version = snapshot.Version
	r.pmWithNick = snapshot.PMWithNick
	r.pmWithUserID = snapshot.PMWithUserID
	if snapshot.Nick != "" && r.session != nil {
		updated := *r.session
		updated.Name = snapshot.Nick
		r.session = &updated
	}
	r.snapshotReceived = true
	r.mu.Unlock()

	r.events.Fire(EventSnapshot, r.liveMessages(snapshot.Log))
	r.finishHandshake()
}

// finishHandshake declares the room connected once hello and snapshot
// have both arrived, asserting the configured nick first if it differs
// from what the server assigned.
func (r *Room) finishHandshake() {
	r.mu.Lock()
	if !r.helloReceived || !r.snapshotReceived || r.gateSettled {
		r.mu.Unlock()
		return
	}
	target := r.nick
	current := ""
	if r.session != nil {
		current = r.session.Name
	}
	r.mu.Unlock()

	if target != "" && target != current {
		reply, err := r.conn.Send(context.Background(), proto.NickType,
			proto.NickCommand{Name: target}, true)
		if err != nil {
			// The handshake restarts with the reconnect; leave the
			// gate open for it.
			r.logger.Warn("nick assertion failed", "error", err)
			return
		}
		var nick proto.NickReply
		if err := packetInto(reply, &nick); err != nil {
			r.logger.Warn("nick rejected", "error", err)
		} else {
			r.mu.Lock()
			r.nick = nick.To
			if r.session != nil {
				updated := *r.session
				updated.Name = nick.To
				r.session = &updated
			}
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	if r.gateSettled {
		r.mu.Unlock()
		return
	}
	r.settleGateLocked(nil)
	r.mu.Unlock()

	r.logger.Info("room connected", "version", r.Version())
	r.events.Fire(EventConnected, nil)
}

func (r *Room) onJoin(packet *proto.Packet) {
	var view proto.JoinEvent
	if err := packet.Payload(&view); err != nil {
		r.logger.Warn("dropping malformed join-event", "error", err)
		return
	}
	r.mu.Lock()
	r.listing = r.listing.with(view)
	r.mu.Unlock()
	r.events.Fire(EventJoin, r.liveSession(view))
}

func (r *Room) onPart(packet *proto.Packet) {
	var view proto.PartEvent
	if err := packet.Payload(&view); err != nil {
		r.logger.Warn("dropping malformed part-event", "error", err)
		return
	}
	r.mu.Lock()
	r.listing, _, _ = r.listing.without(view.SessionID)
	r.mu.Unlock()
	r.events.Fire(EventPart, r.liveSession(view))
}

// onNetwork removes every session hosted by a partitioned server and
// fires a part per removed session.
func (r *Room) onNetwork(packet *proto.Packet) {
	var network proto.NetworkEvent
	if err := packet.Payload(&network); err != nil {
		r.logger.Warn("dropping malformed network-event", "error", err)
		return
	}
	if network.Type != proto.NetworkPartition {
		return
	}

	r.mu.Lock()
	listing, removed := r.listing.withoutServer(network.ServerID, network.ServerEra)
	r.listing = listing
	r.mu.Unlock()

	r.logger.Info("network partition", "server_id", network.ServerID, "dropped", len(removed))
	for _, view := range removed {
		r.events.Fire(EventPart, r.liveSession(view))
	}
}

// onNick updates the listing for a nick change. A nick-event for a
// session we never saw means the listing drifted; re-fetch it from the
// server instead of guessing.
func (r *Room) onNick(packet *proto.Packet) {
	var change proto.NickEvent
	if err := packet.Payload(&change); err != nil {
		r.logger.Warn("dropping malformed nick-event", "error", err)
		return
	}

	r.mu.Lock()
	view, known := r.listing.Get(change.SessionID)
	if known {
		view.Name = change.To
		r.listing = r.listing.with(view)
	}
	r.mu.Unlock()

	if !known {
		r.logger.Warn("nick-event for unknown session, resyncing listing", "session_id", change.SessionID)
		if _, err := r.Who(context.Background()); err != nil {
			r.logger.Warn("listing resync failed", "error", err)
		}
		view = proto.SessionView{ID: change.UserID, Name: change.To, SessionID: change.SessionID}
	}
	r.events.Fire(EventNick, NickChange{Session: r.liveSession(view), From: change.From, To: change.To})
}

func (r *Room) onSend(packet *proto.Packet) {
	var msg proto.SendEvent
	if err := packet.Payload(&msg); err != nil {
		r.logger.Warn("dropping malformed send-event", "error", err)
		return
	}
	r.events.Fire(EventSend, r.liveMessage(msg))
}

func (r *Room) onEdit(packet *proto.Packet) {
	var edit proto.EditMessageEvent
	if err := packet.Payload(&edit); err != nil {
		r.logger.Warn("dropping malformed edit-message-event", "error", err)
		return
	}
	r.events.Fire(EventEdit, r.liveMessage(edit.Message))
}

// onDisconnectEvent relays the server's reason; "authentication
// changed" additionally forces a reconnect to pick up the new identity.
func (r *Room) onDisconnectEvent(packet *proto.Packet) {
	var disconnect proto.DisconnectEvent
	if err := packet.Payload(&disconnect); err != nil {
		r.logger.Warn("dropping malformed disconnect-event", "error", err)
		return
	}
	r.logger.Info("server requested disconnect", "reason", disconnect.Reason)
	r.events.Fire(EventDisconnect, disconnect.Reason)
	if disconnect.Reason == proto.ReasonAuthenticationChanged {
		r.conn.Reconnect()
	}
}

// onIdentityChange handles login-event and logout-event: the session's
// identity changed server-side, so local state is stale and only a
// fresh handshake fixes it.
func (r *Room) onIdentityChange(*proto.Packet) {
	r.logger.Info("session identity changed, reconnecting")
	r.conn.Reconnect()
}

// onPing echoes the server's liveness probe.
func (r *Room) onPing(packet *proto.Packet) {
	var ping proto.PingEvent
	if err := packet.Payload(&ping); err != nil {
		r.logger.Warn("dropping malformed ping-event", "error", err)
		return
	}
	if _, err := r.conn.Send(context.Background(), proto.PingReplyType,
		proto.PingReplyCommand{UnixTime: ping.UnixTime}, false); err != nil {
		r.logger.Warn("ping reply failed", "error", err)
	}
}

func (r *Room) onPMInitiate(packet *proto.Packet) {
	var pm proto.PMInitiateEvent
	if err := packet.Payload(&pm); err != nil {
		r.logger.Warn("dropping malformed pm-initiate-event", "error", err)
		return
	}
	r.events.Fire(EventPM, PMInvite{
		FromID:   pm.FromID,
		FromNick: pm.FromNick,
		FromRoom: pm.FromRoom,
		PMID:     pm.PMID,
	})
}
