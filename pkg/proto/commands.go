package proto

// Command and reply payloads, one struct per packet type. Field names
// and shapes follow the euphoria client-server API.

// AuthCommand attempts to authenticate to a private room.
type AuthCommand struct {
	Type     string `json:"type"` // always "passcode"
	Passcode string `json:"passcode,omitempty"`
}

// AuthPasscode is the only authentication option this library supports.
const AuthPasscode = "passcode"

// AuthReply reports whether authentication succeeded.
type AuthReply struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// NickCommand requests a new nick for the session.
type NickCommand struct {
	Name string `json:"name"`
}

// NickReply confirms a nick change. To is authoritative; the server may
// have modified the requested nick.
type NickReply struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SendCommand posts a message to the room.
type SendCommand struct {
	Content string `json:"content"`
	Parent  string `json:"parent,omitempty"`
}

// SendReply is the posted message as recorded by the server.
type SendReply = Message

// GetMessageCommand fetches a single message by id.
type GetMessageCommand struct {
	ID string `json:"id"`
}

// GetMessageReply is the requested message.
type GetMessageReply = Message

// LogCommand requests the most recent n messages, optionally those
// preceding a given message id.
type LogCommand struct {
	N      int    `json:"n"`
	Before string `json:"before,omitempty"`
}

// LogReply carries a chunk of the room's message log, oldest first.
type LogReply struct {
	Log    []Message `json:"log"`
	Before string    `json:"before,omitempty"`
}

// WhoCommand requests the authoritative session listing.
type WhoCommand struct{}

// WhoReply is the full listing of sessions currently in the room.
type WhoReply struct {
	Listing []SessionView `json:"listing"`
}

// PMInitiateCommand opens a private chat with another user.
type PMInitiateCommand struct {
	UserID string `json:"user_id"`
}

// PMInitiateReply identifies the created PM room.
type PMInitiateReply struct {
	PMID   string `json:"pm_id"`
	ToNick string `json:"to_nick"`
}

// PingReplyCommand echoes a ping-event's timestamp back to the server.
type PingReplyCommand struct {
	UnixTime int64 `json:"time"`
}

// HelloEvent is sent once per connection and identifies the session.
type HelloEvent struct {
	UserID               string      `json:"id"`
	Session              SessionView `json:"session"`
	AccountID            string      `json:"account_id,omitempty"`
	AccountHasAccess     bool        `json:"account_has_access,omitempty"`
	AccountEmailVerified bool        `json:"account_email_verified,omitempty"`
	RoomIsPrivate        bool        `json:"room_is_private"`
	Version              string      `json:"version"`
}

// SnapshotEvent carries the initial room state after joining.
type SnapshotEvent struct {
	Identity     string        `json:"identity"`
	SessionID    string        `json:"session_id"`
	Version      string        `json:"version"`
	Listing      []SessionView `json:"listing"`
	Log          []Message     `json:"log"`
	Nick         string        `json:"nick,omitempty"`
	PMWithNick   string        `json:"pm_with_nick,omitempty"`
	PMWithUserID string        `json:"pm_with_user_id,omitempty"`
}

// BounceEvent indicates access was denied pending authentication.
type BounceEvent struct {
	Reason      string   `json:"reason,omitempty"`
	AuthOptions []string `json:"auth_options,omitempty"`
	AgentID     string   `json:"agent_id,omitempty"`
	IP          string   `json:"ip,omitempty"`
}

// OffersPasscode reports whether passcode authentication is available.
func (b *BounceEvent) OffersPasscode() bool {
	for _, option := range b.AuthOptions {
		if option == AuthPasscode {
			return true
		}
	}
	return false
}

// JoinEvent announces a session entering the room.
type JoinEvent = SessionView

// PartEvent announces a session leaving the room.
type PartEvent = SessionView

// NetworkEvent reports a server-side network change. A "partition" type
// means every session on the given server/era pair is gone.
type NetworkEvent struct {
	Type      string `json:"type"`
	ServerID  string `json:"server_id"`
	ServerEra string `json:"server_era"`
}

// NetworkPartition is the NetworkEvent type that implies session loss.
const NetworkPartition = "partition"

// NickEvent announces another session's nick change.
type NickEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SendEvent is a message posted to the room by another session.
type SendEvent = Message

// EditMessageEvent announces a message edit or deletion.
type EditMessageEvent struct {
	Message
	EditID string `json:"edit_id,omitempty"`
}

// DisconnectEvent tells the client the server is about to close the
// connection. A reason of "authentication changed" requires a
// reconnect to pick up the new identity.
type DisconnectEvent struct {
	Reason string `json:"reason"`
}

// ReasonAuthenticationChanged forces a reconnect when received in a
// DisconnectEvent.
const ReasonAuthenticationChanged = "authentication changed"

// LoginEvent reports that the session logged into an account elsewhere.
type LoginEvent struct {
	AccountID string `json:"account_id"`
}

// LogoutEvent reports that the session logged out elsewhere.
type LogoutEvent struct{}

// PingEvent is the server's periodic liveness probe. Time must be
// echoed in a ping-reply; Next predicts the following ping.
type PingEvent struct {
	UnixTime int64 `json:"time"`
	Next     int64 `json:"next"`
}

// PMInitiateEvent notifies the session that someone opened a PM with it.
type PMInitiateEvent struct {
	FromID   string `json:"from"`
	FromNick string `json:"from_nick"`
	FromRoom string `json:"from_room"`
	PMID     string `json:"pm_id"`
}
