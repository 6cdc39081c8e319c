package proto

import (
	"encoding/json"
	"fmt"
)

// PacketType identifies the type of a packet on the wire.
type PacketType string

// Commands sent by the client.
const (
	AuthType       PacketType = "auth"
	NickType       PacketType = "nick"
	SendType       PacketType = "send"
	GetMessageType PacketType = "get-message"
	LogType        PacketType = "log"
	WhoType        PacketType = "who"
	PMInitiateType PacketType = "pm-initiate"
	PingReplyType  PacketType = "ping-reply"
)

// Asynchronous events pushed by the server.
const (
	HelloEventType       PacketType = "hello-event"
	SnapshotEventType    PacketType = "snapshot-event"
	BounceEventType      PacketType = "bounce-event"
	JoinEventType        PacketType = "join-event"
	PartEventType        PacketType = "part-event"
	NetworkEventType     PacketType = "network-event"
	NickEventType        PacketType = "nick-event"
	SendEventType        PacketType = "send-event"
	EditMessageEventType PacketType = "edit-message-event"
	DisconnectEventType  PacketType = "disconnect-event"
	LoginEventType       PacketType = "login-event"
	LogoutEventType      PacketType = "logout-event"
	PingEventType        PacketType = "ping-event"
	PMInitiateEventType  PacketType = "pm-initiate-event"
)

// Reply returns the reply type for a command type ("auth" -> "auth-reply").
func (t PacketType) Reply() PacketType { return t + "-reply" }

// Packet is the frame shape shared by every message on the wire. Commands
// carry a correlation id assigned by the connection; the matching reply
// carries the same id. Server-pushed events have no id.
type Packet struct {
	ID              string          `json:"id,omitempty"`
	Type            PacketType      `json:"type"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	Throttled       bool            `json:"throttled,omitempty"`
	ThrottledReason string          `json:"throttled_reason,omitempty"`
}

// DecodePacket parses a single text frame into a Packet.
func DecodePacket(frame []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(frame, &p); err != nil {
		return nil, fmt.Errorf("proto: malformed packet: %w", err)
	}
	if p.Type == "" {
		return nil, fmt.Errorf("proto: packet without type")
	}
	return &p, nil
}

// Encode serializes the packet for transmission.
func (p *Packet) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("proto: encode %s packet: %w", p.Type, err)
	}
	return data, nil
}

// Payload unmarshals the packet's data field into v.
func (p *Packet) Payload(v any) error {
	if len(p.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("proto: decode %s payload: %w", p.Type, err)
	}
	return nil
}

// Err returns the server-reported error carried by the packet, or nil.
func (p *Packet) Err() error {
	if p.Error == "" {
		return nil
	}
	return &ServerError{
		Command:         p.Type,
		Message:         p.Error,
		Throttled:       p.Throttled,
		ThrottledReason: p.ThrottledReason,
	}
}

// ServerError is an error reported by the server in a reply packet's
// error field.
type ServerError struct {
	Command         PacketType
	Message         string
	Throttled       bool
	ThrottledReason string
}

func (e *ServerError) Error() string {
	if e.Throttled && e.ThrottledReason != "" {
		return fmt.Sprintf("server rejected %s: %s (throttled: %s)", e.Command, e.Message, e.ThrottledReason)
	}
	return fmt.Sprintf("server rejected %s: %s", e.Command, e.Message)
}
