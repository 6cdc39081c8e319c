package room

import (
	"context"

	"github.com/euphony-chat/euphony/pkg/proto"
)

// Session is a live view of a participant: the wire-level SessionView
// plus a back-reference to the room it was observed in. The reference
// is read-only convenience, not ownership.
type Session struct {
	proto.SessionView
	room *Room
}

// Room returns the room the session was observed in.
func (s Session) Room() *Room { return s.room }

// PM opens a private chat with the session's user. It returns the PM
// room name and the current nick of the invited user.
func (s Session) PM(ctx context.Context) (pmID, toNick string, err error) {
	return s.room.PM(ctx, s.ID)
}

// LiveMessage is a message bound to the room it arrived in.
type LiveMessage struct {
	proto.Message
	room *Room
}

// Room returns the room the message belongs to.
func (m LiveMessage) Room() *Room { return m.room }

// SenderSession returns the message's sender as a live session.
func (m LiveMessage) SenderSession() Session {
	return Session{SessionView: m.Message.Sender, room: m.room}
}

// Reply posts a child message under this one.
func (m LiveMessage) Reply(ctx context.Context, content string) (LiveMessage, error) {
	return m.room.Send(ctx, content, m.ID)
}

// NickChange describes a nick-event: who changed, and from what to what.
type NickChange struct {
	Session Session
	From    string
	To      string
}

// PMInvite describes a pm-initiate-event: someone opened a PM room with
// this session.
type PMInvite struct {
	FromID   string
	FromNick string
	FromRoom string
	PMID     string
}

func (r *Room) liveSession(view proto.SessionView) Session {
	return Session{SessionView: view, room: r}
}

func (r *Room) liveMessage(msg proto.Message) LiveMessage {
	return LiveMessage{Message: msg, room: r}
}

func (r *Room) liveMessages(msgs []proto.Message) []LiveMessage {
	live := make([]LiveMessage, len(msgs))
	for i, msg := range msgs {
		live[i] = r.liveMessage(msg)
	}
	return live
}
