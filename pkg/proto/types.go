package proto

import (
	"strings"
	"time"
)

// UserType classifies a user id by its prefix.
type UserType string

// User id prefixes. Lurkers are sessions of any type with an empty nick.
const (
	Agent   UserType = "agent"
	Account UserType = "account"
	Bot     UserType = "bot"
)

// SessionView describes a single session present in a room, as captured
// by the server at the time of the event that carried it.
type SessionView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ServerID      string `json:"server_id"`
	ServerEra     string `json:"server_era"`
	SessionID     string `json:"session_id"`
	IsStaff       bool   `json:"is_staff,omitempty"`
	IsManager     bool   `json:"is_manager,omitempty"`
	ClientAddress string `json:"client_address,omitempty"`
}

// UserType returns the session's classification based on its user id
// prefix ("agent:...", "account:...", "bot:...").
func (s *SessionView) UserType() UserType {
	prefix, _, ok := strings.Cut(s.ID, ":")
	if !ok {
		return ""
	}
	return UserType(prefix)
}

// MentionableName strips the characters euphoria ignores when matching
// an @-mention against a nick.
func MentionableName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`,.!?;&<'"`, r) {
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Mentionable returns the session's nick in mention-matching form.
func (s *SessionView) Mentionable() string {
	return MentionableName(s.Name)
}

// AtMention returns the nick as it would be typed to ping the session.
func (s *SessionView) AtMention() string { return "@" + s.Mentionable() }

// Message is a single node in a room's message tree.
type Message struct {
	ID              string      `json:"id"`
	Parent          string      `json:"parent,omitempty"`
	PreviousEditID  string      `json:"previous_edit_id,omitempty"`
	UnixTime        int64       `json:"time"`
	Sender          SessionView `json:"sender"`
	Content         string      `json:"content"`
	EncryptionKeyID string      `json:"encryption_key_id,omitempty"`
	Edited          int64       `json:"edited,omitempty"`
	Deleted         int64       `json:"deleted,omitempty"`
	Truncated       bool        `json:"truncated,omitempty"`
}

// Time converts the wire timestamp (Unix seconds) to a time.Time.
func (m *Message) Time() time.Time { return time.Unix(m.UnixTime, 0) }

// IsDeleted reports whether the message has been deleted.
func (m *Message) IsDeleted() bool { return m.Deleted != 0 }

// IsEdited reports whether the message has been edited.
func (m *Message) IsEdited() bool { return m.Edited != 0 }
