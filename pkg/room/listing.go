package room

import (
	"sort"

	"github.com/euphony-chat/euphony/pkg/proto"
)

// Listing is the set of sessions currently present in a room, keyed by
// session id. Listings are copy-on-write: every mutation produces a new
// value, so a Listing handed to a caller is never modified underneath
// it. The zero value is an empty listing.
type Listing struct {
	sessions map[string]proto.SessionView
}

// newListing builds a listing from a server-provided session slice.
func newListing(views []proto.SessionView) Listing {
	sessions := make(map[string]proto.SessionView, len(views))
	for _, view := range views {
		sessions[view.SessionID] = view
	}
	return Listing{sessions: sessions}
}

// Len returns the number of sessions present.
func (l Listing) Len() int { return len(l.sessions) }

// Get looks up a session by session id.
func (l Listing) Get(sessionID string) (proto.SessionView, bool) {
	view, ok := l.sessions[sessionID]
	return view, ok
}

// All returns every session, ordered by session id for determinism.
func (l Listing) All() []proto.SessionView {
	views := make([]proto.SessionView, 0, len(l.sessions))
	for _, view := range l.sessions {
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SessionID < views[j].SessionID })
	return views
}

// with returns a new listing that includes view, replacing any previous
// entry for the same session id.
func (l Listing) with(view proto.SessionView) Listing {
	sessions := make(map[string]proto.SessionView, len(l.sessions)+1)
	for id, v := range l.sessions {
		sessions[id] = v
	}
	sessions[view.SessionID] = view
	return Listing{sessions: sessions}
}

// without returns a new listing with the given session removed, along
// with the removed view if it was present.
func (l Listing) without(sessionID string) (Listing, proto.SessionView, bool) {
	removed, ok := l.sessions[sessionID]
	if !ok {
		return l, proto.SessionView{}, false
	}
	sessions := make(map[string]proto.SessionView, len(l.sessions)-1)
	for id, v := range l.sessions {
		if id != sessionID {
			sessions[id] = v
		}
	}
	return Listing{sessions: sessions}, removed, true
}

// withoutServer returns a new listing with every session on the given
// server/era pair removed, along with the removed views. Used for
// network partition events.
func (l Listing) withoutServer(serverID, serverEra string) (Listing, []proto.SessionView) {
	sessions := make(map[string]proto.SessionView, len(l.sessions))
	var removed []proto.SessionView
	for id, v := range l.sessions {
		if v.ServerID == serverID && v.ServerEra == serverEra {
			removed = append(removed, v)
			continue
		}
		sessions[id] = v
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].SessionID < removed[j].SessionID })
	return Listing{sessions: sessions}, removed
}

// filter returns the sessions matching keep, ordered by session id.
func (l Listing) filter(keep func(proto.SessionView) bool) []proto.SessionView {
	var views []proto.SessionView
	for _, view := range l.sessions {
		if keep(view) {
			views = append(views, view)
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SessionID < views[j].SessionID })
	return views
}

// People returns the named, non-bot sessions (agents and accounts).
func (l Listing) People() []proto.SessionView {
	return l.filter(func(v proto.SessionView) bool {
		t := v.UserType()
		return (t == proto.Agent || t == proto.Account) && v.Name != ""
	})
}

// Accounts returns the named sessions signed into an account.
func (l Listing) Accounts() []proto.SessionView {
	return l.filter(func(v proto.SessionView) bool {
		return v.UserType() == proto.Account && v.Name != ""
	})
}

// Agents returns the named sessions not signed into an account.
func (l Listing) Agents() []proto.SessionView {
	return l.filter(func(v proto.SessionView) bool {
		return v.UserType() == proto.Agent && v.Name != ""
	})
}

// Bots returns the named bot sessions.
func (l Listing) Bots() []proto.SessionView {
	return l.filter(func(v proto.SessionView) bool {
		return v.UserType() == proto.Bot && v.Name != ""
	})
}

// Lurkers returns the sessions that never set a nick.
func (l Listing) Lurkers() []proto.SessionView {
	return l.filter(func(v proto.SessionView) bool { return v.Name == "" })
}
