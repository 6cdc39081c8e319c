package room

import (
	"reflect"
	"testing"

	"github.com/euphony-chat/euphony/pkg/proto"
)

func sessions(ids ...string) []proto.SessionView {
	views := make([]proto.SessionView, len(ids))
	for i, id := range ids {
		views[i] = proto.SessionView{ID: "agent:" + id, Name: id, SessionID: "sess-" + id}
	}
	return views
}

func TestListingCopyOnWrite(t *testing.T) {
	base := newListing(sessions("alice", "bob"))

	grown := base.with(proto.SessionView{ID: "agent:carol", Name: "carol", SessionID: "sess-carol"})
	if base.Len() != 2 {
		t.Errorf("base mutated by with: len = %d, want 2", base.Len())
	}
	if grown.Len() != 3 {
		t.Errorf("grown len = %d, want 3", grown.Len())
	}

	shrunk, removed, ok := grown.without("sess-bob")
	if !ok || removed.Name != "bob" {
		t.Fatalf("without = %+v, %v; want bob, true", removed, ok)
	}
	if grown.Len() != 3 {
		t.Errorf("grown mutated by without: len = %d, want 3", grown.Len())
	}
	if _, found := shrunk.Get("sess-bob"); found {
		t.Error("removed session still present")
	}

	// Removing an absent session is a no-op.
	same, _, ok := shrunk.without("sess-nobody")
	if ok || same.Len() != shrunk.Len() {
		t.Errorf("without absent session changed listing")
	}
}

func TestListingReplacesSameSession(t *testing.T) {
	l := newListing(sessions("alice"))
	l = l.with(proto.SessionView{ID: "agent:alice", Name: "alicia", SessionID: "sess-alice"})
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	view, _ := l.Get("sess-alice")
	if view.Name != "alicia" {
		t.Errorf("name = %q, want %q", view.Name, "alicia")
	}
}

func TestListingWithoutServer(t *testing.T) {
	l := newListing([]proto.SessionView{
		{ID: "agent:a", Name: "a", SessionID: "s1", ServerID: "east", ServerEra: "e1"},
		{ID: "agent:b", Name: "b", SessionID: "s2", ServerID: "west", ServerEra: "e1"},
		{ID: "agent:c", Name: "c", SessionID: "s3", ServerID: "west", ServerEra: "e1"},
		{ID: "agent:d", Name: "d", SessionID: "s4", ServerID: "west", ServerEra: "e2"},
	})

	kept, removed := l.withoutServer("west", "e1")
	if kept.Len() != 2 {
		t.Errorf("kept len = %d, want 2", kept.Len())
	}
	var ids []string
	for _, v := range removed {
		ids = append(ids, v.SessionID)
	}
	if !reflect.DeepEqual(ids, []string{"s2", "s3"}) {
		t.Errorf("removed = %v, want [s2 s3]", ids)
	}
	// Same server id, different era survives.
	if _, ok := kept.Get("s4"); !ok {
		t.Error("session on other era was dropped")
	}
}

func TestListingSelectors(t *testing.T) {
	l := newListing([]proto.SessionView{
		{ID: "agent:a", Name: "person", SessionID: "s1"},
		{ID: "account:b", Name: "member", SessionID: "s2"},
		{ID: "bot:c", Name: "robot", SessionID: "s3"},
		{ID: "agent:d", Name: "", SessionID: "s4"},
	})

	names := func(views []proto.SessionView) []string {
		out := make([]string, len(views))
		for i, v := range views {
			out[i] = v.Name
		}
		return out
	}

	if got := names(l.People()); !reflect.DeepEqual(got, []string{"person", "member"}) {
		t.Errorf("People = %v", got)
	}
	if got := names(l.Accounts()); !reflect.DeepEqual(got, []string{"member"}) {
		t.Errorf("Accounts = %v", got)
	}
	if got := names(l.Agents()); !reflect.DeepEqual(got, []string{"person"}) {
		t.Errorf("Agents = %v", got)
	}
	if got := names(l.Bots()); !reflect.DeepEqual(got, []string{"robot"}) {
		t.Errorf("Bots = %v", got)
	}
	if got := l.Lurkers(); len(got) != 1 || got[0].SessionID != "s4" {
		t.Errorf("Lurkers = %v", got)
	}
}

func TestListingAllOrdered(t *testing.T) {
	l := newListing([]proto.SessionView{
		{SessionID: "s3"}, {SessionID: "s1"}, {SessionID: "s2"},
	})
	all := l.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].SessionID >= all[i].SessionID {
			t.Fatalf("All not ordered: %v", all)
		}
	}
}
