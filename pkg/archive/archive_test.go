package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/euphony-chat/euphony/internal/wiretest"
	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/room"
)

type memStore struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (s *memStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puts == nil {
		s.puts = make(map[string][]byte)
	}
	s.puts[key] = data
	return nil
}

func newConnectedRoom(t *testing.T) (*room.Room, *wiretest.Conn) {
	t.Helper()
	dialer := &wiretest.Dialer{}
	r, err := room.New(room.Config{
		Name:           "archiveroom",
		Dialer:         dialer,
		PingTimeout:    time.Minute,
		ReconnectDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("room.New failed: %v", err)
	}
	t.Cleanup(r.Close)

	done := make(chan error, 1)
	go func() { done <- r.Connect(context.Background()) }()
	ws := dialer.Conn(t, 0)
	ws.Event(t, proto.HelloEventType, proto.HelloEvent{
		UserID:  "bot:self",
		Session: proto.SessionView{ID: "bot:self", SessionID: "sess-self"},
	})
	ws.Event(t, proto.SnapshotEventType, proto.SnapshotEvent{SessionID: "sess-self"})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect never returned")
	}
	return r, ws
}

// logPage builds count messages m<from>..m<from+count-1>, oldest first.
func logPage(from, count int) []proto.Message {
	msgs := make([]proto.Message, count)
	for i := range msgs {
		msgs[i] = proto.Message{ID: fmt.Sprintf("m%03d", from+i), Content: "line"}
	}
	return msgs
}

func serveLog(t *testing.T, ws *wiretest.Conn, wantN int, wantBefore string, page []proto.Message) {
	t.Helper()
	cmd := ws.Command(t, proto.LogType)
	var req proto.LogCommand
	if err := cmd.Payload(&req); err != nil {
		t.Fatalf("decode log command: %v", err)
	}
	if req.N != wantN || req.Before != wantBefore {
		t.Errorf("log command = n %d before %q, want n %d before %q", req.N, req.Before, wantN, wantBefore)
	}
	ws.Reply(t, cmd, proto.LogReply{Log: page})
}

func TestArchiveSinglePage(t *testing.T) {
	r, ws := newConnectedRoom(t)
	store := &memStore{}
	archiver := New(store, nil)

	type result struct {
		key   string
		count int
		err   error
	}
	got := make(chan result, 1)
	go func() {
		key, count, err := archiver.Archive(context.Background(), r, 50)
		got <- result{key, count, err}
	}()

	// Fewer messages than asked for: history exhausted, one page.
	serveLog(t, ws, 50, "", logPage(1, 3))

	res := <-got
	if res.err != nil {
		t.Fatalf("Archive failed: %v", res.err)
	}
	if res.count != 3 {
		t.Errorf("count = %d, want 3", res.count)
	}
	if !strings.HasPrefix(res.key, "archiveroom/") || !strings.HasSuffix(res.key, ".json") {
		t.Errorf("key = %q", res.key)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(store.puts[res.key], &snapshot); err != nil {
		t.Fatalf("decode stored snapshot: %v", err)
	}
	if snapshot.Room != "archiveroom" || len(snapshot.Messages) != 3 {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if snapshot.Messages[0].ID != "m001" || snapshot.Messages[2].ID != "m003" {
		t.Errorf("messages not oldest first: %v", snapshot.Messages)
	}
}

func TestArchivePagesBackwards(t *testing.T) {
	r, ws := newConnectedRoom(t)
	store := &memStore{}
	archiver := New(store, nil)

	type result struct {
		count int
		key   string
		err   error
	}
	got := make(chan result, 1)
	go func() {
		key, count, err := archiver.Archive(context.Background(), r, 120)
		got <- result{count, key, err}
	}()

	// First page: the newest 100 messages (m021..m120).
	serveLog(t, ws, 100, "", logPage(21, 100))
	// Second page: the 20 before the oldest seen so far.
	serveLog(t, ws, 20, "m021", logPage(1, 20))

	res := <-got
	if res.err != nil {
		t.Fatalf("Archive failed: %v", res.err)
	}
	if res.count != 120 {
		t.Errorf("count = %d, want 120", res.count)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(store.puts[res.key], &snapshot); err != nil {
		t.Fatalf("decode stored snapshot: %v", err)
	}
	if snapshot.Messages[0].ID != "m001" || snapshot.Messages[119].ID != "m120" {
		t.Errorf("message order wrong: first %s last %s",
			snapshot.Messages[0].ID, snapshot.Messages[119].ID)
	}
}

func TestDiskStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	if err := store.Put(context.Background(), "myroom/capture.json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "myroom", "capture.json"))
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("stored data = %s", data)
	}

	if err := store.Put(context.Background(), "../escape.json", nil); err == nil {
		t.Error("Put accepted a path-escaping key")
	}
}
