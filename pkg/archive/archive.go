// Package archive exports room logs: it pages through a room's message
// history and persists the JSON encoding of each capture through a
// Store. Stores are dumb key/blob sinks; the disk and S3 implementations
// carry no room knowledge.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/room"
)

// DefaultDepth is how many messages Archive captures when the caller
// does not say.
const DefaultDepth = 100

// logChunk is the page size used against the server.
const logChunk = 100

// Store persists one capture under a key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Snapshot is the persisted form of one capture: the room's most recent
// messages, oldest first.
type Snapshot struct {
	Room     string          `json:"room"`
	Captured time.Time       `json:"captured"`
	Messages []proto.Message `json:"messages"`
}

// Archiver captures room logs into a store.
type Archiver struct {
	store  Store
	logger *slog.Logger
}

// New creates an Archiver. A nil logger means slog.Default().
func New(store Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, logger: logger}
}

// Archive fetches up to depth messages from the room, newest backwards,
// and stores them as one snapshot. It returns the store key and the
// number of messages captured. A depth of zero means DefaultDepth.
func (a *Archiver) Archive(ctx context.Context, r *room.Room, depth int) (string, int, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}

	messages, err := a.fetch(ctx, r, depth)
	if err != nil {
		return "", 0, err
	}

	captured := time.Now().UTC()
	snapshot := Snapshot{Room: r.Name(), Captured: captured, Messages: messages}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", 0, fmt.Errorf("archive: encode snapshot: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", r.Name(), captured.Format("20060102T150405Z"))
	if err := a.store.Put(ctx, key, data); err != nil {
		return "", 0, fmt.Errorf("archive: store %s: %w", key, err)
	}
	a.logger.Info("archived room log", "room", r.Name(), "key", key, "messages", len(messages))
	return key, len(messages), nil
}

// fetch pages backwards through the log until depth messages are
// collected or the history runs out, returning them oldest first.
func (a *Archiver) fetch(ctx context.Context, r *room.Room, depth int) ([]proto.Message, error) {
	var messages []proto.Message
	before := ""
	for len(messages) < depth {
		n := depth - len(messages)
		if n > logChunk {
			n = logChunk
		}
		page, err := r.Log(ctx, n, before)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		older := make([]proto.Message, 0, len(page)+len(messages))
		for _, msg := range page {
			older = append(older, msg.Message)
		}
		messages = append(older, messages...)
		before = page[0].ID

		if len(page) < n {
			break
		}
	}
	return messages, nil
}
