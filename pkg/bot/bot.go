// Package bot turns a room into a command-driven bot: an ordered list
// of (matcher, handler) rules evaluated against every message posted to
// the room. Rules are plain data; there is no base class to subclass
// and no decorator machinery. The euphoria botrulez commands (!ping,
// !help, !uptime) ship as pre-built rules.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/room"
)

// Matcher decides whether a rule applies to a message.
type Matcher func(b *Bot, msg room.LiveMessage) bool

// Handler reacts to a matched message, usually by replying to it.
type Handler func(ctx context.Context, b *Bot, msg room.LiveMessage) error

// Rule pairs a matcher with its handler. Rules run in registration
// order; the first match wins.
type Rule struct {
	Name   string
	Match  Matcher
	Handle Handler
}

// Bot dispatches a room's messages through its rule list. All methods
// are safe for concurrent use; handlers run one at a time, in message
// arrival order.
type Bot struct {
	room    *room.Room
	logger  *slog.Logger
	started time.Time

	mu    sync.Mutex
	rules []Rule
}

// New attaches a bot to a room. Rules added afterwards apply to
// messages that arrive after the Add call.
func New(r *room.Room, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		room:    r,
		logger:  logger.With("room", r.Name()),
		started: time.Now(),
	}
	r.OnSend(b.dispatch)
	return b
}

// Room returns the room the bot lives in.
func (b *Bot) Room() *room.Room { return b.room }

// Started returns the time the bot was created.
func (b *Bot) Started() time.Time { return b.started }

// Add appends a rule.
func (b *Bot) Add(rule Rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append(b.rules, rule)
}

// HandleCommand adds a rule for the general form of a command: "!name"
// with no @-mention, which addresses every bot in the room.
func (b *Bot) HandleCommand(name string, handle Handler) {
	b.Add(Rule{
		Name: "!" + name,
		Match: func(_ *Bot, msg room.LiveMessage) bool {
			inv, ok := ParseInvocation(msg.Content)
			return ok && inv.Command == name && inv.Target == ""
		},
		Handle: handle,
	})
}

// HandleSpecificCommand adds a rule for the specific form of a command:
// "!name @Nick" where the mention matches this bot's current nick.
func (b *Bot) HandleSpecificCommand(name string, handle Handler) {
	b.Add(Rule{
		Name: "!" + name + " @self",
		Match: func(b *Bot, msg room.LiveMessage) bool {
			inv, ok := ParseInvocation(msg.Content)
			return ok && inv.Command == name && b.mentionsSelf(inv.Target)
		},
		Handle: handle,
	})
}

// UseStandardRules installs the euphoria botrulez commands: !ping
// (general and specific) answering "Pong!", !help (general gives the
// short description, specific the full text), and !uptime (specific).
func (b *Bot) UseStandardRules(shortHelp, help string) {
	pong := func(ctx context.Context, b *Bot, msg room.LiveMessage) error {
		_, err := msg.Reply(ctx, "Pong!")
		return err
	}
	b.HandleCommand("ping", pong)
	b.HandleSpecificCommand("ping", pong)

	if shortHelp != "" {
		b.HandleCommand("help", func(ctx context.Context, b *Bot, msg room.LiveMessage) error {
			_, err := msg.Reply(ctx, shortHelp)
			return err
		})
	}
	if help != "" {
		b.HandleSpecificCommand("help", func(ctx context.Context, b *Bot, msg room.LiveMessage) error {
			_, err := msg.Reply(ctx, help)
			return err
		})
	}

	b.HandleSpecificCommand("uptime", func(ctx context.Context, b *Bot, msg room.LiveMessage) error {
		up := time.Since(b.started).Round(time.Second)
		reply := fmt.Sprintf("/me has been up since %s (%s)",
			b.started.UTC().Format("2006-01-02 15:04:05 UTC"), up)
		_, err := msg.Reply(ctx, reply)
		return err
	})
}

// dispatch runs the first matching rule for a message. The bot's own
// messages are skipped, which also keeps a rule from replying to its
// own reply forever.
func (b *Bot) dispatch(msg room.LiveMessage) {
	if self, ok := b.room.SessionView(); ok && msg.Sender.SessionID == self.SessionID {
		return
	}

	b.mu.Lock()
	rules := b.rules
	b.mu.Unlock()

	for _, rule := range rules {
		if !rule.Match(b, msg) {
			continue
		}
		if err := rule.Handle(context.Background(), b, msg); err != nil {
			b.logger.Warn("rule failed", "rule", rule.Name, "message", msg.ID, "error", err)
		}
		return
	}
}

// mentionsSelf reports whether an @-mention target refers to the bot's
// current nick. Mention matching ignores case and euphoria's stripped
// characters.
func (b *Bot) mentionsSelf(target string) bool {
	if target == "" {
		return false
	}
	self, ok := b.room.SessionView()
	if !ok || self.Name == "" {
		return false
	}
	return strings.EqualFold(proto.MentionableName(target), self.Mentionable())
}

// Invocation is a parsed command message: "!command @Target args...".
type Invocation struct {
	Command string // without the leading "!"
	Target  string // mention without the "@", empty for general commands
	Args    string // remainder, whitespace-trimmed
}

// ParseInvocation splits a message into its command form. It reports
// false for anything that does not start with "!name".
func ParseInvocation(content string) (Invocation, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || len(fields[0]) < 2 || fields[0][0] != '!' {
		return Invocation{}, false
	}
	inv := Invocation{Command: fields[0][1:]}
	rest := fields[1:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], "@") && len(rest[0]) > 1 {
		inv.Target = rest[0][1:]
		rest = rest[1:]
	}
	inv.Args = strings.Join(rest, " ")
	return inv, true
}
