package gateway

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog"
)

// LogGateway performs no platform calls. It records every call, whatever the
// global log level, and mints snowflake ids for sent messages, which is
// enough to drive the assistant from a console.
type LogGateway struct {
	log zerolog.Logger

	mu   sync.Mutex
	last snowflake.ID
	sent map[snowflake.ID]string
}

var _ Gateway = (*LogGateway)(nil)

// NewLogGateway writes call records to w as JSON lines. A nil w discards
// them.
func NewLogGateway(w io.Writer) *LogGateway {
	if w == nil {
		w = io.Discard
	}
	return &LogGateway{
		log:  zerolog.New(w).With().Timestamp().Str("component", "gateway").Logger(),
		sent: make(map[snowflake.ID]string),
	}
}

// Message returns the current content of a message sent through g.
func (g *LogGateway) Message(id snowflake.ID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sent[id]
	return s, ok
}

func (g *LogGateway) AssignRole(_ context.Context, guild, user snowflake.ID, role string) error {
	g.log.Log().Str("op", "assign_role").Str("guild", guild.String()).Str("user", user.String()).Str("role", role).Send()
	return nil
}

func (g *LogGateway) RevokeRole(_ context.Context, guild, user snowflake.ID, role string) error {
	g.log.Log().Str("op", "revoke_role").Str("guild", guild.String()).Str("user", user.String()).Str("role", role).Send()
	return nil
}

func (g *LogGateway) SendMessage(_ context.Context, channel snowflake.ID, content string) (snowflake.ID, error) {
	g.mu.Lock()
	id := snowflake.New(time.Now())
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	g.sent[id] = content
	g.mu.Unlock()
	g.log.Log().Str("op", "send_message").Str("channel", channel.String()).Str("message", id.String()).Str("content", content).Send()
	return id, nil
}

func (g *LogGateway) EditMessage(_ context.Context, channel, message snowflake.ID, content string) error {
	g.mu.Lock()
	g.sent[message] = content
	g.mu.Unlock()
	g.log.Log().Str("op", "edit_message").Str("channel", channel.String()).Str("message", message.String()).Str("content", content).Send()
	return nil
}

func (g *LogGateway) DeleteMessage(_ context.Context, channel, message snowflake.ID) error {
	g.mu.Lock()
	delete(g.sent, message)
	g.mu.Unlock()
	g.log.Log().Str("op", "delete_message").Str("channel", channel.String()).Str("message", message.String()).Send()
	return nil
}

func (g *LogGateway) AddReaction(_ context.Context, channel, message snowflake.ID, emoji string) error {
	g.log.Log().Str("op", "add_reaction").Str("channel", channel.String()).Str("message", message.String()).Str("emoji", emoji).Send()
	return nil
}

func (g *LogGateway) SendDirect(_ context.Context, user snowflake.ID, content string) error {
	g.log.Log().Str("op", "send_direct").Str("user", user.String()).Str("content", content).Send()
	return nil
}

func (g *LogGateway) Kick(_ context.Context, guild, user snowflake.ID, reason string) error {
	g.log.Log().Str("op", "kick").Str("guild", guild.String()).Str("user", user.String()).Str("reason", reason).Send()
	return nil
}
