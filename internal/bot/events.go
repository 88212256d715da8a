package bot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tbourn/go-mod-assistant/internal/domain"
)

// Event is anything the chat platform delivers to the dispatcher.
type Event interface{ kind() string }

// MessageCreated is a new message in a guild channel.
type MessageCreated struct {
	ID          snowflake.ID   `json:"id"`
	GuildID     snowflake.ID   `json:"guild_id"`
	ChannelID   snowflake.ID   `json:"channel_id"`
	AuthorID    snowflake.ID   `json:"author_id"`
	AuthorName  string         `json:"author_name,omitempty"`
	AuthorRoles []snowflake.ID `json:"author_roles,omitempty"`
	AuthorIsBot bool           `json:"author_is_bot,omitempty"`
	Content     string         `json:"content"`
	// Mentions lists mentioned users. When a feed leaves it empty, the
	// mentions in Content are used.
	Mentions []snowflake.ID `json:"mentions,omitempty"`
}

// ReactionChanged is a reaction added to or removed from a message.
type ReactionChanged struct {
	domain.ReactionEvent
}

// MessageDeleted reports a deleted message.
type MessageDeleted struct {
	ChannelID snowflake.ID `json:"channel_id"`
	MessageID snowflake.ID `json:"message_id"`
}

func (MessageCreated) kind() string  { return "message" }
func (ReactionChanged) kind() string { return "reaction" }
func (MessageDeleted) kind() string  { return "delete" }

var userMentionRe = regexp.MustCompile(`<@!?(\d+)>`)

// ParseMentions returns the distinct users mentioned in content, in order.
func ParseMentions(content string) []snowflake.ID {
	var out []snowflake.ID
	seen := map[snowflake.ID]bool{}
	for _, m := range userMentionRe.FindAllStringSubmatch(content, -1) {
		id, err := snowflake.Parse(m[1])
		if err != nil || id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// envelope is one line of an event feed:
//
//	{"type":"message","message":{...}}
//	{"type":"reaction","reaction":{...}}
//	{"type":"delete","delete":{...}}
//
// Snowflakes are JSON strings.
type envelope struct {
	Type     string                `json:"type"`
	Message  *MessageCreated       `json:"message,omitempty"`
	Reaction *domain.ReactionEvent `json:"reaction,omitempty"`
	Delete   *MessageDeleted       `json:"delete,omitempty"`
}

// ErrBadEvent is returned for feed lines that do not describe an event.
var ErrBadEvent = errors.New("bad event")

// DecodeEvent parses one feed line.
func DecodeEvent(line []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadEvent, err)
	}
	switch {
	case env.Type == "message" && env.Message != nil:
		m := *env.Message
		if len(m.Mentions) == 0 {
			m.Mentions = ParseMentions(m.Content)
		}
		return m, nil
	case env.Type == "reaction" && env.Reaction != nil:
		return ReactionChanged{*env.Reaction}, nil
	case env.Type == "delete" && env.Delete != nil:
		return *env.Delete, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrBadEvent, env.Type)
}

// ReadFeed decodes newline-delimited events from r into out until r is
// exhausted or ctx is done. Undecodable lines are passed to onBad and
// skipped. out is not closed.
func ReadFeed(ctx context.Context, r io.Reader, out chan<- Event, onBad func(line int, err error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		if len(sc.Bytes()) == 0 {
			continue
		}
		ev, err := DecodeEvent(sc.Bytes())
		if err != nil {
			if onBad != nil {
				onBad(n, err)
			}
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}
