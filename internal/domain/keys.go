package domain

import (
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tbourn/go-mod-assistant/internal/table"
)

// MuteKey identifies a member of a guild.
type MuteKey struct {
	UserID  snowflake.ID
	GuildID snowflake.ID
}

// String renders the key as "<user>,<guild>", the form stored in mutes.json.
func (k MuteKey) String() string {
	return k.UserID.String() + "," + k.GuildID.String()
}

// ParseMuteKey parses the "<user>,<guild>" form produced by MuteKey.String.
func ParseMuteKey(s string) (MuteKey, error) {
	u, g, ok := strings.Cut(s, ",")
	if !ok {
		return MuteKey{}, fmt.Errorf("mute key %q: missing separator", s)
	}
	uid, err := snowflake.Parse(strings.TrimSpace(u))
	if err != nil {
		return MuteKey{}, fmt.Errorf("mute key %q: user: %w", s, err)
	}
	gid, err := snowflake.Parse(strings.TrimSpace(g))
	if err != nil {
		return MuteKey{}, fmt.Errorf("mute key %q: guild: %w", s, err)
	}
	return MuteKey{UserID: uid, GuildID: gid}, nil
}

// CooldownKey identifies a throttled (user, resource) pair.
type CooldownKey struct {
	UserID   snowflake.ID
	Resource string
}

// String renders the key as "<user>,<resource>".
func (k CooldownKey) String() string {
	return k.UserID.String() + "," + k.Resource
}

// ParseCooldownKey parses the form produced by CooldownKey.String. Only the
// first comma separates, so resources may contain commas themselves.
func ParseCooldownKey(s string) (CooldownKey, error) {
	u, res, ok := strings.Cut(s, ",")
	if !ok || res == "" {
		return CooldownKey{}, fmt.Errorf("cooldown key %q: missing resource", s)
	}
	uid, err := snowflake.Parse(u)
	if err != nil {
		return CooldownKey{}, fmt.Errorf("cooldown key %q: user: %w", s, err)
	}
	return CooldownKey{UserID: uid, Resource: res}, nil
}

var (
	// MuteKeys is the table codec for mutes.json.
	MuteKeys = table.KeyCodec[MuteKey]{
		Encode: MuteKey.String,
		Decode: ParseMuteKey,
	}

	// CooldownKeys is the table codec for cooldowns.json.
	CooldownKeys = table.KeyCodec[CooldownKey]{
		Encode: CooldownKey.String,
		Decode: ParseCooldownKey,
	}
)
