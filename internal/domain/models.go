// Package domain defines the shared types of the moderation assistant: the
// composite keys of its persisted tables, the leaderboard entry shape, inbound
// chat events, and the GORM-mapped audit log row.
package domain

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Action names a moderation action recorded in the audit log.
type Action string

const (
	ActionMute     Action = "mute"
	ActionTempMute Action = "tempmute"
	ActionUnmute   Action = "unmute"
	ActionAutoMute Action = "automute"
	ActionKick     Action = "kick"
	ActionTemplate Action = "template"
	ActionExpire   Action = "expire"
)

// Infraction is one append-only audit log row describing a moderation action.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - GuildID / UserID: snowflake ids in decimal form; indexed together for
//     per-member history.
//   - ModeratorID: the acting staff member, or empty for automatic actions.
//   - Action: one of the Action constants.
//   - Reason: free-text reason given by the moderator or the filter.
//   - ExpiresAt: end of a temporary mute, nil otherwise.
//   - CreatedAt: set by GORM; indexed for newest-first listing.
type Infraction struct {
	ID          string     `json:"id"                   gorm:"type:char(36);primaryKey"`
	GuildID     string     `json:"guild_id"             gorm:"type:varchar(32);not null;index:idx_infractions_member,priority:1"`
	UserID      string     `json:"user_id"              gorm:"type:varchar(32);not null;index:idx_infractions_member,priority:2"`
	ModeratorID string     `json:"moderator_id,omitempty" gorm:"type:varchar(32)"`
	Action      Action     `json:"action"               gorm:"type:varchar(16);not null"`
	Reason      string     `json:"reason,omitempty"     gorm:"type:text"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"           gorm:"index"`
}

// TableName returns the database table name for Infraction.
func (Infraction) TableName() string { return "infractions" }

// LeaderboardEntry is one ranked (user, score) pair.
type LeaderboardEntry struct {
	UserID snowflake.ID `json:"user_id"`
	Score  int          `json:"score"`
}

// ReactionEvent is a reaction added to or removed from a message.
type ReactionEvent struct {
	MessageID snowflake.ID `json:"message_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	UserID    snowflake.ID `json:"user_id"`
	Emoji     string       `json:"emoji"`
	Added     bool         `json:"added"`
}
