package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-assistant/internal/expiry"
	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

// Handlers groups the admin endpoints and the state they read.
type Handlers struct {
	Mutes      *moderation.Mutes
	Moderation *services.ModerationService
	Board      *leaderboard.Controller
	Rules      *services.RuleService
	Stats      *services.StatsService
	// DB is the audit log; infraction listing and idempotent replays
	// need it.
	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// MuteState is the JSON form of a decoded mute value.
type MuteState struct {
	UserID  snowflake.ID `json:"user_id"`
	GuildID snowflake.ID `json:"guild_id"`
	State   string       `json:"state"`
	Until   *time.Time   `json:"until,omitempty"`
	Active  bool         `json:"active"`
}

func muteState(guild, user snowflake.ID, st expiry.State, now time.Time) MuteState {
	out := MuteState{
		UserID:  user,
		GuildID: guild,
		State:   st.Kind.String(),
		Active:  st.ActiveAt(now),
	}
	if st.Kind == expiry.KindActiveUntil {
		u := st.Until
		out.Until = &u
	}
	return out
}

// pathID parses a snowflake path parameter, failing the request when it
// is malformed.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.Parse(c.Param(name))
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a snowflake id")
		return 0, false
	}
	return id, true
}

// queryID parses an optional snowflake query filter into its decimal form.
func queryID(c *gin.Context, name string) (string, bool) {
	raw := c.Query(name)
	if raw == "" {
		return "", true
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a snowflake id")
		return "", false
	}
	return raw, true
}
