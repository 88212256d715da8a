// Mute endpoints:
//   - GET    /guilds/{guild_id}/mutes                  (active mutes)
//   - GET    /guilds/{guild_id}/users/{user_id}/mute   (stored state)
//   - POST   /guilds/{guild_id}/users/{user_id}/mute   (mute, idempotent)
//   - DELETE /guilds/{guild_id}/users/{user_id}/mute   (unmute)
//
// Writes act on behalf of the moderator named by X-Moderator-ID and go
// through the same ModerationService as chat commands, so they are audited
// and assign or revoke the muted role.
package handlers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/http/middleware"
	"github.com/tbourn/go-mod-assistant/internal/repo"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

// MuteRequest is the body of POST .../mute. A zero duration mutes until an
// explicit unmute.
type MuteRequest struct {
	DurationSeconds int64  `json:"duration_seconds"`
	Reason          string `json:"reason" binding:"max=512"`
}

// MuteResponse reports the state after a write and its audit row.
type MuteResponse struct {
	Mute       MuteState          `json:"mute"`
	Infraction *domain.Infraction `json:"infraction,omitempty"`
	// Warning is set when the state was saved but the chat platform
	// rejected the role change.
	Warning string `json:"warning,omitempty"`
}

// ListMutesResponse lists the currently muted members of a guild.
type ListMutesResponse struct {
	Mutes []MuteState `json:"mutes"`
}

// ListMutes godoc
// @ID          listMutes
// @Summary     List active mutes
// @Description Returns the members of a guild who are muted right now.
// @Tags        Mutes
// @Produce     json
//
// @Param       guild_id  path  string  true  "Guild snowflake"  example(81384788765712384)
//
// @Success     200  {object} handlers.ListMutesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /guilds/{guild_id}/mutes [get]
func (h *Handlers) ListMutes(c *gin.Context) {
	guild, okID := pathID(c, "guild_id")
	if !okID {
		return
	}
	now := h.Mutes.Now()
	out := ListMutesResponse{Mutes: []MuteState{}}
	for _, m := range h.Mutes.Active(guild) {
		out.Mutes = append(out.Mutes, muteState(guild, m.UserID, m.State, now))
	}
	ok(c, http.StatusOK, out)
}

// GetMute godoc
// @ID          getMute
// @Summary     Get a member's mute state
// @Description Returns the stored state of one member. Members never muted report "inactive".
// @Tags        Mutes
// @Produce     json
//
// @Param       guild_id  path  string  true  "Guild snowflake"  example(81384788765712384)
// @Param       user_id   path  string  true  "User snowflake"   example(80351110224678912)
//
// @Success     200  {object} handlers.MuteState
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /guilds/{guild_id}/users/{user_id}/mute [get]
func (h *Handlers) GetMute(c *gin.Context) {
	guild, okG := pathID(c, "guild_id")
	if !okG {
		return
	}
	user, okU := pathID(c, "user_id")
	if !okU {
		return
	}
	ok(c, http.StatusOK, muteState(guild, user, h.Mutes.State(user, guild), h.Mutes.Now()))
}

// maxDurationSeconds is the longest mute a time.Duration can hold.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// PostMute godoc
// @ID          postMute
// @Summary     Mute a member
// @Description Mutes a member for duration_seconds, or until unmuted when it is 0. With an Idempotency-Key, a retry by the same moderator for the same member replays the first result.
// @Tags        Mutes
// @Accept      json
// @Produce     json
//
// @Param       guild_id         path    string  true  "Guild snowflake"            example(81384788765712384)
// @Param       user_id          path    string  true  "User snowflake"             example(80351110224678912)
// @Param       X-Moderator-ID   header  string  true  "Acting moderator snowflake"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(raid-2024-01-01)
// @Param       body             body    handlers.MuteRequest  true  "Mute payload"
//
// @Success     201  {object} handlers.MuteResponse
// @Header      201  {string} Idempotency-Replayed "true when the response is a replay"
// @Success     202  {object} handlers.MuteResponse "Saved, but the chat platform call failed"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     429  {object} handlers.ErrorResponse "Too many requests"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /guilds/{guild_id}/users/{user_id}/mute [post]
func (h *Handlers) PostMute(c *gin.Context) {
	ctx := c.Request.Context()
	t, okT := h.target(c)
	if !okT {
		return
	}

	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	if req.DurationSeconds < 0 {
		fail(c, http.StatusBadRequest, ErrCodeInvalidDuration, "duration_seconds must not be negative")
		return
	}
	if req.DurationSeconds > maxDurationSeconds {
		fail(c, http.StatusBadRequest, ErrCodeInvalidDuration, "duration_seconds is too large")
		return
	}
	t.Reason = req.Reason

	key, _ := middleware.GetIdempotencyKey(c)
	scope := middleware.IdempotencyScope(c)
	if key != "" && h.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.DB, t.ModeratorID.String(), scope, key, time.Now().UTC()); err == nil {
			resp := MuteResponse{Mute: muteState(t.GuildID, t.UserID, h.Mutes.State(t.UserID, t.GuildID), h.Mutes.Now())}
			if in, err := repo.GetInfraction(ctx, h.DB, rec.InfractionID); err == nil {
				resp.Infraction = in
			}
			c.Header("Idempotency-Replayed", "true")
			ok(c, rec.Status, resp)
			return
		}
	}

	var (
		in  *domain.Infraction
		err error
	)
	if req.DurationSeconds == 0 {
		in, err = h.Moderation.Mute(ctx, t)
	} else {
		in, err = h.Moderation.TempMute(ctx, t, time.Duration(req.DurationSeconds)*time.Second)
	}
	resp, status, done := h.respond(c, t, in, err, http.StatusCreated)
	if done {
		return
	}

	if key != "" && h.DB != nil && in != nil && in.ID != "" {
		if _, err := repo.CreateIdempotency(ctx, h.DB, t.ModeratorID.String(), scope, key, in.ID, status, h.ttl()); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("idempotency record not stored")
		}
	}
	ok(c, status, resp)
}

// DeleteMute godoc
// @ID          deleteMute
// @Summary     Unmute a member
// @Description Lifts a member's mute and revokes the muted role.
// @Tags        Mutes
// @Produce     json
//
// @Param       guild_id        path    string  true  "Guild snowflake"            example(81384788765712384)
// @Param       user_id         path    string  true  "User snowflake"             example(80351110224678912)
// @Param       X-Moderator-ID  header  string  true  "Acting moderator snowflake"
// @Param       reason          query   string  false "Audit reason"
//
// @Success     200  {object} handlers.MuteResponse
// @Success     202  {object} handlers.MuteResponse "Saved, but the chat platform call failed"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /guilds/{guild_id}/users/{user_id}/mute [delete]
func (h *Handlers) DeleteMute(c *gin.Context) {
	t, okT := h.target(c)
	if !okT {
		return
	}
	t.Reason = c.Query("reason")
	in, err := h.Moderation.Unmute(c.Request.Context(), t)
	resp, status, done := h.respond(c, t, in, err, http.StatusOK)
	if done {
		return
	}
	ok(c, status, resp)
}

// target reads the member from the path and the actor from the request.
func (h *Handlers) target(c *gin.Context) (services.Target, bool) {
	guild, okG := pathID(c, "guild_id")
	if !okG {
		return services.Target{}, false
	}
	user, okU := pathID(c, "user_id")
	if !okU {
		return services.Target{}, false
	}
	actor, found := middleware.ModeratorID(c)
	if !found {
		fail(c, http.StatusBadRequest, ErrCodeModeratorRequired, middleware.HeaderModeratorID+" header is required")
		return services.Target{}, false
	}
	return services.Target{GuildID: guild, UserID: user, ModeratorID: actor}, true
}

// respond maps a moderation result onto a response. A platform failure
// still reports the saved state, with 202 and a warning. done is true when
// the request has already been failed.
func (h *Handlers) respond(c *gin.Context, t services.Target, in *domain.Infraction, err error, success int) (MuteResponse, int, bool) {
	resp := MuteResponse{Infraction: in}
	status := success
	switch {
	case errors.Is(err, gateway.ErrCollaboratorUnavailable):
		status = http.StatusAccepted
		resp.Warning = "state saved; the chat platform did not apply the role change"
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeActionFailed, err.Error())
		return resp, 0, true
	}
	resp.Mute = muteState(t.GuildID, t.UserID, h.Mutes.State(t.UserID, t.GuildID), h.Mutes.Now())
	return resp, status, false
}

func (h *Handlers) ttl() time.Duration {
	if h.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return h.IdempotencyTTL
}
