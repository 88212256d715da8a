// Package middleware contains the Gin middleware of the admin API.
//
// This file provides correlation ids, structured access logs, panic
// recovery and the moderator identity extractor. Recommended order:
//
//  1. RequestID()
//  2. Moderator()
//  3. Logger()
//  4. Recovery()
//
// so access logs and panics carry both the request id and the acting
// moderator.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	// ModeratorKey is the Gin context key holding the acting moderator id
	// (decimal snowflake).
	ModeratorKey = "userID"
	// HeaderModeratorID names the staff member an admin write acts for.
	HeaderModeratorID = "X-Moderator-ID"

	maxQueryLogLength = 1024
)

// RequestID reuses an incoming X-Request-ID or mints a UUID, echoes it on
// the response and stores it in the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Moderator parses X-Moderator-ID into the context. Malformed ids are
// ignored here; handlers that need an actor reject the request.
func Moderator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := strings.TrimSpace(c.GetHeader(HeaderModeratorID)); raw != "" {
			if id, err := snowflake.Parse(raw); err == nil && id != 0 {
				c.Set(ModeratorKey, id.String())
			}
		}
		c.Next()
	}
}

// ModeratorID returns the acting moderator stored by Moderator.
func ModeratorID(c *gin.Context) (snowflake.ID, bool) {
	s := c.GetString(ModeratorKey)
	if s == "" {
		return 0, false
	}
	id, err := snowflake.Parse(s)
	return id, err == nil
}

// Logger emits one access log line per request and stores a request-scoped
// logger under "logger". 5xx and handler errors log at error, 4xx at warn.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l := log.With().
			Str("component", "http").
			Str("request_id", c.GetString(requestIDKey)).
			Str("moderator_id", c.GetString(ModeratorKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Logger()
		c.Set("logger", &l)

		c.Next()

		ev := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery turns a panic into a JSON 500 carrying the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global one when
// Logger is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
