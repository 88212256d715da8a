// Package httpapi serves the admin API: read access to mutes, rankings,
// rules, usage statistics and the audit log, plus idempotent mute writes.
//
// Middleware order:
//  1. otelgin tracing
//  2. RequestID, Moderator, Logger, Recovery
//  3. body limit, Prometheus metrics (and /metrics)
//  4. gzip
//  5. idempotency validation, then rate limiting (replays bypass it)
//  6. CORS and security headers
//  7. admin token on the API group
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-assistant/internal/config"
	"github.com/tbourn/go-mod-assistant/internal/http/handlers"
	"github.com/tbourn/go-mod-assistant/internal/http/middleware"
	"github.com/tbourn/go-mod-assistant/internal/repo"
)

const maxBodyBytes = 64 << 10

// RegisterRoutes installs middleware and mounts the API under
// cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Moderator(), middleware.Logger(), middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idempotencyLookup(h.DB)))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByModeratorOrIP(), nil)
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.AdminAuth(cfg.Security.AdminToken))
	{
		api.GET("/guilds/:guild_id/mutes", h.ListMutes)
		api.GET("/guilds/:guild_id/users/:user_id/mute", h.GetMute)
		api.POST("/guilds/:guild_id/users/:user_id/mute", h.PostMute)
		api.DELETE("/guilds/:guild_id/users/:user_id/mute", h.DeleteMute)

		api.GET("/leaderboard", h.Leaderboard)
		api.GET("/rules", h.ListRules)
		api.GET("/stats", h.ListStats)
		api.GET("/infractions", h.ListInfractions)
	}
}

func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, actor, scope, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, actor, scope, key, now)
		return err == nil, err
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderModeratorID, middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Idempotency-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
