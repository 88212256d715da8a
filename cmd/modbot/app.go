package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-assistant/internal/bot"
	"github.com/tbourn/go-mod-assistant/internal/config"
	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/http/handlers"
	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/repo"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

// app is the fully wired assistant.
type app struct {
	cfg   config.Config
	clock clockwork.Clock

	platform *gateway.LogGateway
	gw       *gateway.Guarded
	db       *gorm.DB

	mutes      *moderation.Mutes
	settings   *services.SettingsService
	rules      *services.RuleService
	karma      *services.KarmaService
	stats      *services.StatsService
	moderation *services.ModerationService
	board      *leaderboard.Controller
	sweeper    *moderation.Sweeper
	dispatcher *bot.Dispatcher
}

// newApp opens every table and the audit log and wires the services.
// Outbound platform calls are written to out.
func newApp(cfg config.Config, out io.Writer, clock clockwork.Clock) (*app, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &app{cfg: cfg, clock: clock}

	mt, err := moderation.OpenMuteTable(cfg.TablePath("mutes"))
	if err != nil {
		return nil, err
	}
	ct, err := moderation.OpenCooldownTable(cfg.TablePath("cooldowns"))
	if err != nil {
		return nil, err
	}
	st, err := services.OpenSettingsTable(cfg.TablePath("settings"))
	if err != nil {
		return nil, err
	}
	rt, err := services.OpenRuleTable(cfg.TablePath("rules"))
	if err != nil {
		return nil, err
	}
	kt, err := services.OpenKarmaTable(cfg.TablePath("karma"))
	if err != nil {
		return nil, err
	}
	stt, err := services.OpenStatsTable(cfg.TablePath("statistics"))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("audit log dir: %w", err)
	}
	if a.db, err = repo.OpenSQLite(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	if err := repo.AutoMigrate(a.db); err != nil {
		return nil, fmt.Errorf("migrate audit log: %w", err)
	}

	policy, err := config.LoadModerationPolicy(cfg.ModerationFile)
	if err != nil {
		return nil, err
	}

	a.platform = gateway.NewLogGateway(out)
	a.gw = gateway.NewGuarded(a.platform, gateway.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	})

	cooldowns := moderation.NewCooldowns(ct, clock)
	a.mutes = moderation.NewMutes(mt, clock)
	a.settings = &services.SettingsService{Table: st}
	a.rules = &services.RuleService{
		Rules: rt, Cooldowns: cooldowns, Settings: a.settings, Gateway: a.gw,
		DefaultCooldown: cfg.Bot.RuleCooldown,
	}
	a.karma = &services.KarmaService{
		Karma: kt, Cooldowns: cooldowns, Settings: a.settings,
		DefaultCooldown: cfg.Bot.ThanksCooldown,
	}
	a.stats = &services.StatsService{Table: stt}
	a.moderation = &services.ModerationService{
		DB: a.db, Mutes: a.mutes, Gateway: a.gw, MutedRole: cfg.Bot.MutedRole,
	}
	a.board = leaderboard.NewController(a.karma, leaderboard.Options{
		PageSize:   cfg.Bot.LeaderboardPageSize,
		SessionTTL: cfg.Bot.LeaderboardSessionTTL,
		Clock:      clock,
	})

	a.sweeper = moderation.NewSweeper(a.mutes, a.gw, cfg.Bot.MutedRole, cfg.Bot.MuteSweepInterval, clock)
	a.sweeper.OnRevoked = a.moderation.RecordExpiry

	templates, err := moderation.NewTemplateChecker(policy.JobTemplates, func() []snowflake.ID {
		return a.settings.IDs(services.SettingJobChannels)
	})
	if err != nil {
		return nil, err
	}
	a.dispatcher = bot.New(bot.Deps{
		Gateway:    a.gw,
		Rules:      a.rules,
		Karma:      a.karma,
		Stats:      a.stats,
		Settings:   a.settings,
		Moderation: a.moderation,
		Board:      a.board,
		Spam:       moderation.NewSpamFilter(policy.Spam),
		Templates:  templates,
	}, bot.Options{
		Prefix:             cfg.Bot.CommandPrefix,
		ConfirmDeleteAfter: cfg.Bot.ConfirmDeleteAfter,
		Limiter:            bot.NewLimiter(cfg.Bot.EventRateRPS, cfg.Bot.EventRateBurst, clock),
		Clock:              clock,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("db", cfg.DBPath).
		Int("rules", rt.Len()).
		Int("karma_users", kt.Len()).
		Msg("assistant wired")
	return a, nil
}

func (a *app) handlers() *handlers.Handlers {
	return &handlers.Handlers{
		Mutes:          a.mutes,
		Moderation:     a.moderation,
		Board:          a.board,
		Rules:          a.rules,
		Stats:          a.stats,
		DB:             a.db,
		IdempotencyTTL: a.cfg.IdempotencyTTL,
	}
}

// purgeIdempotency drops expired idempotency records every interval until
// ctx is done.
func (a *app) purgeIdempotency(ctx context.Context, interval time.Duration) {
	t := a.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			n, err := repo.PurgeExpiredIdempotency(ctx, a.db, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency records removed")
			}
		}
	}
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
