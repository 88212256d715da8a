package services

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/table"
)

// CooldownThanks is the cooldown resource for giving karma.
const CooldownThanks = "thanks"

// KarmaTable maps users to karma points.
type KarmaTable = table.Table[snowflake.ID, int]

// OpenKarmaTable loads karma.json (or any path).
func OpenKarmaTable(path string) (*KarmaTable, error) {
	return table.Open[snowflake.ID, int](path, table.SnowflakeKeys)
}

// KarmaService awards karma for thanks messages and ranks users by it.
type KarmaService struct {
	Karma     *KarmaTable
	Cooldowns *moderation.Cooldowns
	Settings  *SettingsService

	// DefaultCooldown applies when the thanks-user setting is absent.
	DefaultCooldown time.Duration
}

// Thank gives one point to every distinct target other than giver. The
// giver is throttled per cooldown unless staff; a throttled call fails with
// a *CooldownError and awards nothing.
func (s *KarmaService) Thank(ctx context.Context, giver snowflake.ID, targets []snowflake.ID, staff bool) ([]snowflake.ID, error) {
	_, span := otel.Tracer("services/KarmaService").Start(ctx, "Thank")
	span.SetAttributes(attribute.Int("targets", len(targets)))
	defer span.End()

	var awarded []snowflake.ID
	seen := make(map[snowflake.ID]bool, len(targets))
	for _, t := range targets {
		if t == giver || t == 0 || seen[t] {
			continue
		}
		seen[t] = true
		awarded = append(awarded, t)
	}
	if len(awarded) == 0 {
		return nil, ErrNoThanksTargets
	}

	cd := s.DefaultCooldown
	if s.Settings != nil {
		cd = s.Settings.Duration(SettingThanksCooldown, s.DefaultCooldown)
	}
	allowed, remaining, err := s.Cooldowns.CheckAndConsume(giver, CooldownThanks, cd, staff)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &CooldownError{Resource: CooldownThanks, Remaining: remaining}
	}

	for i, t := range awarded {
		if _, err := s.Karma.Update(t, func(cur int, _ bool) (int, bool) { return cur + 1, true }); err != nil {
			return awarded[:i], err
		}
	}
	return awarded, nil
}

// Points returns the karma of user.
func (s *KarmaService) Points(user snowflake.ID) int {
	v, _ := s.Karma.Lookup(user)
	return v
}

// Ranking returns every (user, points) pair in no particular order.
func (s *KarmaService) Ranking() []domain.LeaderboardEntry {
	snap := s.Karma.Snapshot()
	out := make([]domain.LeaderboardEntry, 0, len(snap))
	for id, pts := range snap {
		out = append(out, domain.LeaderboardEntry{UserID: id, Score: pts})
	}
	return out
}
