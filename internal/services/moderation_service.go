// Package services – ModerationService
//
// This file implements the moderation actions: temporary and permanent
// mutes, unmutes, kicks and automatic mutes from the spam filter.
//
// Every action follows the same order: the mute state is persisted first,
// then the action is appended to the audit log, then the chat platform is
// called. A platform failure is logged and returned wrapped in
// gateway.ErrCollaboratorUnavailable, but the persisted state stands.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/repo"
)

// DefaultMutedRole is the role assigned to muted members.
const DefaultMutedRole = "Muted"

// Target identifies the member acted on and who acted.
type Target struct {
	GuildID     snowflake.ID
	UserID      snowflake.ID
	ModeratorID snowflake.ID // zero for automatic actions
	Reason      string
}

// ModerationService applies moderation actions.
type ModerationService struct {
	// DB is the audit log handle. A nil DB disables auditing.
	DB        *gorm.DB
	Mutes     *moderation.Mutes
	Gateway   gateway.Gateway
	MutedRole string
}

func (s *ModerationService) role() string {
	if s.MutedRole == "" {
		return DefaultMutedRole
	}
	return s.MutedRole
}

func (s *ModerationService) start(ctx context.Context, name string, t Target) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("services/ModerationService").Start(ctx, name,
		trace.WithAttributes(
			attribute.String("guild.id", t.GuildID.String()),
			attribute.String("user.id", t.UserID.String()),
		))
	return ctx, span
}

// TempMute mutes the member for d and assigns the muted role.
func (s *ModerationService) TempMute(ctx context.Context, t Target, d time.Duration) (*domain.Infraction, error) {
	return s.muteFor(ctx, "TempMute", domain.ActionTempMute, t, d)
}

// AutoMute is TempMute on behalf of the spam filter.
func (s *ModerationService) AutoMute(ctx context.Context, t Target, d time.Duration) (*domain.Infraction, error) {
	t.ModeratorID = 0
	return s.muteFor(ctx, "AutoMute", domain.ActionAutoMute, t, d)
}

func (s *ModerationService) muteFor(ctx context.Context, span string, action domain.Action, t Target, d time.Duration) (*domain.Infraction, error) {
	ctx, sp := s.start(ctx, span, t)
	defer sp.End()

	until, err := s.Mutes.MuteFor(t.UserID, t.GuildID, d)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "persist")
		return nil, err
	}
	in := s.audit(ctx, action, t, &until)
	return in, s.call(ctx, sp, "assign_role", t, func() error {
		return s.Gateway.AssignRole(ctx, t.GuildID, t.UserID, s.role())
	})
}

// Mute mutes the member until an explicit unmute.
func (s *ModerationService) Mute(ctx context.Context, t Target) (*domain.Infraction, error) {
	ctx, sp := s.start(ctx, "Mute", t)
	defer sp.End()

	if err := s.Mutes.MutePermanently(t.UserID, t.GuildID); err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "persist")
		return nil, err
	}
	in := s.audit(ctx, domain.ActionMute, t, nil)
	return in, s.call(ctx, sp, "assign_role", t, func() error {
		return s.Gateway.AssignRole(ctx, t.GuildID, t.UserID, s.role())
	})
}

// Unmute lifts any mute and revokes the muted role. The role is revoked
// even when the stored state had already lapsed, which covers a revocation
// the sweep could not complete.
func (s *ModerationService) Unmute(ctx context.Context, t Target) (*domain.Infraction, error) {
	ctx, sp := s.start(ctx, "Unmute", t)
	defer sp.End()

	if _, err := s.Mutes.Unmute(t.UserID, t.GuildID); err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "persist")
		return nil, err
	}
	in := s.audit(ctx, domain.ActionUnmute, t, nil)
	return in, s.call(ctx, sp, "revoke_role", t, func() error {
		return s.Gateway.RevokeRole(ctx, t.GuildID, t.UserID, s.role())
	})
}

// Kick removes the member from the guild. Nothing is persisted before the
// call, so the audit row is only written once the kick went through.
func (s *ModerationService) Kick(ctx context.Context, t Target) (*domain.Infraction, error) {
	ctx, sp := s.start(ctx, "Kick", t)
	defer sp.End()

	if err := s.call(ctx, sp, "kick", t, func() error {
		return s.Gateway.Kick(ctx, t.GuildID, t.UserID, t.Reason)
	}); err != nil {
		return nil, err
	}
	return s.audit(ctx, domain.ActionKick, t, nil), nil
}

// RecordExpiry audits a timed mute that the sweep reconciled. It matches
// moderation.Sweeper.OnRevoked.
func (s *ModerationService) RecordExpiry(ctx context.Context, key domain.MuteKey, until time.Time) {
	s.audit(ctx, domain.ActionExpire, Target{GuildID: key.GuildID, UserID: key.UserID, Reason: "mute expired"}, &until)
}

// RecordTemplateViolation audits a removed job post.
func (s *ModerationService) RecordTemplateViolation(ctx context.Context, t Target) {
	s.audit(ctx, domain.ActionTemplate, t, nil)
}

// audit appends an infraction. Failures are logged: the audit log never
// blocks a moderation action.
func (s *ModerationService) audit(ctx context.Context, action domain.Action, t Target, expires *time.Time) *domain.Infraction {
	in := &domain.Infraction{
		GuildID: t.GuildID.String(),
		UserID:  t.UserID.String(),
		Action:  action,
		Reason:  t.Reason,
	}
	if t.ModeratorID != 0 {
		in.ModeratorID = t.ModeratorID.String()
	}
	if expires != nil {
		e := expires.UTC()
		in.ExpiresAt = &e
	}
	if s.DB == nil {
		return in
	}
	if err := repo.CreateInfraction(ctx, s.DB, in); err != nil {
		log.Error().Err(err).Str("action", string(action)).Str("guild", in.GuildID).Str("user", in.UserID).Msg("audit write failed")
	}
	return in
}

// call runs a gateway operation and logs its failure.
func (s *ModerationService) call(_ context.Context, sp trace.Span, op string, t Target, fn func() error) error {
	if s.Gateway == nil {
		return nil
	}
	if err := fn(); err != nil {
		if !errors.Is(err, gateway.ErrCollaboratorUnavailable) {
			err = fmt.Errorf("%w: %s: %w", gateway.ErrCollaboratorUnavailable, op, err)
		}
		sp.RecordError(err)
		sp.SetStatus(codes.Error, op)
		log.Warn().Err(err).
			Str("op", op).
			Str("guild", t.GuildID.String()).
			Str("user", t.UserID.String()).
			Msg("gateway call failed")
		return err
	}
	return nil
}
