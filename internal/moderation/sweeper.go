package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/expiry"
	"github.com/tbourn/go-mod-assistant/internal/metrics"
)

// DefaultSweepInterval is how often Run reconciles expired mutes.
const DefaultSweepInterval = time.Minute

// RoleRevoker removes a role from a guild member.
type RoleRevoker interface {
	RevokeRole(ctx context.Context, guild, user snowflake.ID, role string) error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Revoked int
	Failed  int
	Pending int
}

// Sweeper revokes the muted role once for every timed mute that has run out.
//
// A record is due when its expiry t satisfies last < t <= now, where last is
// the instant of the previous sweep (zero before the first one, so mutes that
// lapsed while the process was down are picked up). Revocations that fail are
// kept pending and retried on later sweeps for as long as the record is still
// an expired timed mute.
type Sweeper struct {
	mutes    *Mutes
	revoker  RoleRevoker
	role     string
	interval time.Duration
	clock    clockwork.Clock

	// OnRevoked, when set, is called after a successful revocation.
	OnRevoked func(ctx context.Context, key domain.MuteKey, until time.Time)

	mu      sync.Mutex
	last    time.Time
	pending map[domain.MuteKey]struct{}
}

// NewSweeper builds a sweeper for mutes that revokes role through r.
// A non-positive interval uses DefaultSweepInterval.
func NewSweeper(mutes *Mutes, r RoleRevoker, role string, interval time.Duration, clock clockwork.Clock) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		mutes:    mutes,
		revoker:  r,
		role:     role,
		interval: interval,
		clock:    clock,
		pending:  make(map[domain.MuteKey]struct{}),
	}
}

// Sweep runs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var res SweepResult
	seen := make(map[domain.MuteKey]struct{}, len(s.pending))

	for key, raw := range s.mutes.snapshot() {
		st := expiry.Decode(raw)
		if st.Kind != expiry.KindActiveUntil || st.Until.After(now) {
			continue
		}
		_, retry := s.pending[key]
		if !retry && !st.Until.After(s.last) {
			continue
		}
		var err error
		current := s.mutes.expiredAs(key, raw, func() {
			err = s.revoker.RevokeRole(ctx, key.GuildID, key.UserID, s.role)
		})
		if !current {
			// Re-muted or unmuted since the snapshot.
			continue
		}
		seen[key] = struct{}{}

		if err != nil {
			res.Failed++
			s.pending[key] = struct{}{}
			metrics.SweepRevocations.WithLabelValues("error").Inc()
			log.Warn().Err(err).
				Str("op", "revoke_role").
				Str("guild", key.GuildID.String()).
				Str("user", key.UserID.String()).
				Msg("mute sweep revocation failed")
			continue
		}
		res.Revoked++
		delete(s.pending, key)
		metrics.SweepRevocations.WithLabelValues("ok").Inc()
		if s.OnRevoked != nil {
			s.OnRevoked(ctx, key, st.Until)
		}
	}

	// Records that were re-muted, unmuted or lifted since failing no longer
	// need a revocation from the sweep.
	for key := range s.pending {
		if _, ok := seen[key]; !ok {
			delete(s.pending, key)
		}
	}

	s.last = now
	res.Pending = len(s.pending)
	if res.Revoked > 0 || res.Failed > 0 {
		log.Info().Int("revoked", res.Revoked).Int("failed", res.Failed).Msg("mute sweep")
	}
	return res
}

// Run sweeps immediately and then once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := s.clock.NewTicker(s.interval)
	defer t.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			s.Sweep(ctx)
		}
	}
}
