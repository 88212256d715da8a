package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/tbourn/go-mod-assistant/internal/metrics"
)

// BreakerSettings tunes the circuit breaker of a Guarded gateway.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe
	// through.
	OpenTimeout time.Duration
}

// Guarded wraps a Gateway with a circuit breaker. Every error it returns,
// including the breaker's own open-state rejection, wraps
// ErrCollaboratorUnavailable.
type Guarded struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

var _ Gateway = (*Guarded)(nil)

// NewGuarded wraps next.
func NewGuarded(next Gateway, s BreakerSettings) *Guarded {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return &Guarded{next: next, cb: cb}
}

// State returns the breaker state.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func (g *Guarded) do(op string, fn func() (any, error)) (any, error) {
	v, err := g.cb.Execute(fn)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues(op).Inc()
		return v, fmt.Errorf("%w: %s: %w", ErrCollaboratorUnavailable, op, err)
	}
	return v, nil
}

func (g *Guarded) AssignRole(ctx context.Context, guild, user snowflake.ID, role string) error {
	_, err := g.do("assign_role", func() (any, error) {
		return nil, g.next.AssignRole(ctx, guild, user, role)
	})
	return err
}

func (g *Guarded) RevokeRole(ctx context.Context, guild, user snowflake.ID, role string) error {
	_, err := g.do("revoke_role", func() (any, error) {
		return nil, g.next.RevokeRole(ctx, guild, user, role)
	})
	return err
}

func (g *Guarded) SendMessage(ctx context.Context, channel snowflake.ID, content string) (snowflake.ID, error) {
	v, err := g.do("send_message", func() (any, error) {
		return g.next.SendMessage(ctx, channel, content)
	})
	if err != nil {
		return 0, err
	}
	id, _ := v.(snowflake.ID)
	return id, nil
}

func (g *Guarded) EditMessage(ctx context.Context, channel, message snowflake.ID, content string) error {
	_, err := g.do("edit_message", func() (any, error) {
		return nil, g.next.EditMessage(ctx, channel, message, content)
	})
	return err
}

func (g *Guarded) DeleteMessage(ctx context.Context, channel, message snowflake.ID) error {
	_, err := g.do("delete_message", func() (any, error) {
		return nil, g.next.DeleteMessage(ctx, channel, message)
	})
	return err
}

func (g *Guarded) AddReaction(ctx context.Context, channel, message snowflake.ID, emoji string) error {
	_, err := g.do("add_reaction", func() (any, error) {
		return nil, g.next.AddReaction(ctx, channel, message, emoji)
	})
	return err
}

func (g *Guarded) SendDirect(ctx context.Context, user snowflake.ID, content string) error {
	_, err := g.do("send_direct", func() (any, error) {
		return nil, g.next.SendDirect(ctx, user, content)
	})
	return err
}

func (g *Guarded) Kick(ctx context.Context, guild, user snowflake.ID, reason string) error {
	_, err := g.do("kick", func() (any, error) {
		return nil, g.next.Kick(ctx, guild, user, reason)
	})
	return err
}
