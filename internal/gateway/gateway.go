// Package gateway defines the chat platform calls the assistant makes and
// the wrappers around them: a circuit breaker that turns every failure into
// ErrCollaboratorUnavailable, and a logging implementation used when no live
// connection is configured.
//
// Gateway calls always happen after the state they reflect has been
// persisted. A failed call is reported to the caller and never undoes that
// state.
package gateway

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"
)

// ErrCollaboratorUnavailable wraps every failed gateway call.
var ErrCollaboratorUnavailable = errors.New("chat gateway unavailable")

// Gateway is the set of chat platform operations the assistant uses.
type Gateway interface {
	AssignRole(ctx context.Context, guild, user snowflake.ID, role string) error
	RevokeRole(ctx context.Context, guild, user snowflake.ID, role string) error
	SendMessage(ctx context.Context, channel snowflake.ID, content string) (snowflake.ID, error)
	EditMessage(ctx context.Context, channel, message snowflake.ID, content string) error
	DeleteMessage(ctx context.Context, channel, message snowflake.ID) error
	AddReaction(ctx context.Context, channel, message snowflake.ID, emoji string) error
	SendDirect(ctx context.Context, user snowflake.ID, content string) error
	Kick(ctx context.Context, guild, user snowflake.ID, reason string) error
}
