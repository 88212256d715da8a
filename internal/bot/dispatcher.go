// Package bot turns chat platform events into calls on the services. The
// Dispatcher is the single dispatch point: it consumes one event at a time,
// throttles floods per user, runs the spam and job-template filters, then
// routes prefixed commands and thanks messages.
package bot

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/metrics"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

// Deps are the collaborators the dispatcher drives. Spam and Templates are
// optional.
type Deps struct {
	Gateway    gateway.Gateway
	Rules      *services.RuleService
	Karma      *services.KarmaService
	Stats      *services.StatsService
	Settings   *services.SettingsService
	Moderation *services.ModerationService
	Board      *leaderboard.Controller
	Spam       *moderation.SpamFilter
	Templates  *moderation.TemplateChecker
}

// Options tunes the dispatcher.
type Options struct {
	Prefix string
	// SelfID is the bot's own user id; its messages and reactions are
	// ignored.
	SelfID snowflake.ID
	// ConfirmDeleteAfter is how long moderation confirmations stay up.
	// Zero keeps them.
	ConfirmDeleteAfter time.Duration
	Limiter            *Limiter
	Clock              clockwork.Clock
}

// Dispatcher routes events. Handle is safe to call from one goroutine at a
// time; Run provides that.
type Dispatcher struct {
	Deps
	opts     Options
	clock    clockwork.Clock
	log      zerolog.Logger
	commands map[string]command
}

// New builds a dispatcher.
func New(deps Deps, opts Options) *Dispatcher {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	d := &Dispatcher{
		Deps:  deps,
		opts:  opts,
		clock: opts.Clock,
		log:   log.With().Str("component", "dispatcher").Logger(),
	}
	d.commands = d.commandTable()
	return d
}

// Run handles events until ctx is done or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	d.log.Info().Str("prefix", d.opts.Prefix).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle processes a single event.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	var result string
	switch e := ev.(type) {
	case MessageCreated:
		result = d.onMessage(ctx, e)
	case ReactionChanged:
		result = d.onReaction(ctx, e)
	case MessageDeleted:
		result = "ignored"
		if d.Board != nil && d.Board.CloseMessage(e.MessageID) {
			result = "ok"
		}
	default:
		result = "ignored"
	}
	metrics.BotEvents.WithLabelValues(ev.kind(), result).Inc()
}

func (d *Dispatcher) onMessage(ctx context.Context, m MessageCreated) string {
	if m.AuthorIsBot || (d.opts.SelfID != 0 && m.AuthorID == d.opts.SelfID) {
		return "ignored"
	}
	if d.opts.Limiter != nil && !d.opts.Limiter.Allow(m.AuthorID) {
		return "throttled"
	}

	staff := d.isStaff(m.AuthorRoles)
	if !staff {
		if r := d.checkSpam(ctx, m); r != "" {
			return r
		}
		if r := d.checkTemplate(ctx, m); r != "" {
			return r
		}
	}

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(m.Content)), "thank") {
		return d.onThanks(ctx, m, staff)
	}

	cmd, ok := ParseCommand(d.opts.Prefix, m.Content)
	if !ok {
		return "ignored"
	}
	c, ok := d.commands[cmd.Name]
	if !ok {
		return "ignored"
	}
	if c.staff && !staff {
		d.reply(ctx, m.ChannelID, "You do not have permission to use this command.")
		return "denied"
	}

	if err := c.run(ctx, m, cmd, staff); err != nil {
		d.replyError(ctx, m, cmd, c, err)
		return "error"
	}
	d.record(cmd.Name)
	return "ok"
}

func (d *Dispatcher) checkSpam(ctx context.Context, m MessageCreated) string {
	if d.Spam == nil || d.Moderation == nil {
		return ""
	}
	reason := d.Spam.Inspect(m.Content)
	if reason == moderation.SpamNone {
		return ""
	}
	d.deleteBestEffort(ctx, m.ChannelID, m.ID)
	_, err := d.Moderation.AutoMute(ctx, services.Target{
		GuildID: m.GuildID,
		UserID:  m.AuthorID,
		Reason:  "spam: " + string(reason),
	}, d.Spam.Policy().MuteDuration)
	if err != nil && !errors.Is(err, gateway.ErrCollaboratorUnavailable) {
		d.log.Error().Err(err).Str("user", m.AuthorID.String()).Msg("auto-mute failed")
		return "error"
	}
	d.log.Info().Str("user", m.AuthorID.String()).Str("reason", string(reason)).Msg("auto-muted spammer")
	d.announce(ctx, m.ChannelID, Mention(m.AuthorID)+" has been muted for spamming.")
	return "spam"
}

func (d *Dispatcher) checkTemplate(ctx context.Context, m MessageCreated) string {
	if d.Templates == nil || !d.Templates.Violates(m.ChannelID, m.Content) {
		return ""
	}
	d.deleteBestEffort(ctx, m.ChannelID, m.ID)

	name := m.AuthorName
	if name == "" {
		name = Mention(m.AuthorID)
	}
	dm := "Hi, " + name + ". I've removed the message you sent in <#" + m.ChannelID.String() +
		"> at " + d.clock.Now().UTC().Format("2006-01-02 15:04 UTC") +
		", because you didn't follow the template. Please repost it using one of the pinned templates."
	if err := d.Gateway.SendDirect(ctx, m.AuthorID, dm); err != nil {
		d.log.Warn().Err(err).Str("op", "send_direct").Str("user", m.AuthorID.String()).Msg("template notice not delivered")
	}
	if d.Moderation != nil {
		d.Moderation.RecordTemplateViolation(ctx, services.Target{
			GuildID: m.GuildID,
			UserID:  m.AuthorID,
			Reason:  "job post without template",
		})
	}
	return "template"
}

func (d *Dispatcher) onThanks(ctx context.Context, m MessageCreated, staff bool) string {
	if d.Karma == nil || len(m.Mentions) == 0 {
		return "ignored"
	}
	awarded, err := d.Karma.Thank(ctx, m.AuthorID, m.Mentions, staff)
	switch {
	case errors.Is(err, services.ErrNoThanksTargets):
		return "ignored"
	case err != nil:
		d.replyError(ctx, m, Command{Name: "thanks"}, command{}, err)
		return "error"
	}
	names := make([]string, len(awarded))
	for i, id := range awarded {
		names[i] = Mention(id)
	}
	d.reply(ctx, m.ChannelID, Mention(m.AuthorID)+" gave a karma point to "+strings.Join(names, ", ")+".")
	d.record("thanks")
	return "ok"
}

func (d *Dispatcher) onReaction(ctx context.Context, e ReactionChanged) string {
	if d.Board == nil || (d.opts.SelfID != 0 && e.UserID == d.opts.SelfID) {
		return "ignored"
	}
	view, moved, err := d.Board.HandleReaction(ctx, e.ReactionEvent)
	switch {
	case errors.Is(err, leaderboard.ErrSessionNotFound):
		return "ignored"
	case err != nil:
		d.log.Warn().Err(err).Msg("leaderboard navigation failed")
		return "error"
	case !moved:
		return "ignored"
	}
	if err := d.Gateway.EditMessage(ctx, e.ChannelID, e.MessageID, leaderboard.Render(view)); err != nil {
		d.log.Warn().Err(err).Str("op", "edit_message").Str("message", e.MessageID.String()).Msg("leaderboard edit failed")
		return "error"
	}
	return "ok"
}

// isStaff reports whether any of roles is listed in the staff-role-ids
// setting.
func (d *Dispatcher) isStaff(roles []snowflake.ID) bool {
	if d.Settings == nil || len(roles) == 0 {
		return false
	}
	for _, r := range d.Settings.IDs(services.SettingStaffRoles) {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) record(cmd string) {
	if d.Stats == nil {
		return
	}
	if err := d.Stats.Record(cmd); err != nil {
		d.log.Warn().Err(err).Str("command", cmd).Msg("statistics not recorded")
	}
}

func (d *Dispatcher) reply(ctx context.Context, channel snowflake.ID, text string) snowflake.ID {
	id, err := d.Gateway.SendMessage(ctx, channel, text)
	if err != nil {
		d.log.Warn().Err(err).Str("op", "send_message").Str("channel", channel.String()).Msg("reply failed")
		return 0
	}
	return id
}

// announce posts text and schedules its removal after ConfirmDeleteAfter.
func (d *Dispatcher) announce(ctx context.Context, channel snowflake.ID, text string) {
	id := d.reply(ctx, channel, text)
	if id == 0 || d.opts.ConfirmDeleteAfter <= 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	d.clock.AfterFunc(d.opts.ConfirmDeleteAfter, func() {
		d.deleteBestEffort(bg, channel, id)
	})
}

// confirm removes the invoking command message and announces text.
func (d *Dispatcher) confirm(ctx context.Context, m MessageCreated, text string) {
	d.deleteBestEffort(ctx, m.ChannelID, m.ID)
	d.announce(ctx, m.ChannelID, text)
}

func (d *Dispatcher) deleteBestEffort(ctx context.Context, channel, message snowflake.ID) {
	if message == 0 {
		return
	}
	if err := d.Gateway.DeleteMessage(ctx, channel, message); err != nil {
		d.log.Warn().Err(err).Str("op", "delete_message").Str("message", message.String()).Msg("delete failed")
	}
}
