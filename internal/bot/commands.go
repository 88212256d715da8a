package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

// errUsage makes the dispatcher answer with the command's usage line.
var errUsage = errors.New("bad usage")

type command struct {
	staff bool
	usage string
	run   func(ctx context.Context, m MessageCreated, c Command, staff bool) error
}

func (d *Dispatcher) commandTable() map[string]command {
	return map[string]command{
		"help":        {usage: "help", run: d.cmdHelp},
		"rule":        {usage: "rule <id>", run: d.cmdRule},
		"allrules":    {staff: true, usage: "allrules", run: d.cmdAllRules},
		"addrule":     {staff: true, usage: "addrule <id> <text>", run: d.cmdAddRule},
		"setrule":     {staff: true, usage: "setrule <id> <text>", run: d.cmdSetRule},
		"removerule":  {staff: true, usage: "removerule <id>", run: d.cmdRemoveRule},
		"mute":        {staff: true, usage: "mute <user> [reason]", run: d.cmdMute},
		"tempmute":    {staff: true, usage: "tempmute <user> <hours> [reason]", run: d.cmdTempMute},
		"unmute":      {staff: true, usage: "unmute <user>", run: d.cmdUnmute},
		"kick":        {staff: true, usage: "kick <user> [reason]", run: d.cmdKick},
		"leaderboard": {usage: "leaderboard", run: d.cmdLeaderboard},
		"karma":       {usage: "karma [user]", run: d.cmdKarma},
		"stats":       {staff: true, usage: "stats", run: d.cmdStats},
	}
}

// replyError turns a command failure into a chat reply.
func (d *Dispatcher) replyError(ctx context.Context, m MessageCreated, cmd Command, c command, err error) {
	var cd *services.CooldownError
	var text string
	switch {
	case errors.Is(err, errUsage):
		text = "Usage: `" + d.opts.Prefix + c.usage + "`"
	case errors.As(err, &cd):
		unit := "seconds"
		if cd.Remaining == 1 {
			unit = "second"
		}
		text = fmt.Sprintf("%s, please wait %d %s before using this again.", Mention(m.AuthorID), cd.Remaining, unit)
	case errors.Is(err, services.ErrRuleNotFound):
		text = "That rule does not exist."
	case errors.Is(err, services.ErrRuleExists):
		text = "A rule with that number already exists."
	case errors.Is(err, services.ErrEmptyRule):
		text = "Rule text cannot be empty."
	case errors.Is(err, moderation.ErrInvalidDuration):
		text = "The duration must be a positive number of hours."
	case errors.Is(err, gateway.ErrCollaboratorUnavailable):
		text = ":warning: The change was saved, but the chat platform did not accept the follow-up call."
	default:
		log.Error().Err(err).Str("command", cmd.Name).Str("user", m.AuthorID.String()).Msg("command failed")
		text = "Something went wrong while running that command."
	}
	d.reply(ctx, m.ChannelID, text)
}

func (d *Dispatcher) cmdHelp(ctx context.Context, m MessageCreated, _ Command, staff bool) error {
	var lines []string
	for _, c := range d.commands {
		if c.staff && !staff {
			continue
		}
		lines = append(lines, "`"+d.opts.Prefix+c.usage+"`")
	}
	sort.Strings(lines)
	d.reply(ctx, m.ChannelID, "**Commands**\n"+strings.Join(lines, "\n"))
	return nil
}

func ruleID(c Command) (int, error) {
	if len(c.Args) == 0 {
		return 0, errUsage
	}
	id, err := strconv.Atoi(c.Args[0])
	if err != nil || id < 0 {
		return 0, errUsage
	}
	return id, nil
}

func (d *Dispatcher) cmdRule(ctx context.Context, m MessageCreated, c Command, staff bool) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	r, err := d.Rules.Lookup(ctx, m.AuthorID, id, staff)
	if err != nil {
		return err
	}
	d.reply(ctx, m.ChannelID, fmt.Sprintf("**Rule %d**\n%s", r.ID, r.Text))
	return nil
}

func (d *Dispatcher) cmdAllRules(ctx context.Context, m MessageCreated, _ Command, _ bool) error {
	d.reply(ctx, m.ChannelID, d.Rules.Render())
	return nil
}

func (d *Dispatcher) cmdAddRule(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	if err := d.Rules.Add(ctx, id, c.Tail(1)); err != nil {
		return err
	}
	d.confirm(ctx, m, fmt.Sprintf(":white_check_mark: Added rule %d.", id))
	return nil
}

func (d *Dispatcher) cmdSetRule(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	if err := d.Rules.Set(ctx, id, c.Tail(1)); err != nil {
		return err
	}
	d.confirm(ctx, m, fmt.Sprintf(":white_check_mark: Updated rule %d.", id))
	return nil
}

func (d *Dispatcher) cmdRemoveRule(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	if err := d.Rules.Remove(ctx, id); err != nil {
		return err
	}
	d.confirm(ctx, m, fmt.Sprintf(":white_check_mark: Removed rule %d.", id))
	return nil
}

// target parses the member argument of a moderation command.
func target(m MessageCreated, c Command, reasonFrom int) (services.Target, error) {
	if len(c.Args) == 0 {
		return services.Target{}, errUsage
	}
	user, ok := ParseUserID(c.Args[0])
	if !ok {
		return services.Target{}, errUsage
	}
	return services.Target{
		GuildID:     m.GuildID,
		UserID:      user,
		ModeratorID: m.AuthorID,
		Reason:      c.Tail(reasonFrom),
	}, nil
}

func (d *Dispatcher) cmdMute(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	t, err := target(m, c, 1)
	if err != nil {
		return err
	}
	if _, err := d.Moderation.Mute(ctx, t); err != nil {
		return err
	}
	d.confirm(ctx, m, ":white_check_mark: Successfully muted "+Mention(t.UserID)+".")
	return nil
}

// maxMuteHours is the first hour count whose duration overflows.
const maxMuteHours = float64(math.MaxInt64) / float64(time.Hour)

func (d *Dispatcher) cmdTempMute(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	if len(c.Args) < 2 {
		return errUsage
	}
	t, err := target(m, c, 2)
	if err != nil {
		return err
	}
	hours, err := strconv.ParseFloat(c.Args[1], 64)
	if err != nil || hours <= 0 || math.IsNaN(hours) || hours >= maxMuteHours {
		return moderation.ErrInvalidDuration
	}
	if _, err := d.Moderation.TempMute(ctx, t, time.Duration(hours*float64(time.Hour))); err != nil {
		return err
	}
	d.confirm(ctx, m, fmt.Sprintf(":white_check_mark: Successfully muted %s for %s hours.",
		Mention(t.UserID), strconv.FormatFloat(hours, 'f', -1, 64)))
	return nil
}

func (d *Dispatcher) cmdUnmute(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	t, err := target(m, c, 1)
	if err != nil {
		return err
	}
	if _, err := d.Moderation.Unmute(ctx, t); err != nil {
		return err
	}
	d.confirm(ctx, m, ":white_check_mark: Successfully unmuted "+Mention(t.UserID)+".")
	return nil
}

func (d *Dispatcher) cmdKick(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	t, err := target(m, c, 1)
	if err != nil {
		return err
	}
	if _, err := d.Moderation.Kick(ctx, t); err != nil {
		return err
	}
	d.confirm(ctx, m, ":white_check_mark: Successfully kicked "+Mention(t.UserID)+".")
	return nil
}

func (d *Dispatcher) cmdLeaderboard(ctx context.Context, m MessageCreated, _ Command, _ bool) error {
	id, view := d.Board.OpenSession(m.AuthorID)
	msg, err := d.Gateway.SendMessage(ctx, m.ChannelID, leaderboard.Render(view))
	if err != nil {
		_ = d.Board.Close(id)
		return err
	}
	if err := d.Board.Bind(id, msg); err != nil {
		return err
	}
	if view.PageCount > 1 {
		for _, emoji := range []string{leaderboard.EmojiPrevious, leaderboard.EmojiNext} {
			if err := d.Gateway.AddReaction(ctx, m.ChannelID, msg, emoji); err != nil {
				d.log.Warn().Err(err).Str("op", "add_reaction").Str("message", msg.String()).Msg("navigation reaction not added")
			}
		}
	}
	return nil
}

func (d *Dispatcher) cmdKarma(ctx context.Context, m MessageCreated, c Command, _ bool) error {
	user := m.AuthorID
	if len(c.Args) > 0 {
		id, ok := ParseUserID(c.Args[0])
		if !ok {
			return errUsage
		}
		user = id
	}
	pts := d.Karma.Points(user)
	unit := "points"
	if pts == 1 {
		unit = "point"
	}
	d.reply(ctx, m.ChannelID, fmt.Sprintf("%s has %d karma %s.", Mention(user), pts, unit))
	return nil
}

func (d *Dispatcher) cmdStats(ctx context.Context, m MessageCreated, _ Command, _ bool) error {
	all := d.Stats.All()
	if len(all) == 0 {
		d.reply(ctx, m.ChannelID, "No commands have been used yet.")
		return nil
	}
	var b strings.Builder
	b.WriteString("**Command usage**")
	for _, s := range all {
		fmt.Fprintf(&b, "\n`%s`: %d", s.Command, s.Count)
	}
	d.reply(ctx, m.ChannelID, b.String())
	return nil
}
