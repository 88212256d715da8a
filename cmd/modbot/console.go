package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-mod-assistant/internal/bot"
	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

var errEmptyLine = errors.New("empty line")

// identity is who the console is typing as.
type identity struct {
	Guild   snowflake.ID
	Channel snowflake.ID
	User    snowflake.ID
	Roles   []snowflake.ID
}

// lineParser turns console lines into events. Lines starting with a slash
// are controls:
//
//	/react <message> <emoji>
//	/unreact <message> <emoji>
//	/delete <message>
//
// Anything else is a message from the current identity.
type lineParser struct {
	who  identity
	last snowflake.ID
	now  func() time.Time
}

func (p *lineParser) nextID() snowflake.ID {
	id := snowflake.New(p.now())
	if id <= p.last {
		id = p.last + 1
	}
	p.last = id
	return id
}

func (p *lineParser) parse(line string) (bot.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errEmptyLine
	}
	if !strings.HasPrefix(line, "/") {
		return bot.MessageCreated{
			ID:          p.nextID(),
			GuildID:     p.who.Guild,
			ChannelID:   p.who.Channel,
			AuthorID:    p.who.User,
			AuthorRoles: p.who.Roles,
			Content:     line,
			Mentions:    bot.ParseMentions(line),
		}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return nil, errors.New("missing control after /")
	}
	switch verb := fields[0]; verb {
	case "react", "unreact":
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: /%s <message> <emoji>", verb)
		}
		msg, err := parseID(fields[1])
		if err != nil {
			return nil, err
		}
		return bot.ReactionChanged{ReactionEvent: domain.ReactionEvent{
			MessageID: msg,
			ChannelID: p.who.Channel,
			UserID:    p.who.User,
			Emoji:     fields[2],
			Added:     verb == "react",
		}}, nil
	case "delete":
		if len(fields) != 2 {
			return nil, errors.New("usage: /delete <message>")
		}
		msg, err := parseID(fields[1])
		if err != nil {
			return nil, err
		}
		return bot.MessageDeleted{ChannelID: p.who.Channel, MessageID: msg}, nil
	default:
		return nil, fmt.Errorf("unknown control %q", verb)
	}
}

func parseID(s string) (snowflake.ID, error) {
	id, err := snowflake.Parse(s)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func consoleCmd() *cobra.Command {
	var (
		guild, channel, user string
		roles                []string
		staff                bool
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Type chat messages as a user and watch the assistant respond",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			who, err := parseIdentity(guild, channel, user, roles)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, cmd.OutOrStdout(), clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.close()
			if staff {
				who.Roles = append(who.Roles, a.settings.IDs(services.SettingStaffRoles)...)
			}

			p := &lineParser{who: who, now: time.Now}
			return runConsole(cmd.Context(), a, p, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "1", "guild id")
	cmd.Flags().StringVar(&channel, "channel", "2", "channel id")
	cmd.Flags().StringVar(&user, "user", "3", "author user id")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "author role ids")
	cmd.Flags().BoolVar(&staff, "staff", false, "give the author every configured staff role")
	return cmd
}

func parseIdentity(guild, channel, user string, roles []string) (identity, error) {
	var (
		who identity
		err error
	)
	if who.Guild, err = parseID(guild); err != nil {
		return who, fmt.Errorf("--guild: %w", err)
	}
	if who.Channel, err = parseID(channel); err != nil {
		return who, fmt.Errorf("--channel: %w", err)
	}
	if who.User, err = parseID(user); err != nil {
		return who, fmt.Errorf("--user: %w", err)
	}
	for _, r := range roles {
		id, err := parseID(r)
		if err != nil {
			return who, fmt.Errorf("--role: %w", err)
		}
		who.Roles = append(who.Roles, id)
	}
	return who, nil
}

func runConsole(ctx context.Context, a *app, p *lineParser, in io.Reader, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.sweeper.Run(ctx)
	go a.board.Run(ctx)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		ev, err := p.parse(sc.Text())
		if errors.Is(err, errEmptyLine) {
			continue
		}
		if err != nil {
			fmt.Fprintln(errOut, err)
			continue
		}
		a.dispatcher.Handle(ctx, ev)
	}
	return sc.Err()
}
