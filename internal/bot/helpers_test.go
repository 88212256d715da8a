package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/repo"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

var epoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

const (
	guild     snowflake.ID = 41771983423143937
	general   snowflake.ID = 600
	jobs      snowflake.ID = 601
	staffRole snowflake.ID = 900
	alice     snowflake.ID = 175928847299117063
	bob       snowflake.ID = 80351110224678912
	moderator snowflake.ID = 1111
)

type sent struct {
	channel snowflake.ID
	id      snowflake.ID
	content string
}

// fakeGateway records what the dispatcher asked the platform to do.
type fakeGateway struct {
	*gateway.LogGateway

	mu        sync.Mutex
	sent      []sent
	deleted   []snowflake.ID
	dms       map[snowflake.ID][]string
	reactions []string
	roles     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{LogGateway: gateway.NewLogGateway(nil), dms: map[snowflake.ID][]string{}}
}

func (g *fakeGateway) SendMessage(ctx context.Context, ch snowflake.ID, content string) (snowflake.ID, error) {
	id, err := g.LogGateway.SendMessage(ctx, ch, content)
	g.mu.Lock()
	g.sent = append(g.sent, sent{ch, id, content})
	g.mu.Unlock()
	return id, err
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, ch, msg snowflake.ID) error {
	g.mu.Lock()
	g.deleted = append(g.deleted, msg)
	g.mu.Unlock()
	return g.LogGateway.DeleteMessage(ctx, ch, msg)
}

func (g *fakeGateway) SendDirect(_ context.Context, user snowflake.ID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dms[user] = append(g.dms[user], content)
	return nil
}

func (g *fakeGateway) AddReaction(_ context.Context, _, msg snowflake.ID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions = append(g.reactions, msg.String()+":"+emoji)
	return nil
}

func (g *fakeGateway) AssignRole(_ context.Context, _, user snowflake.ID, role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles = append(g.roles, "assign:"+user.String()+":"+role)
	return nil
}

func (g *fakeGateway) RevokeRole(_ context.Context, _, user snowflake.ID, role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles = append(g.roles, "revoke:"+user.String()+":"+role)
	return nil
}

func (g *fakeGateway) lastSent(t *testing.T) sent {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		t.Fatalf("nothing was sent")
	}
	return g.sent[len(g.sent)-1]
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func (g *fakeGateway) wasDeleted(id snowflake.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range g.deleted {
		if d == id {
			return true
		}
	}
	return false
}

type fixture struct {
	clock    *clockwork.FakeClock
	gw       *fakeGateway
	db       *gorm.DB
	mutes    *moderation.Mutes
	settings *services.SettingsService
	rules    *services.RuleService
	karma    *services.KarmaService
	stats    *services.StatsService
	board    *leaderboard.Controller
	d        *Dispatcher
	nextID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fc := clockwork.NewFakeClockAt(epoch)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}

	mt, err := moderation.OpenMuteTable(filepath.Join(dir, "mutes.json"))
	must(err)
	ct, err := moderation.OpenCooldownTable(filepath.Join(dir, "cooldowns.json"))
	must(err)
	st, err := services.OpenSettingsTable(filepath.Join(dir, "settings.json"))
	must(err)
	rt, err := services.OpenRuleTable(filepath.Join(dir, "rules.json"))
	must(err)
	kt, err := services.OpenKarmaTable(filepath.Join(dir, "karma.json"))
	must(err)
	stt, err := services.OpenStatsTable(filepath.Join(dir, "statistics.json"))
	must(err)

	dsn := fmt.Sprintf("file:bot_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	must(err)
	must(repo.AutoMigrate(db))

	f := &fixture{clock: fc, gw: newFakeGateway(), db: db, nextID: 10_000}
	f.mutes = moderation.NewMutes(mt, fc)
	cooldowns := moderation.NewCooldowns(ct, fc)
	f.settings = &services.SettingsService{Table: st}
	must(f.settings.Set(services.SettingStaffRoles, staffRole.String()))
	must(f.settings.Set(services.SettingJobChannels, jobs.String()))
	f.rules = &services.RuleService{Rules: rt, Cooldowns: cooldowns, Settings: f.settings, Gateway: f.gw, DefaultCooldown: 30 * time.Second}
	f.karma = &services.KarmaService{Karma: kt, Cooldowns: cooldowns, Settings: f.settings, DefaultCooldown: time.Minute}
	f.stats = &services.StatsService{Table: stt}
	f.board = leaderboard.NewController(f.karma, leaderboard.Options{PageSize: 5, Clock: fc})

	policy := moderation.DefaultSpamPolicy()
	policy.IncludeMentions = true
	policy.MentionsThreshold = 3
	templates, err := moderation.NewTemplateChecker([]string{`^\[hiring\]`}, func() []snowflake.ID {
		return f.settings.IDs(services.SettingJobChannels)
	})
	must(err)

	f.d = New(Deps{
		Gateway:    f.gw,
		Rules:      f.rules,
		Karma:      f.karma,
		Stats:      f.stats,
		Settings:   f.settings,
		Moderation: &services.ModerationService{DB: db, Mutes: f.mutes, Gateway: f.gw},
		Board:      f.board,
		Spam:       moderation.NewSpamFilter(policy),
		Templates:  templates,
	}, Options{
		Prefix:             "!",
		ConfirmDeleteAfter: 3 * time.Second,
		Clock:              fc,
	})
	return f
}

// say delivers a message from user in channel and returns its id.
func (f *fixture) say(user snowflake.ID, channel snowflake.ID, content string, staff bool, mentions ...snowflake.ID) snowflake.ID {
	f.nextID++
	m := MessageCreated{
		ID:         f.nextID,
		GuildID:    guild,
		ChannelID:  channel,
		AuthorID:   user,
		AuthorName: "user" + user.String()[:4],
		Content:    content,
		Mentions:   mentions,
	}
	if staff {
		m.AuthorRoles = []snowflake.ID{staffRole}
	}
	f.d.Handle(context.Background(), m)
	return m.ID
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
