package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
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
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/repo"
)

var epoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

const (
	guild snowflake.ID = 41771983423143937
	alice snowflake.ID = 175928847299117063
	bob   snowflake.ID = 80351110224678912
	mod   snowflake.ID = 1111
)

// recGateway records calls and fails the ops listed in fail.
type recGateway struct {
	*gateway.LogGateway

	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newRecGateway() *recGateway {
	return &recGateway{LogGateway: gateway.NewLogGateway(nil), fail: map[string]bool{}}
}

func (g *recGateway) rec(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, op)
	if g.fail[op] {
		return errors.New(op + " failed")
	}
	return nil
}

func (g *recGateway) AssignRole(_ context.Context, gu, u snowflake.ID, role string) error {
	return g.rec(fmt.Sprintf("assign:%s:%s", u, role))
}

func (g *recGateway) RevokeRole(_ context.Context, gu, u snowflake.ID, role string) error {
	return g.rec(fmt.Sprintf("revoke:%s:%s", u, role))
}

func (g *recGateway) EditMessage(_ context.Context, ch, m snowflake.ID, content string) error {
	return g.rec(fmt.Sprintf("edit:%s", m))
}

func (g *recGateway) Kick(_ context.Context, gu, u snowflake.ID, reason string) error {
	return g.rec(fmt.Sprintf("kick:%s", u))
}

func (g *recGateway) failOn(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = true
}

func (g *recGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type fixture struct {
	clock     *clockwork.FakeClock
	dir       string
	db        *gorm.DB
	gw        *recGateway
	mutes     *moderation.Mutes
	cooldowns *moderation.Cooldowns
	settings  *SettingsService
	rules     *RuleService
	karma     *KarmaService
	stats     *StatsService
	mod       *ModerationService
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
	st, err := OpenSettingsTable(filepath.Join(dir, "settings.json"))
	must(err)
	rt, err := OpenRuleTable(filepath.Join(dir, "rules.json"))
	must(err)
	kt, err := OpenKarmaTable(filepath.Join(dir, "karma.json"))
	must(err)
	stt, err := OpenStatsTable(filepath.Join(dir, "statistics.json"))
	must(err)

	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	must(err)
	must(repo.AutoMigrate(db))

	f := &fixture{clock: fc, dir: dir, db: db, gw: newRecGateway()}
	f.mutes = moderation.NewMutes(mt, fc)
	f.cooldowns = moderation.NewCooldowns(ct, fc)
	f.settings = &SettingsService{Table: st}
	f.rules = &RuleService{Rules: rt, Cooldowns: f.cooldowns, Settings: f.settings, Gateway: f.gw, DefaultCooldown: 30 * time.Second}
	f.karma = &KarmaService{Karma: kt, Cooldowns: f.cooldowns, Settings: f.settings, DefaultCooldown: time.Minute}
	f.stats = &StatsService{Table: stt}
	f.mod = &ModerationService{DB: db, Mutes: f.mutes, Gateway: f.gw}
	return f
}
