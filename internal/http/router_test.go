package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mod-assistant/internal/config"
	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/http/handlers"
	"github.com/tbourn/go-mod-assistant/internal/http/middleware"
	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/repo"
	"github.com/tbourn/go-mod-assistant/internal/services"
)

const (
	guild = "41771983423143937"
	bob   = "80351110224678912"
	mod   = "1111"
)

var epoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// flakyGateway fails role changes while down is set.
type flakyGateway struct {
	*gateway.LogGateway
	down bool
}

func (g *flakyGateway) AssignRole(ctx context.Context, guild, user snowflake.ID, role string) error {
	if g.down {
		return errors.New("503 from platform")
	}
	return g.LogGateway.AssignRole(ctx, guild, user, role)
}

type apiFixture struct {
	r     *gin.Engine
	db    *gorm.DB
	gw    *flakyGateway
	clock *clockwork.FakeClock
	karma *services.KarmaService
	rules *services.RuleService
	stats *services.StatsService
}

func newAPI(t *testing.T, mutate func(*config.Config)) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:api_%s?mode=memory&cache=shared", uuid.NewString())),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	must(err)
	must(repo.AutoMigrate(db))

	fc := clockwork.NewFakeClockAt(epoch)
	mt, err := moderation.OpenMuteTable(filepath.Join(dir, "mutes.json"))
	must(err)
	ct, err := moderation.OpenCooldownTable(filepath.Join(dir, "cooldowns.json"))
	must(err)
	rt, err := services.OpenRuleTable(filepath.Join(dir, "rules.json"))
	must(err)
	kt, err := services.OpenKarmaTable(filepath.Join(dir, "karma.json"))
	must(err)
	stt, err := services.OpenStatsTable(filepath.Join(dir, "statistics.json"))
	must(err)
	sett, err := services.OpenSettingsTable(filepath.Join(dir, "settings.json"))
	must(err)

	f := &apiFixture{db: db, clock: fc, gw: &flakyGateway{LogGateway: gateway.NewLogGateway(nil)}}
	mutes := moderation.NewMutes(mt, fc)
	cooldowns := moderation.NewCooldowns(ct, fc)
	settings := &services.SettingsService{Table: sett}
	f.karma = &services.KarmaService{Karma: kt, Cooldowns: cooldowns, Settings: settings, DefaultCooldown: time.Minute}
	f.rules = &services.RuleService{Rules: rt, Cooldowns: cooldowns, Settings: settings, DefaultCooldown: time.Minute}
	f.stats = &services.StatsService{Table: stt}

	h := &handlers.Handlers{
		Mutes:          mutes,
		Moderation:     &services.ModerationService{DB: db, Mutes: mutes, Gateway: f.gw},
		Board:          leaderboard.NewController(f.karma, leaderboard.Options{PageSize: 10, Clock: fc}),
		Rules:          f.rules,
		Stats:          f.stats,
		DB:             db,
		IdempotencyTTL: time.Hour,
	}
	cfg := config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		OTEL:        config.OTELConfig{ServiceName: "modbot-test"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.r = gin.New()
	RegisterRoutes(f.r, h, cfg)
	return f
}

func (f *apiFixture) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func (f *apiFixture) infractionCount(t *testing.T) int64 {
	t.Helper()
	n, err := repo.CountInfractions(context.Background(), f.db, repo.InfractionFilter{UserID: bob})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

const mutePath = "/api/v1/guilds/" + guild + "/users/" + bob + "/mute"

func TestRoutes_HealthMetricsFallbacks(t *testing.T) {
	f := newAPI(t, nil)

	if w := f.do(http.MethodGet, "/health", nil); w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("health = %d %v", w.Code, w.Header())
	}
	if w := f.do(http.MethodGet, "/metrics", nil); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("admin_http_requests_total")) {
		t.Fatalf("metrics = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound || decode[handlers.ErrorResponse](t, w).Code != handlers.ErrCodeNotFound {
		t.Fatalf("404 = %d %s", w.Code, w.Body.String())
	}
	if w := f.do(http.MethodPut, mutePath, nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("405 = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/v1/guilds/abc/mutes", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad guild id = %d", w.Code)
	}
	if got := f.do(http.MethodGet, "/health", nil).Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
}

func TestRoutes_TempMuteLifecycle(t *testing.T) {
	f := newAPI(t, nil)

	if w := f.do(http.MethodPost, mutePath, handlers.MuteRequest{DurationSeconds: 60}); w.Code != http.StatusBadRequest ||
		decode[handlers.ErrorResponse](t, w).Code != handlers.ErrCodeModeratorRequired {
		t.Fatalf("anonymous write = %d %s", w.Code, w.Body.String())
	}
	if w := f.do(http.MethodPost, mutePath, handlers.MuteRequest{DurationSeconds: -5}, middleware.HeaderModeratorID, mod); w.Code != http.StatusBadRequest ||
		decode[handlers.ErrorResponse](t, w).Code != handlers.ErrCodeInvalidDuration {
		t.Fatalf("negative duration = %d %s", w.Code, w.Body.String())
	}

	w := f.do(http.MethodPost, mutePath, handlers.MuteRequest{DurationSeconds: 3600, Reason: "flooding"},
		middleware.HeaderModeratorID, mod)
	if w.Code != http.StatusCreated {
		t.Fatalf("mute = %d %s", w.Code, w.Body.String())
	}
	resp := decode[handlers.MuteResponse](t, w)
	if resp.Mute.State != "active_until" || !resp.Mute.Active || resp.Mute.Until == nil || !resp.Mute.Until.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("mute state = %+v", resp.Mute)
	}
	if resp.Infraction == nil || resp.Infraction.Action != domain.ActionTempMute || resp.Infraction.ModeratorID != mod || resp.Infraction.Reason != "flooding" {
		t.Fatalf("infraction = %+v", resp.Infraction)
	}

	list := decode[handlers.ListMutesResponse](t, f.do(http.MethodGet, "/api/v1/guilds/"+guild+"/mutes", nil))
	if len(list.Mutes) != 1 || list.Mutes[0].UserID.String() != bob {
		t.Fatalf("active mutes = %+v", list.Mutes)
	}

	w = f.do(http.MethodDelete, mutePath+"?reason=appealed", nil, middleware.HeaderModeratorID, mod)
	if w.Code != http.StatusOK {
		t.Fatalf("unmute = %d %s", w.Code, w.Body.String())
	}
	if st := decode[handlers.MuteState](t, f.do(http.MethodGet, mutePath, nil)); st.State != "inactive" || st.Active {
		t.Fatalf("after unmute = %+v", st)
	}
	if n := f.infractionCount(t); n != 2 {
		t.Fatalf("infractions = %d; want 2", n)
	}
}

func TestRoutes_MuteRejectsOverflowingDuration(t *testing.T) {
	f := newAPI(t, nil)
	for _, secs := range []int64{18446744074, 9223372037, math.MaxInt64} {
		w := f.do(http.MethodPost, mutePath, handlers.MuteRequest{DurationSeconds: secs}, middleware.HeaderModeratorID, mod)
		if w.Code != http.StatusBadRequest || decode[handlers.ErrorResponse](t, w).Code != handlers.ErrCodeInvalidDuration {
			t.Fatalf("%d seconds = %d %s", secs, w.Code, w.Body.String())
		}
	}
	if st := decode[handlers.MuteState](t, f.do(http.MethodGet, mutePath, nil)); st.Active {
		t.Fatalf("rejected duration muted the member: %+v", st)
	}
	if n := f.infractionCount(t); n != 0 {
		t.Fatalf("infractions = %d; want 0", n)
	}
}

func TestRoutes_MuteIsIdempotent(t *testing.T) {
	f := newAPI(t, nil)
	post := func(key string) *httptest.ResponseRecorder {
		return f.do(http.MethodPost, mutePath, handlers.MuteRequest{Reason: "raid"},
			middleware.HeaderModeratorID, mod, middleware.HeaderIdempotencyKey, key)
	}

	first := post("raid-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first = %d %s", first.Code, first.Body.String())
	}
	id := decode[handlers.MuteResponse](t, first).Infraction.ID

	again := post("raid-1")
	if again.Code != http.StatusCreated || again.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d %v", again.Code, again.Header())
	}
	replayed := decode[handlers.MuteResponse](t, again)
	if replayed.Infraction == nil || replayed.Infraction.ID != id || replayed.Mute.State != "permanent" {
		t.Fatalf("replay body = %+v", replayed)
	}
	if n := f.infractionCount(t); n != 1 {
		t.Fatalf("replay wrote a new infraction, count = %d", n)
	}

	if w := post("raid-2"); w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("new key replayed")
	}
	if n := f.infractionCount(t); n != 2 {
		t.Fatalf("count = %d; want 2", n)
	}

	if w := post("bad key"); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key = %d", w.Code)
	}
}

func TestRoutes_PlatformFailureKeepsState(t *testing.T) {
	f := newAPI(t, nil)
	f.gw.down = true

	w := f.do(http.MethodPost, mutePath, handlers.MuteRequest{DurationSeconds: 600}, middleware.HeaderModeratorID, mod)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	resp := decode[handlers.MuteResponse](t, w)
	if resp.Warning == "" || !resp.Mute.Active {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRoutes_InfractionsETag(t *testing.T) {
	f := newAPI(t, nil)
	f.do(http.MethodPost, mutePath, handlers.MuteRequest{DurationSeconds: 60}, middleware.HeaderModeratorID, mod)

	path := "/api/v1/infractions?guild_id=" + guild + "&user_id=" + bob
	w := f.do(http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	page := decode[handlers.ListInfractionsResponse](t, w)
	if etag == "" || len(page.Infractions) != 1 || page.Pagination.Total != 1 || page.Pagination.HasNext {
		t.Fatalf("etag %q page %+v", etag, page)
	}

	if w := f.do(http.MethodGet, path, nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("conditional = %d", w.Code)
	}

	f.do(http.MethodDelete, mutePath, nil, middleware.HeaderModeratorID, mod)
	if w := f.do(http.MethodGet, path, nil, "If-None-Match", etag); w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("stale etag honoured: %d", w.Code)
	}

	if w := f.do(http.MethodGet, "/api/v1/infractions?user_id=bob", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad filter = %d", w.Code)
	}
}

func TestRoutes_CommunityReads(t *testing.T) {
	f := newAPI(t, nil)
	for i, pts := range []int{5, 9, 7} {
		_ = f.karma.Karma.Set(snowflake.ID(100+i), pts)
	}
	_ = f.rules.Add(context.Background(), 2, "No spam.")
	_ = f.rules.Add(context.Background(), 1, "Be nice.")
	_ = f.stats.Record("rule")

	lb := decode[handlers.LeaderboardResponse](t, f.do(http.MethodGet, "/api/v1/leaderboard?page=1&page_size=2", nil))
	if len(lb.Entries) != 2 || lb.Entries[0].Score != 9 || lb.Entries[1].Rank != 2 ||
		lb.Pagination.TotalPages != 2 || !lb.Pagination.HasNext {
		t.Fatalf("leaderboard = %+v", lb)
	}
	last := decode[handlers.LeaderboardResponse](t, f.do(http.MethodGet, "/api/v1/leaderboard?page=2&page_size=2", nil))
	if len(last.Entries) != 1 || last.Entries[0].Rank != 3 || last.Pagination.HasNext {
		t.Fatalf("last page = %+v", last)
	}

	rules := decode[struct {
		Rules []services.Rule `json:"rules"`
	}](t, f.do(http.MethodGet, "/api/v1/rules", nil))
	if len(rules.Rules) != 2 || rules.Rules[0].ID != 1 {
		t.Fatalf("rules = %+v", rules)
	}

	stats := decode[struct {
		Commands []services.CommandCount `json:"commands"`
	}](t, f.do(http.MethodGet, "/api/v1/stats", nil))
	if len(stats.Commands) != 1 || stats.Commands[0].Count != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRoutes_AdminToken(t *testing.T) {
	f := newAPI(t, func(c *config.Config) { c.Security.AdminToken = "s3cret" })

	if w := f.do(http.MethodGet, "/api/v1/rules", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/v1/rules", nil, "Authorization", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Fatalf("with token = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", w.Code)
	}
}

func TestRoutes_CORS(t *testing.T) {
	f := newAPI(t, func(c *config.Config) { c.CORS.AllowedOrigins = []string{"https://dash.example"} })

	w := f.do(http.MethodGet, "/health", nil, "Origin", "https://dash.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("allowed origin = %q", got)
	}
	w = f.do(http.MethodGet, "/health", nil, "Origin", "https://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin echoed: %q", got)
	}
}
