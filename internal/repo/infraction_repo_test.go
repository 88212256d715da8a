package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mod-assistant/internal/domain"
)

func newAuditDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("audit_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedInfractions(t *testing.T, db *gorm.DB) time.Time {
	t.Helper()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	rows := []domain.Infraction{
		{GuildID: "g1", UserID: "u1", Action: domain.ActionTempMute, CreatedAt: base},
		{GuildID: "g1", UserID: "u1", Action: domain.ActionUnmute, CreatedAt: base.Add(time.Minute)},
		{GuildID: "g1", UserID: "u2", Action: domain.ActionKick, CreatedAt: base.Add(2 * time.Minute)},
		{GuildID: "g2", UserID: "u1", Action: domain.ActionMute, CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range rows {
		if err := CreateInfraction(context.Background(), db, &rows[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
		if rows[i].ID == "" {
			t.Fatalf("ID not assigned")
		}
	}
	return base
}

func TestCreateInfraction_FillsDefaults(t *testing.T) {
	db := newAuditDB(t)
	in := &domain.Infraction{GuildID: "g", UserID: "u", Action: domain.ActionAutoMute, Reason: "spam"}
	if err := CreateInfraction(context.Background(), db, in); err != nil {
		t.Fatal(err)
	}
	if in.ID == "" || in.CreatedAt.IsZero() {
		t.Fatalf("defaults not filled: %+v", in)
	}
}

func TestCountAndListInfractions(t *testing.T) {
	db := newAuditDB(t)
	seedInfractions(t, db)
	ctx := context.Background()

	cases := []struct {
		name string
		f    InfractionFilter
		want int64
	}{
		{"all", InfractionFilter{}, 4},
		{"guild", InfractionFilter{GuildID: "g1"}, 3},
		{"member", InfractionFilter{GuildID: "g1", UserID: "u1"}, 2},
		{"user across guilds", InfractionFilter{UserID: "u1"}, 3},
		{"none", InfractionFilter{GuildID: "nope"}, 0},
	}
	for _, tc := range cases {
		got, err := CountInfractions(ctx, db, tc.f)
		if err != nil || got != tc.want {
			t.Fatalf("%s: count = %d, %v; want %d", tc.name, got, err, tc.want)
		}
	}

	page, err := ListInfractionsPage(ctx, db, InfractionFilter{GuildID: "g1"}, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Action != domain.ActionKick || page[1].Action != domain.ActionUnmute {
		t.Fatalf("first page = %+v; want newest first", page)
	}
	page, _ = ListInfractionsPage(ctx, db, InfractionFilter{GuildID: "g1"}, 2, 2)
	if len(page) != 1 || page[0].Action != domain.ActionTempMute {
		t.Fatalf("second page = %+v", page)
	}
}

func TestInfractionsStats(t *testing.T) {
	db := newAuditDB(t)
	ctx := context.Background()

	n, latest, err := InfractionsStats(ctx, db, InfractionFilter{GuildID: "g1"})
	if err != nil || n != 0 || latest != nil {
		t.Fatalf("empty stats = %d, %v, %v", n, latest, err)
	}

	base := seedInfractions(t, db)
	n, latest, err = InfractionsStats(ctx, db, InfractionFilter{GuildID: "g1"})
	if err != nil || n != 3 || latest == nil || !latest.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("stats = %d, %v, %v", n, latest, err)
	}
}
