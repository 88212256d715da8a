package moderation

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/expiry"
)

const (
	guild snowflake.ID = 41771983423143937
	alice snowflake.ID = 175928847299117063
	bob   snowflake.ID = 80351110224678912
)

var epoch = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newMutes(t *testing.T) (*Mutes, *clockwork.FakeClock, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mutes.json")
	tbl, err := OpenMuteTable(path)
	if err != nil {
		t.Fatalf("open mutes: %v", err)
	}
	fc := clockwork.NewFakeClockAt(epoch)
	return NewMutes(tbl, fc), fc, path
}

func TestMuteFor_ExpiresWithClock(t *testing.T) {
	m, fc, _ := newMutes(t)

	until, err := m.MuteFor(alice, guild, 90*time.Second)
	if err != nil {
		t.Fatalf("MuteFor: %v", err)
	}
	if !until.Equal(epoch.Add(90 * time.Second)) {
		t.Fatalf("until = %v", until)
	}
	if !m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("expected muted right after MuteFor")
	}
	fc.Advance(89 * time.Second)
	if !m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("expected still muted before expiry")
	}
	fc.Advance(time.Second)
	if m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("expected unmuted at expiry instant")
	}
	if m.IsCurrentlyMuted(alice, bob) {
		t.Fatalf("mutes are per guild")
	}
}

func TestMuteFor_RejectsNonPositive(t *testing.T) {
	m, _, _ := newMutes(t)
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := m.MuteFor(alice, guild, d); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("MuteFor(%v): want ErrInvalidDuration, got %v", d, err)
		}
	}
	if m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("rejected mute must not write")
	}
}

func TestMuteFor_RemuteOverwrites(t *testing.T) {
	m, fc, _ := newMutes(t)
	_, _ = m.MuteFor(alice, guild, time.Hour)
	_, _ = m.MuteFor(alice, guild, time.Minute)
	fc.Advance(2 * time.Minute)
	if m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("second mute should have replaced the first expiry")
	}
}

func TestMutePermanently_OnlyUnmuteClears(t *testing.T) {
	m, fc, path := newMutes(t)

	if err := m.MutePermanently(alice, guild); err != nil {
		t.Fatal(err)
	}
	fc.Advance(10 * 365 * 24 * time.Hour)
	if !m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("permanent mute expired on its own")
	}
	if st := m.State(alice, guild); st.Kind != expiry.KindPermanent {
		t.Fatalf("state = %v; want permanent", st.Kind)
	}

	was, err := m.Unmute(alice, guild)
	if err != nil || !was {
		t.Fatalf("Unmute = %v, %v; want true, nil", was, err)
	}
	if m.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("expected unmuted after Unmute")
	}

	// The row survives with the inactive sentinel.
	tbl, err := OpenMuteTable(path)
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := tbl.Lookup(domain.MuteKey{UserID: alice, GuildID: guild})
	if !ok || raw != expiry.Inactive {
		t.Fatalf("stored = %d, %v; want inactive sentinel", raw, ok)
	}
}

func TestUnmute_NotMuted(t *testing.T) {
	m, _, _ := newMutes(t)
	was, err := m.Unmute(bob, guild)
	if err != nil || was {
		t.Fatalf("Unmute on clean member = %v, %v; want false, nil", was, err)
	}
	if st := m.State(bob, guild); st.Kind != expiry.KindInactive {
		t.Fatalf("state = %v; want inactive", st.Kind)
	}
}

func TestActive_ListsOnlyCurrentMutesOfGuild(t *testing.T) {
	m, fc, _ := newMutes(t)
	other := snowflake.ID(7)

	_, _ = m.MuteFor(alice, guild, time.Minute)
	_ = m.MutePermanently(bob, guild)
	_ = m.MutePermanently(alice, other)
	_, _ = m.MuteFor(3, guild, time.Hour)
	_, _ = m.Unmute(3, guild)

	got := m.Active(guild)
	if len(got) != 2 || got[0].UserID != bob || got[1].UserID != alice {
		t.Fatalf("Active = %+v", got)
	}

	fc.Advance(2 * time.Minute)
	got = m.Active(guild)
	if len(got) != 1 || got[0].UserID != bob || got[0].State.Kind != expiry.KindPermanent {
		t.Fatalf("Active after expiry = %+v", got)
	}
}

func TestMutes_SurviveReload(t *testing.T) {
	m, fc, path := newMutes(t)
	_, _ = m.MuteFor(alice, guild, time.Hour)

	tbl, err := OpenMuteTable(path)
	if err != nil {
		t.Fatal(err)
	}
	again := NewMutes(tbl, fc)
	if !again.IsCurrentlyMuted(alice, guild) {
		t.Fatalf("mute lost across reload")
	}
}
