package services

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func TestSettingsService_TypedAccessors(t *testing.T) {
	f := newFixture(t)
	s := f.settings

	if d := s.Duration("missing", 7*time.Second); d != 7*time.Second {
		t.Fatalf("default duration = %v", d)
	}
	_ = s.Set(SettingRuleCooldown, " 45 ")
	if d := s.Duration(SettingRuleCooldown, 0); d != 45*time.Second {
		t.Fatalf("duration = %v; want 45s", d)
	}
	_ = s.Set("bad", "soon")
	if d := s.Duration("bad", time.Second); d != time.Second {
		t.Fatalf("malformed duration = %v; want default", d)
	}

	_ = s.Set(SettingJobChannels, "500, 501,,nope, 502")
	ids := s.IDs(SettingJobChannels)
	want := []snowflake.ID{500, 501, 502}
	if len(ids) != len(want) {
		t.Fatalf("IDs = %v; want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs = %v; want %v", ids, want)
		}
	}
	if _, ok := s.ID("missing"); ok {
		t.Fatalf("ID on missing key")
	}
	if len(s.All()) != 3 {
		t.Fatalf("All = %v", s.All())
	}
}

func TestStatsService_RecordAndOrder(t *testing.T) {
	f := newFixture(t)
	for _, c := range []string{"rule", "karma", "rule", "mute", "rule", "karma"} {
		if err := f.stats.Record(c); err != nil {
			t.Fatal(err)
		}
	}
	all := f.stats.All()
	if len(all) != 3 || all[0] != (CommandCount{"rule", 3}) || all[1] != (CommandCount{"karma", 2}) || all[2] != (CommandCount{"mute", 1}) {
		t.Fatalf("All = %+v", all)
	}
}
