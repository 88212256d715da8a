package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/table"
)

// Well-known settings keys.
const (
	SettingRuleCooldown       = "rule-user"
	SettingThanksCooldown     = "thanks-user"
	SettingRuleMessageChannel = "rulemessage-channel"
	SettingRuleMessageID      = "rulemessage-id"
	SettingJobChannels        = "job-channel-ids"
	SettingStaffRoles         = "staff-role-ids"
)

// SettingsTable is the persisted string to string settings map.
type SettingsTable = table.Table[string, string]

// OpenSettingsTable loads settings.json (or any path).
func OpenSettingsTable(path string) (*SettingsTable, error) {
	return table.Open[string, string](path, table.StringKeys)
}

// SettingsService provides typed access to the settings table.
type SettingsService struct {
	Table *SettingsTable
}

// Get returns the raw value stored under key.
func (s *SettingsService) Get(key string) (string, bool) {
	return s.Table.Lookup(key)
}

// Set stores value under key.
func (s *SettingsService) Set(key, value string) error {
	return s.Table.Set(key, strings.TrimSpace(value))
}

// All returns a copy of every setting.
func (s *SettingsService) All() map[string]string {
	return s.Table.Snapshot()
}

// Duration reads key as a whole number of seconds. Missing or malformed
// values yield def.
func (s *SettingsService) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		log.Warn().Str("setting", key).Str("value", v).Msg("ignoring malformed duration setting")
		return def
	}
	return time.Duration(n) * time.Second
}

// ID reads key as a single snowflake.
func (s *SettingsService) ID(key string) (snowflake.ID, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	id, err := snowflake.Parse(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return id, true
}

// IDs reads key as a comma-separated list of snowflakes, skipping entries
// that do not parse.
func (s *SettingsService) IDs(key string) []snowflake.ID {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	var out []snowflake.ID
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.Parse(part)
		if err != nil {
			log.Warn().Str("setting", key).Str("value", part).Msg("ignoring malformed id")
			continue
		}
		out = append(out, id)
	}
	return out
}
