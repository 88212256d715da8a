// Package services – RuleService
//
// This file implements the server rules: quoting a rule (throttled per user
// unless the caller is staff), staff edits, and keeping the pinned rule
// message in sync after every edit.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-mod-assistant/internal/gateway"
	"github.com/tbourn/go-mod-assistant/internal/moderation"
	"github.com/tbourn/go-mod-assistant/internal/table"
)

// CooldownRule is the cooldown resource for rule lookups.
const CooldownRule = "rule"

// RuleTable maps rule ids to rule text.
type RuleTable = table.Table[int, string]

// OpenRuleTable loads rules.json (or any path).
func OpenRuleTable(path string) (*RuleTable, error) {
	return table.Open[int, string](path, table.IntKeys)
}

// Rule is one numbered rule.
type Rule struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// RuleService manages the rule table.
type RuleService struct {
	Rules     *RuleTable
	Cooldowns *moderation.Cooldowns
	Settings  *SettingsService
	Gateway   gateway.Gateway

	// DefaultCooldown applies when the rule-user setting is absent.
	DefaultCooldown time.Duration
}

// Lookup returns rule id for user. Non-staff callers are throttled; a
// throttled call fails with a *CooldownError. Unknown ids fail with
// ErrRuleNotFound and do not start a cooldown.
func (s *RuleService) Lookup(ctx context.Context, user snowflake.ID, id int, staff bool) (Rule, error) {
	_, span := otel.Tracer("services/RuleService").Start(ctx, "Lookup")
	span.SetAttributes(attribute.Int("rule.id", id), attribute.Bool("staff", staff))
	defer span.End()

	text, ok := s.Rules.Lookup(id)
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	cd := s.Settings.Duration(SettingRuleCooldown, s.DefaultCooldown)
	allowed, remaining, err := s.Cooldowns.CheckAndConsume(user, CooldownRule, cd, staff)
	if err != nil {
		return Rule{}, err
	}
	if !allowed {
		return Rule{}, &CooldownError{Resource: CooldownRule, Remaining: remaining}
	}
	return Rule{ID: id, Text: text}, nil
}

// Add creates rule id.
func (s *RuleService) Add(ctx context.Context, id int, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyRule
	}
	if err := s.Rules.Add(id, text); err != nil {
		if errors.Is(err, table.ErrDuplicateKey) {
			return ErrRuleExists
		}
		return err
	}
	s.syncBestEffort(ctx)
	return nil
}

// Set replaces the text of an existing rule.
func (s *RuleService) Set(ctx context.Context, id int, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyRule
	}
	var found bool
	_, err := s.Rules.Update(id, func(_ string, ok bool) (string, bool) {
		found = ok
		return text, ok
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrRuleNotFound
	}
	s.syncBestEffort(ctx)
	return nil
}

// Remove deletes rule id.
func (s *RuleService) Remove(ctx context.Context, id int) error {
	if err := s.Rules.Remove(id); err != nil {
		if errors.Is(err, table.ErrKeyNotFound) {
			return ErrRuleNotFound
		}
		return err
	}
	s.syncBestEffort(ctx)
	return nil
}

// All returns every rule ordered by id.
func (s *RuleService) All() []Rule {
	snap := s.Rules.Snapshot()
	out := make([]Rule, 0, len(snap))
	for id, text := range snap {
		out = append(out, Rule{ID: id, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render builds the full rule message.
func (s *RuleService) Render() string {
	var b strings.Builder
	b.WriteString("**Welcome to the server!**\n\nPlease take a moment to read the rules.\n")
	for _, r := range s.All() {
		fmt.Fprintf(&b, "\n**Rule %d**\n%s\n", r.ID, r.Text)
	}
	return b.String()
}

// SyncOrigin rewrites the pinned rule message when its channel and id are
// configured. It reports whether an edit was attempted.
func (s *RuleService) SyncOrigin(ctx context.Context) (bool, error) {
	ch, ok1 := s.Settings.ID(SettingRuleMessageChannel)
	msg, ok2 := s.Settings.ID(SettingRuleMessageID)
	if !ok1 || !ok2 || s.Gateway == nil {
		return false, nil
	}
	return true, s.Gateway.EditMessage(ctx, ch, msg, s.Render())
}

// syncBestEffort keeps rule edits committed when the pinned message cannot
// be updated.
func (s *RuleService) syncBestEffort(ctx context.Context) {
	if _, err := s.SyncOrigin(ctx); err != nil {
		log.Warn().Err(err).Str("op", "edit_message").Msg("rule message sync failed")
	}
}
