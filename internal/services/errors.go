// Package services implements the assistant's use cases on top of the
// persisted tables: rules, karma, statistics, settings and moderation
// actions. This file centralizes service-level error values so they can be
// returned consistently and matched by callers.
//
// Translation into chat replies or HTTP status codes happens in the bot
// dispatcher and the HTTP handlers.
package services

import (
	"errors"
	"fmt"
)

// Rule-related errors.
var (
	// ErrRuleNotFound indicates that no rule exists under the given id.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned by Add when the id is already taken.
	ErrRuleExists = errors.New("rule already exists")

	// ErrEmptyRule is returned when rule text is blank.
	ErrEmptyRule = errors.New("rule text is empty")
)

// Karma-related errors.
var (
	// ErrNoThanksTargets is returned when a thanks message names nobody
	// other than its author.
	ErrNoThanksTargets = errors.New("nobody to thank")
)

// ErrOnCooldown is matched by CooldownError.
var ErrOnCooldown = errors.New("on cooldown")

// CooldownError reports a throttled action and how long to wait.
type CooldownError struct {
	Resource  string
	Remaining int // seconds, rounded up
}

func (e *CooldownError) Error() string {
	unit := "seconds"
	if e.Remaining == 1 {
		unit = "second"
	}
	return fmt.Sprintf("%s: please wait %d %s", e.Resource, e.Remaining, unit)
}

// Is makes errors.Is(err, ErrOnCooldown) match.
func (e *CooldownError) Is(target error) bool { return target == ErrOnCooldown }
