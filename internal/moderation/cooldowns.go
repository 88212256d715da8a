package moderation

import (
	"math"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/metrics"
	"github.com/tbourn/go-mod-assistant/internal/table"
)

// CooldownTable maps (user, resource) to the UTC instant of the last
// permitted use.
type CooldownTable = table.Table[domain.CooldownKey, time.Time]

// OpenCooldownTable loads cooldowns.json (or any path).
func OpenCooldownTable(path string) (*CooldownTable, error) {
	return table.Open[domain.CooldownKey, time.Time](path, domain.CooldownKeys)
}

// Cooldowns throttles repeated actions per (user, resource).
type Cooldowns struct {
	tbl   *CooldownTable
	clock clockwork.Clock
}

// NewCooldowns wraps tbl. A nil clock uses the real clock.
func NewCooldowns(tbl *CooldownTable, clock clockwork.Clock) *Cooldowns {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cooldowns{tbl: tbl, clock: clock}
}

// CheckAndConsume decides whether user may use resource now. When allowed,
// the current instant is stored as the new last use before returning; when
// denied, remaining is the wait in whole seconds, rounded up. Callers with
// bypass set are always allowed and never leave a record behind.
//
// The check and the write happen in a single table update, so two concurrent
// calls for the same key cannot both be allowed.
func (c *Cooldowns) CheckAndConsume(user snowflake.ID, resource string, cooldown time.Duration, bypass bool) (allowed bool, remaining int, err error) {
	if bypass {
		metrics.CooldownDecisions.WithLabelValues(resource, "bypass").Inc()
		return true, 0, nil
	}

	now := c.clock.Now().UTC()
	var wait time.Duration
	_, err = c.tbl.Update(domain.CooldownKey{UserID: user, Resource: resource}, func(last time.Time, ok bool) (time.Time, bool) {
		if ok {
			if w := cooldown - now.Sub(last); w > 0 {
				wait = w
				return last, false
			}
		}
		return now, true
	})
	if err != nil {
		return false, 0, err
	}
	if wait > 0 {
		metrics.CooldownDecisions.WithLabelValues(resource, "denied").Inc()
		return false, int(math.Ceil(wait.Seconds())), nil
	}
	metrics.CooldownDecisions.WithLabelValues(resource, "allowed").Inc()
	return true, 0, nil
}

// LastUse returns the stored last-use instant for (user, resource).
func (c *Cooldowns) LastUse(user snowflake.ID, resource string) (time.Time, bool) {
	return c.tbl.Lookup(domain.CooldownKey{UserID: user, Resource: resource})
}
