// Package moderation implements the time-bounded moderation state of the
// assistant: mutes per (user, guild), cooldowns per (user, resource), the
// sweep that reconciles expired mutes with the muted role, and the content
// filters (spam and job templates) that feed automatic actions.
//
// Mute values are stored through the expiry codec, so whether a member is
// muted is always answerable on demand from the table alone; the sweep only
// exists to undo the external role once a timed mute has run out.
package moderation

import (
	"sort"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/expiry"
	"github.com/tbourn/go-mod-assistant/internal/metrics"
	"github.com/tbourn/go-mod-assistant/internal/table"
)

// MuteTable is the persisted mapping behind Mutes.
type MuteTable = table.Table[domain.MuteKey, expiry.Raw]

// OpenMuteTable loads mutes.json (or any path) with the "<user>,<guild>" key
// layout.
func OpenMuteTable(path string) (*MuteTable, error) {
	return table.Open[domain.MuteKey, expiry.Raw](path, domain.MuteKeys)
}

// ActiveMute is one currently muted member.
type ActiveMute struct {
	UserID snowflake.ID
	State  expiry.State
}

// Mutes is the mute state machine. Transitions overwrite the stored value;
// rows are never deleted, an explicit unmute stores the inactive sentinel.
type Mutes struct {
	tbl   *MuteTable
	clock clockwork.Clock

	locksMu sync.Mutex
	locks   map[domain.MuteKey]*sync.Mutex
}

// NewMutes wraps tbl. A nil clock uses the real clock.
func NewMutes(tbl *MuteTable, clock clockwork.Clock) *Mutes {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Mutes{tbl: tbl, clock: clock, locks: make(map[domain.MuteKey]*sync.Mutex)}
}

// MuteFor mutes the member until now+d and returns that instant. Re-muting
// replaces the previous expiry.
func (m *Mutes) MuteFor(user, guild snowflake.ID, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	key := domain.MuteKey{UserID: user, GuildID: guild}
	unlock := m.lock(key)
	defer unlock()
	raw := expiry.EncodeUntil(m.clock.Now().Add(d))
	if err := m.tbl.Set(key, raw); err != nil {
		return time.Time{}, err
	}
	metrics.MuteTransitions.WithLabelValues("mute_for").Inc()
	until := expiry.Decode(raw).Until
	log.Debug().Str("user", user.String()).Str("guild", guild.String()).Time("until", until).Msg("member muted")
	return until, nil
}

// MutePermanently mutes the member until an explicit Unmute.
func (m *Mutes) MutePermanently(user, guild snowflake.ID) error {
	key := domain.MuteKey{UserID: user, GuildID: guild}
	unlock := m.lock(key)
	defer unlock()
	if err := m.tbl.Set(key, expiry.EncodePermanent()); err != nil {
		return err
	}
	metrics.MuteTransitions.WithLabelValues("mute_permanent").Inc()
	log.Debug().Str("user", user.String()).Str("guild", guild.String()).Msg("member muted permanently")
	return nil
}

// Unmute stores the inactive sentinel and reports whether the member was
// muted at the time of the call.
func (m *Mutes) Unmute(user, guild snowflake.ID) (bool, error) {
	key := domain.MuteKey{UserID: user, GuildID: guild}
	unlock := m.lock(key)
	defer unlock()
	now := m.clock.Now()
	var was bool
	_, err := m.tbl.Update(key, func(cur expiry.Raw, ok bool) (expiry.Raw, bool) {
		was = ok && cur.ActiveAt(now)
		return expiry.EncodeInactive(), !ok || cur != expiry.Inactive
	})
	if err != nil {
		return false, err
	}
	metrics.MuteTransitions.WithLabelValues("unmute").Inc()
	return was, nil
}

// IsCurrentlyMuted reports whether the member is muted right now. A missing
// row and the inactive sentinel both read as not muted.
func (m *Mutes) IsCurrentlyMuted(user, guild snowflake.ID) bool {
	raw, ok := m.tbl.Lookup(domain.MuteKey{UserID: user, GuildID: guild})
	return ok && raw.ActiveAt(m.clock.Now())
}

// State returns the decoded stored state. A missing row decodes as inactive.
func (m *Mutes) State(user, guild snowflake.ID) expiry.State {
	raw, ok := m.tbl.Lookup(domain.MuteKey{UserID: user, GuildID: guild})
	if !ok {
		return expiry.State{Kind: expiry.KindInactive}
	}
	return expiry.Decode(raw)
}

// Active lists the members of guild that are muted now, ordered by user id.
func (m *Mutes) Active(guild snowflake.ID) []ActiveMute {
	now := m.clock.Now()
	var out []ActiveMute
	for k, raw := range m.tbl.Snapshot() {
		if k.GuildID != guild || !raw.ActiveAt(now) {
			continue
		}
		out = append(out, ActiveMute{UserID: k.UserID, State: expiry.Decode(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Now exposes the clock the state machine reads.
func (m *Mutes) Now() time.Time { return m.clock.Now() }

func (m *Mutes) snapshot() map[domain.MuteKey]expiry.Raw { return m.tbl.Snapshot() }

func (m *Mutes) lookup(k domain.MuteKey) (expiry.Raw, bool) { return m.tbl.Lookup(k) }

// lock serializes transitions of one member. The returned func releases it.
func (m *Mutes) lock(k domain.MuteKey) func() {
	m.locksMu.Lock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	m.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

// expiredAs runs fn while holding k's transition lock, but only when the
// stored value is still want and no longer active. It reports whether fn ran.
func (m *Mutes) expiredAs(k domain.MuteKey, want expiry.Raw, fn func()) bool {
	unlock := m.lock(k)
	defer unlock()
	cur, ok := m.lookup(k)
	if !ok || cur != want || cur.ActiveAt(m.clock.Now()) {
		return false
	}
	fn()
	return true
}
