// Package expiry encodes moderation time semantics into one totally ordered
// scalar so they can live in a persisted table value.
//
// Three states share the int64 domain of Unix milliseconds:
//
//	Inactive     math.MinInt64   (explicitly lifted, never active)
//	ActiveUntil  t.UnixMilli()   (active while now < t)
//	Permanent    math.MaxInt64   (active until explicitly lifted)
//
// Every consumer can answer "is this active right now" with a single
// comparison (Raw.ActiveAt), while the sentinels stay distinguishable by
// equality for callers that need to tell an explicit unmute or mute-forever
// apart from a time based expiry.
package expiry

import (
	"math"
	"time"
)

// Raw is the stored form of an expiry: Unix milliseconds or a sentinel.
type Raw int64

const (
	// Permanent marks a state that never expires on its own.
	Permanent Raw = math.MaxInt64
	// Inactive marks a state that is not active at all.
	Inactive Raw = math.MinInt64
)

// Kind is the decoded meaning of a Raw value.
type Kind int

const (
	KindInactive Kind = iota
	KindPermanent
	KindActiveUntil
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInactive:
		return "inactive"
	case KindPermanent:
		return "permanent"
	case KindActiveUntil:
		return "active_until"
	default:
		return "unknown"
	}
}

// State is the decoded form of a Raw value. Until is only meaningful for
// KindActiveUntil and is always UTC.
type State struct {
	Kind  Kind
	Until time.Time
}

// ActiveAt reports whether the decoded state is active at now.
func (s State) ActiveAt(now time.Time) bool {
	switch s.Kind {
	case KindPermanent:
		return true
	case KindActiveUntil:
		return now.Before(s.Until)
	default:
		return false
	}
}

// EncodePermanent returns the "never expires" sentinel.
func EncodePermanent() Raw { return Permanent }

// EncodeInactive returns the "not active" sentinel.
func EncodeInactive() Raw { return Inactive }

// EncodeUntil returns the instant t as Unix milliseconds. Instants that would
// collide with a sentinel are clamped one millisecond inside the range.
func EncodeUntil(t time.Time) Raw {
	ms := t.UnixMilli()
	switch {
	case ms >= int64(Permanent):
		return Permanent - 1
	case ms <= int64(Inactive):
		return Inactive + 1
	}
	return Raw(ms)
}

// Decode maps a raw value back to its state.
func Decode(r Raw) State {
	switch r {
	case Permanent:
		return State{Kind: KindPermanent}
	case Inactive:
		return State{Kind: KindInactive}
	default:
		return State{Kind: KindActiveUntil, Until: time.UnixMilli(int64(r)).UTC()}
	}
}

// ActiveAt reports whether r is active at now: raw > now.
func (r Raw) ActiveAt(now time.Time) bool {
	return r > Raw(now.UnixMilli())
}
