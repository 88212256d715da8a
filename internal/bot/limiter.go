package bot

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// visitor holds a single user's bucket and the last time it was used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-user token bucket that drops message floods before any
// command or filter runs. Idle buckets are evicted opportunistically.
//
// This type is safe for concurrent use.
type Limiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration
	clock clockwork.Clock

	mu       sync.Mutex
	visitors map[snowflake.ID]*visitor
	lookups  uint64
}

// gcEvery is how many lookups pass between idle-bucket sweeps.
const gcEvery = 1000

// NewLimiter allows rps events per second per user with the given burst.
// A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int, clock clockwork.Clock) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	return &Limiter{
		rps:      lim,
		burst:    burst,
		ttl:      10 * time.Minute,
		clock:    clock,
		visitors: make(map[snowflake.ID]*visitor),
	}
}

// Allow consumes one token for user.
func (l *Limiter) Allow(user snowflake.ID) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// GC runs before the lookup so a stale bucket is replaced, not refreshed.
	l.lookups++
	if l.lookups >= gcEvery {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.ttl {
				delete(l.visitors, k)
			}
		}
		l.lookups = 0
	}

	v, ok := l.visitors[user]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[user] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Len returns the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
