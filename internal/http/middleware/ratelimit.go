package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByModeratorOrIP buckets requests by acting moderator, falling back to
// the client IP for anonymous reads.
func KeyByModeratorOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if s := c.GetString(ModeratorKey); s != "" {
			return "mod:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per key. Idle buckets are
// evicted every sweepEvery lookups.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

const sweepEvery = 5000

// NewRateLimiter allows rps requests per second per key with the given
// burst. A nil clock uses the wall clock.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, clock clockwork.Clock) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByModeratorOrIP()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		clock:   clock,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

// allow consumes a token from key's bucket. Eviction runs before the lookup
// so a stale bucket is replaced rather than refreshed.
func (rl *RateLimiter) allow(key string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Handler enforces the limit. Replays flagged by IdempotencyValidator pass
// without consuming a token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ctxKeyRateBypass) || rl.allow(rl.keyFn(c)) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.GetString(requestIDKey),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
