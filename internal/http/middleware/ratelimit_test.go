package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

func TestKeyByModeratorOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByModeratorOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ModeratorKey, "1111")
	if got := KeyByModeratorOrIP()(c); got != "mod:1111" {
		t.Fatalf("moderator key = %q", got)
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fc := clockwork.NewFakeClock()
	rl := NewRateLimiter(1, 2, nil, fc)

	r := gin.New()
	r.Use(Moderator(), rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(mod string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderModeratorID, mod)
		return serve(r, req).Code
	}

	if hit("1111") != http.StatusNoContent || hit("1111") != http.StatusNoContent {
		t.Fatalf("burst rejected")
	}
	if code := hit("1111"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d; want 429", code)
	}
	if hit("2222") != http.StatusNoContent {
		t.Fatalf("buckets must be per moderator")
	}
	fc.Advance(time.Second)
	if hit("1111") != http.StatusNoContent {
		t.Fatalf("bucket did not refill")
	}
}

func TestRateLimiter_BypassForReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1, nil, clockwork.NewFakeClock())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}, rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d; want 429", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Replay", "1")
	if w := serve(r, req); w.Code != http.StatusNoContent {
		t.Fatalf("replay = %d; want 204", w.Code)
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rl := NewRateLimiter(1, 1, nil, fc)
	rl.allow("old")
	fc.Advance(11 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		rl.allow("new")
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["old"]; ok || len(rl.buckets) != 1 {
		t.Fatalf("idle bucket kept: %d buckets", len(rl.buckets))
	}
}
