package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(SecurityOptions{EnableHSTS: true, NoStore: true}))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	h := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Header()
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" || h.Get("Cache-Control") != "no-store" {
		t.Fatalf("baseline headers missing: %v", h)
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS sent over plain HTTP")
	}
	if h.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Fatalf("expose header = %q", h.Get("Access-Control-Expose-Headers"))
	}

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := serve(r, req).Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.TLS = &tls.ConnectionState{}
	if serve(r, req).Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("HSTS missing on TLS request")
	}
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminAuth("s3cret"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := map[string]int{
		"":              http.StatusUnauthorized,
		"Bearer nope":   http.StatusUnauthorized,
		"Basic s3cret":  http.StatusUnauthorized,
		"Bearer s3cret": http.StatusNoContent,
	}
	for auth, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := serve(r, req)
		if w.Code != want {
			t.Fatalf("%q -> %d; want %d", auth, w.Code, want)
		}
		if want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%q: missing challenge", auth)
		}
	}

	open := gin.New()
	open.Use(AdminAuth(""))
	open.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if w := serve(open, httptest.NewRequest(http.MethodGet, "/x", nil)); w.Code != http.StatusNoContent {
		t.Fatalf("empty token must disable auth, got %d", w.Code)
	}
}
