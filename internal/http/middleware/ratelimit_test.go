package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func limiterProbe(rl *RateLimiter, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, h := range pre {
		r.Use(h)
	}
	r.Use(rl.Handler())
	r.GET("/probe", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRateLimiter_AllowsWithinBurstThenRejects(t *testing.T) {
	// Effectively no refill during the test window.
	rl := NewRateLimiter(0.001, 2, KeyByAPIKeyOrIP())
	r := limiterProbe(rl)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("request %d: X-RateLimit-Limit = %q; want 2", i, w.Header().Get("X-RateLimit-Limit"))
		}
		if w.Header().Get("X-RateLimit-Remaining") == "" {
			t.Fatalf("request %d: missing X-RateLimit-Remaining", i)
		}

		if w.Code == http.StatusTooManyRequests {
			if w.Header().Get("Retry-After") != "1" {
				t.Fatalf("429 without Retry-After: %v", w.Header())
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["code"] != "rate_limited" {
				t.Fatalf("429 code = %q; want rate_limited", body["code"])
			}
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v; want [200 200 429]", codes)
	}
}

func TestRateLimiter_BucketsAreIndependentPerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, KeyByAPIKeyOrIP())
	setKey := func(id string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ctxKeyAPIKeyID, id)
			c.Next()
		}
	}

	// Drain key A's only token.
	rA := limiterProbe(rl, setKey("A"))
	w := httptest.NewRecorder()
	rA.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("key A first request = %d", w.Code)
	}
	w = httptest.NewRecorder()
	rA.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("key A second request = %d; want 429", w.Code)
	}

	// Key B still has its own bucket.
	rB := limiterProbe(rl, setKey("B"))
	w = httptest.NewRecorder()
	rB.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("key B request = %d; want 200", w.Code)
	}
}

func TestRateLimiter_ReplayBypassSkipsLimiting(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, KeyByAPIKeyOrIP())
	markReplay := func(c *gin.Context) {
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	}
	r := limiterProbe(rl, markReplay)

	// Far beyond the burst; replays never consume tokens.
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("replay %d limited: %d", i, w.Code)
		}
	}
}

func TestKeyByAPIKeyOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fn := KeyByAPIKeyOrIP()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:1234"
	if got := fn(c); got != "ip:203.0.113.7" {
		t.Fatalf("unauthenticated key = %q", got)
	}

	c.Set(ctxKeyAPIKeyID, "abc123")
	if got := fn(c); got != "key:abc123" {
		t.Fatalf("authenticated key = %q", got)
	}
}
