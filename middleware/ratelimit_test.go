package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(r rate.Limit, b int) *gin.Engine {
	eng := gin.New()
	eng.Use(RateLimit(r, b))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func TestRateLimit_AllowsFirst(t *testing.T) {
	r := newRateLimitRouter(100, 5)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_Burst(t *testing.T) {
	// Burst of 3, then reject
	r := newRateLimitRouter(0.001, 3) // near-zero refill so we exhaust quickly
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.1.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should be allowed", i+1)
	}
	// 4th request should be rejected
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "10.0.1.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_PerIP(t *testing.T) {
	// Two IPs with burst=1 each → each gets one allowed request
	r := newRateLimitRouter(0.001, 1)

	for _, ip := range []string{"10.1.1.1", "10.1.1.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "first request from %s should be OK", ip)
	}

	// Second request from first IP should be rejected
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "10.1.1.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLimiters_Evict(t *testing.T) {
	l := NewLimiters(0.001, 1)
	assert.True(t, l.Allow("bot:1"))
	assert.False(t, l.Allow("bot:1"))

	l.evict(time.Now().Add(time.Minute))
	assert.True(t, l.Allow("bot:1"), "evicted keys start with a fresh bucket")
}

func TestBotRateLimit_KeyedByBot(t *testing.T) {
	l := NewLimiters(0.001, 1)
	eng := gin.New()
	eng.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Bot"); id != "" {
			c.Set(BotIDKey, map[string]int64{"1": 1, "2": 2}[id])
		}
		c.Next()
	})
	eng.Use(BotRateLimit(l))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(bot string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.2.0.1")
		if bot != "" {
			req.Header.Set("X-Bot", bot)
		}
		w := httptest.NewRecorder()
		eng.ServeHTTP(w, req)
		return w.Code
	}

	// same address, separate buckets per bot
	assert.Equal(t, http.StatusOK, call("1"))
	assert.Equal(t, http.StatusOK, call("2"))
	assert.Equal(t, http.StatusTooManyRequests, call("1"))
	assert.Equal(t, http.StatusOK, call(""), "anonymous falls back to the address")

	// the WS handler shares the registry through BotKey
	assert.False(t, l.Allow(BotKey(2)))
	assert.Equal(t, "bot:42", BotKey(42))
}
