package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (l *ipLimiter) touch(now time.Time) {
	l.mu.Lock()
	l.lastSeen = now
	l.mu.Unlock()
}

func (l *ipLimiter) idleSince(cutoff time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen.Before(cutoff)
}

// Limiters is a per-key token-bucket registry. It is shared by the HTTP
// middleware (keyed by client IP) and the WebSocket tick handler (keyed by bot).
type Limiters struct {
	r rate.Limit
	b int
	m sync.Map
}

// NewLimiters creates a registry and starts evicting keys idle for 10 minutes.
func NewLimiters(r rate.Limit, b int) *Limiters {
	l := &Limiters{r: r, b: b}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.evict(time.Now().Add(-10 * time.Minute))
		}
	}()
	return l
}

// Allow consumes one token of key's bucket.
func (l *Limiters) Allow(key string) bool {
	v, _ := l.m.LoadOrStore(key, &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)})
	il := v.(*ipLimiter)
	il.touch(time.Now())
	return il.limiter.Allow()
}

func (l *Limiters) evict(cutoff time.Time) {
	l.m.Range(func(k, v interface{}) bool {
		if v.(*ipLimiter).idleSince(cutoff) {
			l.m.Delete(k)
		}
		return true
	})
}

// BotKey is the limiter key of an authenticated bot.
func BotKey(botID int64) string { return "bot:" + strconv.FormatInt(botID, 10) }

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return limitBy(NewLimiters(r, b), func(c *gin.Context) string { return c.ClientIP() })
}

// BotRateLimit limits authenticated routes per bot. It must run after Auth;
// unauthenticated requests fall back to the client IP.
func BotRateLimit(l *Limiters) gin.HandlerFunc {
	return limitBy(l, func(c *gin.Context) string {
		if id := GetBotID(c); id != 0 {
			return BotKey(id)
		}
		return c.ClientIP()
	})
}

func limitBy(l *Limiters, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
