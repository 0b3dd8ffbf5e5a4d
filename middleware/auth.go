package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
)

const (
	BotIDKey   = "bot_id"
	BotNameKey = "bot_name"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
)

// SessionKey is the cache key marking tokenStr as a live session.
func SessionKey(tokenStr string) string { return "session:" + tokenStr }

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	tok := strings.TrimPrefix(header, "Bearer ")
	return tok, tok != ""
}

// Authenticate validates tokenStr and checks that its session is still live.
func Authenticate(ctx context.Context, sec config.SecurityConfig, c cache.Cache, tokenStr string) (*Claims, error) {
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
	if err != nil || !exists {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr, ok := BearerToken(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := Authenticate(ctx.Request.Context(), sec, c, tokenStr)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		ctx.Set(BotIDKey, claims.BotID)
		ctx.Set(BotNameKey, claims.BotName)
		ctx.Next()
	}
}

// GetBotID retrieves the authenticated bot ID from the Gin context.
func GetBotID(c *gin.Context) int64 {
	if v, exists := c.Get(BotIDKey); exists {
		return v.(int64)
	}
	return 0
}
