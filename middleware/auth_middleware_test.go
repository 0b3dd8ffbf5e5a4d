package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSec = config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}

func setupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.CacheConfig{})
	require.NoError(t, err)
	return c
}

func newProtectedRouter(c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSec, c))
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"bot_id": GetBotID(ctx), "bot_name": ctx.GetString(BotNameKey)})
	})
	return r
}

func authStatus(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_Rejections(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(c)

	assert.Equal(t, http.StatusUnauthorized, authStatus(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, authStatus(r, "Token abc123").Code)
	assert.Equal(t, http.StatusUnauthorized, authStatus(r, "Bearer ").Code)

	w := authStatus(r, "Bearer notavalidtoken")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")

	// valid JWT without a session in cache
	token, err := GenerateToken(42, "bot", "secret", time.Hour)
	require.NoError(t, err)
	w = authStatus(r, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session expired")
}

func TestAuth_ValidSession(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(c)

	token, err := GenerateToken(42, "terran-bot", "secret", time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), SessionKey(token), "42", time.Hour))

	w := authStatus(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bot_id":42,"bot_name":"terran-bot"}`, w.Body.String())
}

func TestAuthenticate_Errors(t *testing.T) {
	c := setupTestCache(t)
	_, err := Authenticate(context.Background(), testSec, c, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, _ := GenerateToken(1, "b", "secret", time.Hour)
	_, err = Authenticate(context.Background(), testSec, c, token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestGetBotID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, int64(0), GetBotID(c))
	c.Set(BotIDKey, int64(99))
	assert.Equal(t, int64(99), GetBotID(c))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(logger))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))
}

func TestLogger_StatusLevels(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for path, code := range map[string]int{"/ok": 200, "/bad": 400, "/fail": 500} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, w.Code)
	}
}
