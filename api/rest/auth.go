package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"github.com/kasuganosora/rtsmicro/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler handles bot authentication REST endpoints.
type AuthHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec, logger: logger}
}

type loginRequest struct {
	Name string `json:"name" binding:"required,min=2,max=32"`
	Key  string `json:"key" binding:"required,min=8,max=72"`
}

// Login handles POST /api/auth/login.
// Bots are registered by an operator; unknown names are rejected.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var bot model.Bot
	err := h.db.Where("name = ?", req.Name).First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("login lookup failed", zap.String("bot", req.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(bot.KeyHash), []byte(req.Key)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if bot.Status == model.BotStatusDisabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "bot disabled"})
		return
	}

	token, err := h.issue(c.Request.Context(), bot.ID, bot.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	// Best-effort bookkeeping.
	now := time.Now()
	_ = h.db.Model(&bot).Updates(map[string]interface{}{
		"last_login_at": now,
		"last_login_ip": c.ClientIP(),
	})
	h.logger.Info("bot logged in", zap.Int64("bot_id", bot.ID), zap.String("bot", bot.Name))

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"bot_id":  bot.ID,
		"profile": bot.Profile,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenStr, ok := mw.BearerToken(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(tokenStr))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	botID := mw.GetBotID(c)
	if botID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if old, ok := mw.BearerToken(c); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		_ = h.cache.Del(ctx, mw.SessionKey(old))
		cancel()
	}

	token, err := h.issue(c.Request.Context(), botID, c.GetString(mw.BotNameKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// issue signs a token and stores its session.
func (h *AuthHandler) issue(parent context.Context, botID int64, name string) (string, error) {
	token, err := mw.GenerateToken(botID, name, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), strconv.FormatInt(botID, 10), h.sec.JWTTTLH); err != nil {
		h.logger.Error("session store failed", zap.Int64("bot_id", botID), zap.Error(err))
		return "", err
	}
	return token, nil
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
