package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	"github.com/kasuganosora/rtsmicro/game/tick"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"go.uber.org/zap"
)

const announceChannel = "announce"

const keepaliveEvery = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
// It streams the assessment summaries of the caller's own ticks as
// "assessment" events, plus operator announcements.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr, _ = mw.BearerToken(c)
	}
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.c, tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	ticks, unsubTicks, err := h.pubsub.Subscribe(subCtx, tick.ChannelAssessment)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsubTicks()
	announces, unsubAnnounce, err := h.pubsub.Subscribe(subCtx, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsubAnnounce()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"bot_id\":%d}\n\n", claims.BotID)
	c.Writer.Flush()

	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ticks:
			if !ok {
				return
			}
			if !ownedBy(msg.Payload, claims.BotID) {
				continue
			}
			fmt.Fprintf(c.Writer, "event: assessment\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case msg, ok := <-announces:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: announce\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func ownedBy(payload string, botID int64) bool {
	var s struct {
		BotID *int64 `json:"bot_id"`
	}
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return false
	}
	return s.BotID != nil && *s.BotID == botID
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	b, err := json.Marshal(gin.H{"message": message, "at": time.Now().UTC()})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, announceChannel, string(b))
}

// PostAnnounce handles POST /api/admin/announce.
func (h *Handler) PostAnnounce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Announce(c.Request.Context(), req.Message); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
