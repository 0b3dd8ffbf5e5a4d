package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/config"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	cache    cache.Cache
	sec      config.SecurityConfig
	sm       *SessionManager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(c cache.Cache, sec config.SecurityConfig, sm *SessionManager, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		cache:  c,
		sec:    sec,
		sm:     sm,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>. The token may also be sent as a
// Bearer header.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr, _ = mw.BearerToken(c)
	}
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.cache, tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(claims.BotID, claims.BotName, conn, h.logger)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	h.sm.Register(ctx, sess)
	cancel()
	h.readPump(sess)
}

// readPump reads messages until the connection closes. Packets of one bot
// are handled in order.
func (h *Handler) readPump(s *Session) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.Int64("bot_id", s.BotID), zap.Error(err))
			}
			return
		}
		if s.IsClosed() {
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

func (h *Handler) handleDisconnect(s *Session) {
	s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.sm.Unregister(ctx, s)
	h.logger.Info("bot disconnected", zap.Int64("bot_id", s.BotID))
}
