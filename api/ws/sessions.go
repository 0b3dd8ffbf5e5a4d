package ws

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/model"
	"go.uber.org/zap"
)

// SessionManager tracks connected bots and mirrors them into the shared
// online set so other instances and the admin API can see them.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	cache    cache.Cache
	logger   *zap.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(c cache.Cache, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*Session),
		cache:    c,
		logger:   logger,
	}
}

// Register adds s. A previous session of the same bot is closed.
func (sm *SessionManager) Register(ctx context.Context, s *Session) {
	sm.mu.Lock()
	if old, ok := sm.sessions[s.BotID]; ok {
		old.Close()
		sm.logger.Info("duplicate session displaced", zap.Int64("bot_id", s.BotID))
	}
	sm.sessions[s.BotID] = s
	sm.mu.Unlock()

	if err := sm.cache.SAdd(ctx, model.OnlineBotsKey, botKey(s.BotID)); err != nil {
		sm.logger.Warn("online set add failed", zap.Int64("bot_id", s.BotID), zap.Error(err))
	}
	sm.logger.Info("bot session registered", zap.Int64("bot_id", s.BotID), zap.String("bot", s.BotName))
}

// Unregister removes s unless it was already displaced by a newer session.
func (sm *SessionManager) Unregister(ctx context.Context, s *Session) {
	sm.mu.Lock()
	cur, ok := sm.sessions[s.BotID]
	if !ok || cur != s {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, s.BotID)
	sm.mu.Unlock()

	if err := sm.cache.SRem(ctx, model.OnlineBotsKey, botKey(s.BotID)); err != nil {
		sm.logger.Warn("online set remove failed", zap.Int64("bot_id", s.BotID), zap.Error(err))
	}
	sm.logger.Info("bot session unregistered", zap.Int64("bot_id", s.BotID))
}

// Get returns the session of botID, or nil.
func (sm *SessionManager) Get(botID int64) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[botID]
}

// Count returns the number of connected bots.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CloseAll closes every session and waits up to timeout for them to
// unregister.
func (sm *SessionManager) CloseAll(timeout time.Duration) {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && sm.Count() > 0 {
		time.Sleep(50 * time.Millisecond)
	}
}

func botKey(id int64) string { return strconv.FormatInt(id, 10) }
