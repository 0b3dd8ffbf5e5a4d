package rest

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/rtsmicro/cache"
	"github.com/kasuganosora/rtsmicro/journal"
	"github.com/kasuganosora/rtsmicro/model"
	"github.com/kasuganosora/rtsmicro/scheduler"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db      *gorm.DB
	cache   cache.Cache
	sched   *scheduler.Scheduler
	journal *journal.Journal
	logger  *zap.Logger
	started time.Time
}

// NewAdminHandler creates an AdminHandler. j may be nil when journaling is off.
func NewAdminHandler(
	db *gorm.DB,
	c cache.Cache,
	sched *scheduler.Scheduler,
	j *journal.Journal,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, cache: c, sched: sched, journal: j, logger: logger, started: time.Now()}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	online, err := h.cache.SMembers(ctx, model.OnlineBotsKey)
	if err != nil {
		h.logger.Warn("online bots read failed", zap.Error(err))
	}
	out := gin.H{
		"uptime_s":        int64(time.Since(h.started).Seconds()),
		"goroutines":      runtime.NumGoroutine(),
		"online_bots":     len(online),
		"scheduler_tasks": h.sched.ListTickers(),
	}

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			out["rss_bytes"] = mi.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			out["cpu_percent"] = cpu
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			out["threads"] = n
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["host_mem_used_percent"] = vm.UsedPercent
	}
	c.JSON(http.StatusOK, out)
}

// ListSchedulerTasks returns run statistics of all periodic tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSchedulerTask runs a periodic task immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	name := c.Param("name")
	err := h.sched.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.Info("admin ran task", zap.String("task", name))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

type createBotRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=32"`
	Profile string `json:"profile" binding:"max=64"`
}

// CreateBot registers a bot and returns its key. The key is shown only once.
// POST /api/admin/bots
func (h *AdminHandler) CreateBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	bot := model.Bot{Name: req.Name, KeyHash: string(hash), Status: model.BotStatusActive, Profile: req.Profile}
	if err := h.db.Create(&bot).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "bot name already taken"})
			return
		}
		h.logger.Error("create bot failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.logger.Info("bot registered", zap.Int64("bot_id", bot.ID), zap.String("bot", bot.Name))
	c.JSON(http.StatusCreated, gin.H{"bot": bot, "key": key})
}

// ListBots returns all registered bots and whether each is connected.
// GET /api/admin/bots
func (h *AdminHandler) ListBots(c *gin.Context) {
	var bots []model.Bot
	if err := h.db.Order("id").Find(&bots).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	online, _ := h.cache.SMembers(c.Request.Context(), model.OnlineBotsKey)
	isOnline := make(map[string]bool, len(online))
	for _, id := range online {
		isOnline[id] = true
	}
	type botInfo struct {
		model.Bot
		Online bool `json:"online"`
	}
	out := make([]botInfo, 0, len(bots))
	for _, b := range bots {
		out = append(out, botInfo{Bot: b, Online: isOnline[strconv.FormatInt(b.ID, 10)]})
	}
	c.JSON(http.StatusOK, gin.H{"bots": out, "count": len(out)})
}

// SetBotStatus enables or disables a bot.
// POST /api/admin/bots/:id/status
func (h *AdminHandler) SetBotStatus(c *gin.Context) {
	botID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Disabled bool `json:"disabled"`
	}
	_ = c.ShouldBindJSON(&req)

	status := model.BotStatusActive
	if req.Disabled {
		status = model.BotStatusDisabled
	}
	result := h.db.Model(&model.Bot{}).Where("id = ?", botID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// Decisions returns the newest journaled decisions.
// GET /api/admin/decisions?bot_id=1&limit=50
func (h *AdminHandler) Decisions(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	var botID *int64
	if s := c.Query("bot_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bot_id"})
			return
		}
		botID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.journal.Recent(c.Request.Context(), botID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": logs, "count": len(logs)})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503) so the server
// cannot be deployed without protection by accident.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
