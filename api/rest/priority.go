package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/game/tick"
	"go.uber.org/zap"
)

// PriorityHandler manages named target priority profiles.
type PriorityHandler struct {
	store  *tick.ProfileStore
	logger *zap.Logger
}

// NewPriorityHandler creates a PriorityHandler.
func NewPriorityHandler(store *tick.ProfileStore, logger *zap.Logger) *PriorityHandler {
	return &PriorityHandler{store: store, logger: logger}
}

// List handles GET /api/profiles.
func (h *PriorityHandler) List(c *gin.Context) {
	profiles, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list profiles failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// Get handles GET /api/profiles/:name.
func (h *PriorityHandler) Get(c *gin.Context) {
	prof, err := h.store.Get(c.Request.Context(), c.Param("name"))
	if errors.Is(err, tick.ErrUnknownProfile) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, prof)
}

type saveProfileRequest struct {
	Description string            `json:"description" binding:"max=255"`
	Priorities  combat.Priorities `json:"priorities" binding:"required"`
}

// Put handles PUT /api/profiles/:name, creating or replacing the profile.
func (h *PriorityHandler) Put(c *gin.Context) {
	name := c.Param("name")
	if len(name) == 0 || len(name) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile name"})
		return
	}
	var req saveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prof, err := h.store.Save(c.Request.Context(), name, req.Description, req.Priorities)
	if err != nil {
		h.logger.Error("save profile failed", zap.String("profile", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, prof)
}

// Delete handles DELETE /api/profiles/:name.
func (h *PriorityHandler) Delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("name"))
	if errors.Is(err, tick.ErrUnknownProfile) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
