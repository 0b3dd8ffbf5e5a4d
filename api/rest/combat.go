package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rtsmicro/game/combat"
	"github.com/kasuganosora/rtsmicro/game/tick"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"go.uber.org/zap"
)

// CombatHandler serves the decision engine over HTTP.
type CombatHandler struct {
	solver *tick.Solver
	logger *zap.Logger
}

// NewCombatHandler creates a CombatHandler.
func NewCombatHandler(solver *tick.Solver, logger *zap.Logger) *CombatHandler {
	return &CombatHandler{solver: solver, logger: logger}
}

// Assess handles POST /api/combat/assess: group readiness only, no commands.
func (h *CombatHandler) Assess(c *gin.Context) {
	h.handle(c, h.solver.Assess)
}

// Solve handles POST /api/combat/solve: assessment plus one command per unit.
func (h *CombatHandler) Solve(c *gin.Context) {
	h.handle(c, h.solver.Solve)
}

func (h *CombatHandler) handle(c *gin.Context, run func(context.Context, tick.Input) (tick.Result, error)) {
	var in tick.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.TraceID = mw.GetTraceID(c)
	if id := mw.GetBotID(c); id != 0 {
		in.BotID = &id
	}

	res, err := run(c.Request.Context(), in)
	if err != nil {
		status := StatusOf(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("combat tick failed", zap.String("trace_id", in.TraceID), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Recent handles GET /api/combat/recent?n=20. Only the caller's ticks are
// returned.
func (h *CombatHandler) Recent(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "20"))
	out, err := h.solver.Recent(c.Request.Context(), mw.GetBotID(c), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recent feed unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticks": out, "count": len(out)})
}

// StatusOf maps decision errors to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, combat.ErrEmptyGroup):
		return http.StatusBadRequest
	case errors.Is(err, tick.ErrUnknownProfile):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
