package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/rtsmicro/game/tick"
	mw "github.com/kasuganosora/rtsmicro/middleware"
	"go.uber.org/zap"
)

// Message types of the combat protocol.
const (
	MsgTick         = "tick"
	MsgTickResult   = "tick_result"
	MsgAssess       = "assess"
	MsgAssessResult = "assess_result"
	MsgPing         = "ping"
	MsgPong         = "pong"
)

// ErrRateLimited is returned when a bot sends ticks faster than allowed.
var ErrRateLimited = errors.New("rate limit exceeded")

type combatHandlers struct {
	solver   *tick.Solver
	limiters *mw.Limiters
	logger   *zap.Logger
}

// RegisterCombatHandlers wires the tick protocol onto r. limiters may be nil.
func RegisterCombatHandlers(r *Router, solver *tick.Solver, limiters *mw.Limiters, logger *zap.Logger) {
	h := &combatHandlers{solver: solver, limiters: limiters, logger: logger}
	r.On(MsgTick, h.onTick)
	r.On(MsgAssess, h.onAssess)
	r.On(MsgPing, func(ctx context.Context, s *Session, _ json.RawMessage) error {
		s.Reply(SeqFromCtx(ctx), MsgPong, struct{}{})
		return nil
	})
}

func (h *combatHandlers) onTick(ctx context.Context, s *Session, payload json.RawMessage) error {
	return h.run(ctx, s, payload, h.solver.Solve, MsgTickResult)
}

func (h *combatHandlers) onAssess(ctx context.Context, s *Session, payload json.RawMessage) error {
	return h.run(ctx, s, payload, h.solver.Assess, MsgAssessResult)
}

func (h *combatHandlers) run(ctx context.Context, s *Session, payload json.RawMessage,
	fn func(context.Context, tick.Input) (tick.Result, error), reply string) error {
	if h.limiters != nil && !h.limiters.Allow(mw.BotKey(s.BotID)) {
		return ErrRateLimited
	}
	var in tick.Input
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	botID := s.BotID
	in.BotID = &botID
	in.TraceID = TraceIDFromCtx(ctx)

	res, err := fn(ctx, in)
	if err != nil {
		return err
	}
	s.Reply(SeqFromCtx(ctx), reply, res)
	return nil
}
