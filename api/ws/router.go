package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mw "github.com/kasuganosora/rtsmicro/middleware"
)

// MsgError is the reply type of a failed request.
const MsgError = "error"

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// ErrorPayload is the payload of a MsgError reply.
type ErrorPayload struct {
	Request string `json:"request"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate
// handler. A handler error is answered with a MsgError packet.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.Int64("bot_id", s.BotID), zap.Error(err))
		return
	}

	// Seq 0 opts out of replay protection.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("bot_id", s.BotID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	s.TraceID = uuid.NewString()
	ctx := mw.WithTraceID(context.Background(), s.TraceID)
	ctx = context.WithValue(ctx, ctxKeySeq{}, pkt.Seq)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("bot_id", s.BotID))
		s.Reply(pkt.Seq, MsgError, ErrorPayload{Request: pkt.Type, Message: "unknown message type"})
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("bot_id", s.BotID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		s.Reply(pkt.Seq, MsgError, ErrorPayload{Request: pkt.Type, Message: err.Error(), TraceID: s.TraceID})
	}
}

type ctxKeySeq struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	return mw.TraceIDFrom(ctx)
}

// SeqFromCtx returns the seq of the packet being handled.
func SeqFromCtx(ctx context.Context) uint64 {
	v, _ := ctx.Value(ctxKeySeq{}).(uint64)
	return v
}
