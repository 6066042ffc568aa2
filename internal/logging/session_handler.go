package logging

import (
	"context"
	"log/slog"
)

// sessionIDHandler injects a session_id attribute into every record.
type sessionIDHandler struct {
	base      slog.Handler
	sessionID string
}

func newSessionIDHandler(base slog.Handler, sessionID string) slog.Handler {
	if base == nil {
		return NoopHandler{}
	}
	return &sessionIDHandler{base: base, sessionID: sessionID}
}

// WithSession returns a logger whose records all carry the given sync session id.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	if sessionID == "" {
		return logger
	}
	return slog.New(newSessionIDHandler(logger.Handler(), sessionID))
}

func (h *sessionIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *sessionIDHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	return h.base.Handle(ctx, record)
}

func (h *sessionIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionIDHandler{base: h.base.WithAttrs(attrs), sessionID: h.sessionID}
}

func (h *sessionIDHandler) WithGroup(name string) slog.Handler {
	return &sessionIDHandler{base: h.base.WithGroup(name), sessionID: h.sessionID}
}
