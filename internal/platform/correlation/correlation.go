package correlation

import (
	"context"
	"fmt"
	"log/slog"
)

// Origins of correlated work.
const (
	OriginCommand = "command" // a chat command, keyed by chat message ID
	OriginStream  = "stream"  // a stream delivery, keyed by tweet ID
)

type contextKey struct{}

type entry struct {
	id     string
	origin string
}

// WithID returns a new context carrying the given correlation ID and its origin.
// Platform-assigned IDs are used as-is so log lines can be matched against the chat
// message or tweet that caused them.
func WithID(ctx context.Context, origin, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, entry{id: id, origin: origin})
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	e, ok := ctx.Value(contextKey{}).(entry)
	return e.id, ok && e.id != ""
}

// Origin extracts the origin recorded with the correlation ID.
func Origin(ctx context.Context) string {
	e, _ := ctx.Value(contextKey{}).(entry)
	return e.origin
}

// Handler wraps an existing slog.Handler to inject "correlation_id" and "origin"
// attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if e, ok := ctx.Value(contextKey{}).(entry); ok && e.id != "" {
		r.AddAttrs(slog.String("correlation_id", e.id))
		if e.origin != "" {
			r.AddAttrs(slog.String("origin", e.origin))
		}
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
