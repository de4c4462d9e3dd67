// Package correlation ties the log lines of one vote or room request
// together, including the fan-out work that outlives the request.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const (
	// Header carries the correlation ID on requests and responses.
	Header = "X-Correlation-ID"

	logKey      = "correlation_id"
	idBytes     = 4
	maxIDLength = 64
)

type ctxKey struct{}

// NewID returns a fresh 8-character hex ID.
func NewID() string {
	var b [idBytes]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// FromHeader returns the caller's ID when it is short printable ASCII, and a
// fresh ID otherwise.
func FromHeader(value string) string {
	if value == "" || len(value) > maxIDLength {
		return NewID()
	}
	for i := 0; i < len(value); i++ {
		if value[i] <= ' ' || value[i] > '~' {
			return NewID()
		}
	}
	return value
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID reports the ID stored in ctx. An empty ID counts as absent.
func ID(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id, id != ""
}

// Detach keeps only the correlation ID of ctx. Broadcast tasks run on the
// detached context so they survive the vote request that queued them.
func Detach(ctx context.Context) context.Context {
	if id, ok := ID(ctx); ok {
		return WithID(context.Background(), id)
	}
	return context.Background()
}

// Handler is a slog.Handler that stamps records with the ID found in the
// logging context.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	if id, ok := ID(ctx); ok {
		rec.AddAttrs(slog.String(logKey, id))
	}
	if err := h.next.Handle(ctx, rec); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.next.WithAttrs(attrs))
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.next.WithGroup(name))
}
