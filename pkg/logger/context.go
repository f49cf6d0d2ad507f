package logger

import (
	"context"
	"log/slog"
)

type cycleIDKey struct{}

// WithCycleID stores the id of the current drain cycle in the context
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleIDFromContext returns the drain cycle id, or an empty string
func CycleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(cycleIDKey{}).(string)
	return id
}

func cycleIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := CycleIDFromContext(ctx); id != "" {
		return slog.String("cycle_id", id), true
	}
	return slog.Attr{}, false
}
