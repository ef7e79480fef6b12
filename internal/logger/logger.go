// Package logger configures structured JSON logging for the service
// binaries and carries trace IDs through context so a bar can be
// followed across pipeline stages.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type ctxKey struct{}

// Init returns a JSON slog.Logger tagged with the service name and
// installs it as the process default, so plain slog.Info calls in
// other packages inherit the handler.
func Init(service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	lg := slog.New(h).With(slog.String("service", service))
	slog.SetDefault(lg)
	return lg
}

// WithTraceID stores a trace ID in the context for downstream stages.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// TraceID extracts the trace ID from context, "" when unset.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// GenerateTraceID derives a trace ID from a symbol and a timestamp:
// "{symbol}-{unixNano}". Unique per bar without a UUID dependency.
func GenerateTraceID(symbol string, ts time.Time) string {
	return symbol + "-" + strconv.FormatInt(ts.UnixNano(), 10)
}

// LogWithTrace returns slog attrs carrying the context's trace ID, nil
// when there is none. Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
