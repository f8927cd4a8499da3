package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is an unexported type for context keys.
type contextKey string

// TraceIDKey is the context key (and canonical header name) for the Trace ID.
const TraceIDKey contextKey = "X-Trace-ID"

var defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// New builds a text logger writing to w at the given level ("debug", "info", "warn", "error").
func New(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Discard returns a logger that drops everything. Handy for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID stores traceID in ctx under TraceIDKey.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceID returns the trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// FromContext returns base (or the default logger when nil) with the trace_id
// from ctx attached, if present.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = defaultLogger
	}
	traceID := TraceID(ctx)
	if traceID == "" {
		return base
	}
	return base.With("trace_id", traceID)
}

// Fatalf logs an error message and exits the program with status code 1.
// This provides Fatalf-like functionality for slog.Logger.
func Fatalf(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

// LogCircuitBreakerStateChange logs a structured event whenever a circuit breaker
// transitions between states.
//
// Typical transitions: closed -> open, open -> half-open, half-open -> closed.
func LogCircuitBreakerStateChange(logger *slog.Logger, breakerName string, fromState string, toState string) {
	if logger == nil {
		logger = defaultLogger
	}
	logger.Warn(
		"circuit_breaker_state_change",
		"breaker", breakerName,
		"from", fromState,
		"to", toState,
	)
}
