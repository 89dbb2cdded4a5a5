// Package logger configures the process-wide slog JSON logger and carries
// trace IDs through context so an order can be followed from signal to fill
// across package boundaries.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type ctxKey struct{}

// Init installs a JSON slog handler tagged with the service name as the
// process default and returns it. Hot-path packages keep using plain
// log.Printf; this is for service-level structured output.
func Init(service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	l := slog.New(h).With(slog.String("service", service))
	slog.SetDefault(l)
	return l
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// TraceID returns the trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// NewTraceID mints a "{scope}-{unixNano}" trace ID; scope is typically a
// symbol or order ID.
func NewTraceID(scope string, ts time.Time) string {
	return scope + "-" + strconv.FormatInt(ts.UnixNano(), 10)
}

// TraceAttrs returns the trace-id slog attribute for ctx, or nil when no
// trace is set. Spread into a logging call: slog.Info("x", TraceAttrs(ctx)...).
func TraceAttrs(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
