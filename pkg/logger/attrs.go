package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type ctxAttrsKey struct{}

// instance id: hostname + короткий uuid, чтобы различать реплики на одном хосте
func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}

func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}

// ContextWith кладёт в ctx атрибуты, которые FromCtx добавит к логгеру.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

// AttrsFromCtx: trace_id/span_id активного спана и атрибуты из ContextWith.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		out = append(out,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if extra, ok := ctx.Value(ctxAttrsKey{}).([]slog.Attr); ok {
		out = append(out, extra...)
	}
	return out
}
