package logger

import (
	"context"

	"openpaws/pkg/tenancy"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FromContext returns the global logger annotated with the span and the
// organization scope found in ctx.
func FromContext(ctx context.Context, fields ...zap.Field) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	out := make([]zap.Field, 0, len(fields)+4)
	if sc.IsValid() {
		out = append(out,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if s, ok := tenancy.FromContext(ctx); ok {
		out = append(out,
			zap.String("organization_id", s.TenantID),
			zap.String("caller_id", s.CallerID),
		)
	}
	return zap.L().With(append(out, fields...)...)
}
