package observability

import (
	"context"

	"github.com/printlink/tunnel/pkg/tunnel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TraceFields returns the ids of the span context carried by ctx as zap
// fields. Remote parents count, so an agent logs under the caller's trace
// even when its own tracer is a noop. No valid span context yields nil.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	fields := []zap.Field{
		zap.Stringer("traceId", sc.TraceID()),
		zap.Stringer("spanId", sc.SpanID()),
	}
	if sc.IsSampled() {
		fields = append(fields, zap.Bool("traceSampled", true))
	}
	return fields
}

// ExchangeLogger scopes base to one tunneled exchange.
func ExchangeLogger(ctx context.Context, base *zap.Logger, ref tunnel.Reference, target tunnel.Target) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := append([]zap.Field{
		zap.Stringer("ref", ref),
		zap.Int64("userId", target.UserID),
		zap.Int64("printerId", target.PrinterID),
		zap.String("transport", string(target.Transport)),
	}, TraceFields(ctx)...)
	return base.With(fields...)
}
