package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/printlink/tunnel/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracingMiddleware starts a server span per request, continuing any
// incoming trace context, and records the API request instruments.
func tracingMiddleware(obs *observability.Observability) echo.MiddlewareFunc {
	propagator := obs.Propagator()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := c.Path()
			ctx, span := obs.Tracer().Start(
				ctx,
				req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.user_agent", req.UserAgent()),
				),
			)
			defer span.End()

			c.SetRequest(req.WithContext(ctx))

			started := time.Now()
			err := next(c)

			status := c.Response().Status
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int64("http.response.size", c.Response().Size),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
			}

			attrs := metric.WithAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			obs.RequestCounter().Add(ctx, 1, attrs)
			obs.RequestDuration().Record(ctx, time.Since(started).Seconds(), attrs)

			return err
		}
	}
}
