// Package observability provides OpenTelemetry tracing and metrics setup for
// the tunnel gateway.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Config holds observability configuration.
type Config struct {
	// Enabled installs stdout exporters. When false every instrument is a
	// no-op and nothing is exported.
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Writer receives exported spans and metrics. Defaults to stderr.
	Writer io.Writer
	Logger *zap.Logger
}

// Observability manages OpenTelemetry tracing and metrics.
type Observability struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	propagator     propagation.TextMapPropagator
	logger         *zap.Logger

	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewObservability creates and initializes OpenTelemetry tracing and metrics.
func NewObservability(cfg Config) (*Observability, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tunneld"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	obs := &Observability{
		logger: cfg.Logger,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	if !cfg.Enabled {
		obs.tracer = tracenoop.NewTracerProvider().Tracer(cfg.ServiceName)
		obs.meter = metricnoop.NewMeterProvider().Meter(cfg.ServiceName)
		if err := obs.createMetrics(); err != nil {
			return nil, err
		}
		return obs, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(obs.propagator)
	obs.tracerProvider = tp
	obs.tracer = tp.Tracer(cfg.ServiceName)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	obs.meterProvider = mp
	obs.meter = mp.Meter(cfg.ServiceName)

	if err := obs.createMetrics(); err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	cfg.Logger.Info("OpenTelemetry exporters enabled", zap.String("service", cfg.ServiceName))
	return obs, nil
}

func (o *Observability) createMetrics() error {
	var err error

	o.requestCounter, err = o.meter.Int64Counter(
		"tunnel.api.requests",
		metric.WithDescription("Total number of API requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	o.requestDuration, err = o.meter.Float64Histogram(
		"tunnel.api.duration",
		metric.WithDescription("API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	return nil
}

// Tracer returns the OpenTelemetry tracer.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

// Meter returns the OpenTelemetry meter.
func (o *Observability) Meter() metric.Meter {
	return o.meter
}

// Propagator returns the propagator used for incoming trace headers.
func (o *Observability) Propagator() propagation.TextMapPropagator {
	return o.propagator
}

// RequestCounter returns the API request counter.
func (o *Observability) RequestCounter() metric.Int64Counter {
	return o.requestCounter
}

// RequestDuration returns the API request duration histogram.
func (o *Observability) RequestDuration() metric.Float64Histogram {
	return o.requestDuration
}

// StartSpan starts a new span with the given name and options.
func (o *Observability) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the exporters.
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}

	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}

	return errors.Join(errs...)
}
