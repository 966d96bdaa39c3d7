// Package gateway ties the tunnel pieces together. The Gateway is the
// requesting side: it mints a reference, hands the request to the delivery
// path and blocks on the response mailbox. The Responder is the agent side:
// it pushes envelopes back into the mailbox.
//
// Both sides account traffic in the monthly stats buckets. Stats are best
// effort: a failed update is logged and counted, never returned.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/printlink/tunnel/internal/circuitbreaker"
	"github.com/printlink/tunnel/internal/mailbox"
	"github.com/printlink/tunnel/internal/metrics"
	"github.com/printlink/tunnel/internal/observability"
	"github.com/printlink/tunnel/internal/stats"
	"github.com/printlink/tunnel/pkg/tunnel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Deliverer hands a request to the agent of a target and reports the
// number of bytes sent.
type Deliverer interface {
	Deliver(ctx context.Context, target tunnel.Target, req *tunnel.Request) (int, error)
}

// Config holds the dependencies shared by Gateway and Responder.
type Config struct {
	Mailbox   *mailbox.Channel
	Stats     *stats.Aggregator
	Deliverer Deliverer
	// Metrics may be nil.
	Metrics *metrics.Collector
	// Breakers fail requests fast for printers that keep not answering.
	// Nil disables them.
	Breakers *circuitbreaker.Manager
	Logger  *zap.Logger
	Tracer  trace.Tracer
	// Now stamps stats updates. Defaults to time.Now.
	Now func() time.Time
}

func (cfg *Config) defaults() error {
	if cfg.Mailbox == nil {
		return errors.New("gateway: mailbox is required")
	}
	if cfg.Stats == nil {
		return errors.New("gateway: stats aggregator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("gateway")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return nil
}

// Gateway performs tunneled request/response exchanges.
type Gateway struct {
	cfg Config
}

// New creates a gateway.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if cfg.Deliverer == nil {
		return nil, errors.New("gateway: deliverer is required")
	}
	return &Gateway{cfg: cfg}, nil
}

// Do delivers req to the agent of target and waits for its response.
//
// A response that does not arrive within the mailbox timeout yields
// (nil, false, nil). The reference on req is replaced by a fresh one.
func (g *Gateway) Do(ctx context.Context, target tunnel.Target, req *tunnel.Request) (*tunnel.Envelope, bool, error) {
	if err := target.Validate(); err != nil {
		return nil, false, err
	}
	if req == nil {
		return nil, false, errors.New("request is nil")
	}

	out := *req
	out.Ref = tunnel.NewReference()
	transport := string(target.Transport)

	ctx, span := g.cfg.Tracer.Start(ctx, "gateway.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tunnel.ref", out.Ref.String()),
			attribute.Int64("tunnel.user", target.UserID),
			attribute.Int64("tunnel.printer", target.PrinterID),
			attribute.String("tunnel.transport", transport),
		),
	)
	defer span.End()

	logger := observability.ExchangeLogger(ctx, g.cfg.Logger, out.Ref, target)

	if !g.cfg.Breakers.Allow(target.PrinterID, out.Ref.String()) {
		g.cfg.Metrics.RecordRequest(transport, metrics.OutcomeCircuitOpen)
		span.SetStatus(codes.Error, "circuit open")
		return nil, false, fmt.Errorf("%w: printer %d", circuitbreaker.ErrOpen, target.PrinterID)
	}

	sent, err := g.cfg.Deliverer.Deliver(ctx, target, &out)
	if err != nil {
		g.cfg.Breakers.RecordFailure(target.PrinterID)
		g.cfg.Metrics.RecordRequest(transport, metrics.OutcomeDispatchError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, false, err
	}
	g.cfg.Metrics.RecordBytes(metrics.DirectionSent, transport, sent)
	recordStats(ctx, g.cfg, logger, stats.Sent, target, sent)

	started := time.Now()
	env, ok, err := g.cfg.Mailbox.Await(ctx, out.Ref)
	g.cfg.Metrics.RecordAwait(transport, time.Since(started))

	// Broker errors say nothing about the printer and leave its breaker alone.
	switch {
	case err != nil && errors.Is(err, tunnel.ErrDecode):
		g.cfg.Breakers.RecordFailure(target.PrinterID)
		g.cfg.Metrics.RecordRequest(transport, metrics.OutcomeDecodeError)
	case err != nil:
		g.cfg.Metrics.RecordRequest(transport, metrics.OutcomeBrokerError)
	case !ok:
		g.cfg.Breakers.RecordFailure(target.PrinterID)
		g.cfg.Metrics.RecordRequest(transport, metrics.OutcomeNoResponse)
		logger.Warn("No response from agent", zap.Duration("timeout", g.cfg.Mailbox.Timeout()))
	default:
		g.cfg.Breakers.RecordSuccess(target.PrinterID)
		g.cfg.Metrics.RecordRequest(transport, metrics.OutcomeDelivered)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "await failed")
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("tunnel.responded", ok))
	return env, ok, nil
}

// recordStats updates the traffic bucket for one direction. Failures are
// logged and counted only.
func recordStats(ctx context.Context, cfg Config, logger *zap.Logger, dir stats.Direction, target tunnel.Target, n int) {
	ctx = context.WithoutCancel(ctx)
	record := cfg.Stats.RecordSent
	if dir == stats.Received {
		record = cfg.Stats.RecordReceived
	}
	if err := record(ctx, cfg.Now(), target.UserID, target.PrinterID, target.Transport, int64(n)); err != nil {
		cfg.Metrics.RecordStatsFailure(string(dir))
		logger.Warn("Failed to update traffic stats",
			zap.String("direction", string(dir)),
			zap.Error(fmt.Errorf("record %d bytes: %w", n, err)),
		)
	}
}
