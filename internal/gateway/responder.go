package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/printlink/tunnel/internal/dispatch"
	"github.com/printlink/tunnel/internal/metrics"
	"github.com/printlink/tunnel/internal/observability"
	"github.com/printlink/tunnel/internal/stats"
	"github.com/printlink/tunnel/pkg/tunnel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Listener subscribes an agent to the requests of one printer.
type Listener interface {
	Listen(ctx context.Context, printerID int64, handler dispatch.Handler) (dispatch.Subscription, error)
}

// AgentHandler turns a delivered request into a response envelope.
type AgentHandler func(ctx context.Context, req *tunnel.Request) (*tunnel.Envelope, error)

// Responder pushes agent responses into the mailbox.
type Responder struct {
	cfg Config
}

// NewResponder creates a responder. The Deliverer in cfg is not used.
func NewResponder(cfg Config) (*Responder, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Responder{cfg: cfg}, nil
}

// Respond encodes env and pushes it to the mailbox named by env.Ref.
func (r *Responder) Respond(ctx context.Context, target tunnel.Target, env *tunnel.Envelope) error {
	if env == nil {
		return fmt.Errorf("envelope is nil")
	}
	data, err := tunnel.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return r.push(ctx, target, env.Ref, data)
}

// RespondRaw pushes an already encoded envelope. The payload must decode;
// anything else is rejected with ErrDecode before it reaches the mailbox.
func (r *Responder) RespondRaw(ctx context.Context, target tunnel.Target, ref tunnel.Reference, data []byte) error {
	if _, err := tunnel.DecodeEnvelope(data); err != nil {
		return err
	}
	return r.push(ctx, target, ref, data)
}

func (r *Responder) push(ctx context.Context, target tunnel.Target, ref tunnel.Reference, data []byte) error {
	if err := target.Validate(); err != nil {
		return err
	}

	ctx, span := r.cfg.Tracer.Start(ctx, "gateway.Respond",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("tunnel.ref", ref.String()),
			attribute.Int("tunnel.bytes", len(data)),
		),
	)
	defer span.End()

	if err := r.cfg.Mailbox.PushRaw(ctx, ref, data); err != nil {
		span.RecordError(err)
		return err
	}

	transport := string(target.Transport)
	r.cfg.Metrics.RecordBytes(metrics.DirectionReceived, transport, len(data))
	recordStats(ctx, r.cfg, observability.ExchangeLogger(ctx, r.cfg.Logger, ref, target), stats.Received, target, len(data))
	return nil
}

// Serve answers every request delivered for target.PrinterID with handler
// until ctx is cancelled. A handler error or a missing envelope is answered
// with a 502 envelope so the waiting caller is released.
func (r *Responder) Serve(ctx context.Context, l Listener, target tunnel.Target, handler AgentHandler) error {
	if err := target.Validate(); err != nil {
		return err
	}

	sub, err := l.Listen(ctx, target.PrinterID, func(ctx context.Context, req *tunnel.Request) error {
		env, err := handler(ctx, req)
		if err == nil && env == nil {
			err = errors.New("agent handler returned no envelope")
		}
		if err != nil {
			r.cfg.Logger.Warn("Agent handler failed",
				zap.String("ref", req.Ref.String()),
				zap.Error(err),
			)
			env = &tunnel.Envelope{
				Status: http.StatusBadGateway,
				Body:   []byte(err.Error()),
			}
		}
		env.Ref = req.Ref
		return r.Respond(ctx, target, env)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	r.cfg.Logger.Info("Agent serving",
		zap.Int64("userId", target.UserID),
		zap.Int64("printerId", target.PrinterID),
		zap.String("transport", string(target.Transport)),
	)

	<-ctx.Done()
	return nil
}

// Echo answers with status 200 and the request body.
func Echo(_ context.Context, req *tunnel.Request) (*tunnel.Envelope, error) {
	headers := map[string][]string{}
	if ct, ok := req.Headers["Content-Type"]; ok {
		headers["Content-Type"] = ct
	}
	return &tunnel.Envelope{
		Status:  http.StatusOK,
		Headers: headers,
		Body:    req.Body,
	}, nil
}
