// Package mailbox implements the tunnel response channel: a single-slot,
// self-expiring list per request reference that lets a caller block until
// the agent side pushes the response envelope.
//
// Lifecycle of one reference, seen from the caller:
//
//	Awaiting  - caller issued a blocking pop with timeout T on <namespace>.<ref>
//	Delivered - a producer pushed one envelope; the pop returns it and the
//	            caller deletes the key (consumer-owns-cleanup)
//	Expired   - nothing arrived within T; Await reports no response
//
// The pop and the delete are two commands. The broker cannot block inside a
// pipeline, so the delete cannot ride along with the pop. A push that lands
// after the caller gave up is reclaimed by the mailbox retention instead.
//
// At most one consumer per reference is assumed, not enforced: references
// must be unique per logical request.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/printlink/tunnel/internal/broker"
	"github.com/printlink/tunnel/pkg/tunnel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	// DefaultNamespace is the key prefix shared with existing tunnel readers.
	DefaultNamespace = "octoprinttunnel"
	// DefaultTimeout bounds how long a caller waits for a response.
	DefaultTimeout = 60 * time.Second
	// DefaultRetention bounds how long an unconsumed response survives.
	DefaultRetention = 60 * time.Second
)

// Config holds mailbox configuration.
type Config struct {
	Broker    broker.Broker
	Namespace string
	Timeout   time.Duration
	Retention time.Duration
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// Channel is the response channel. It keeps no per-reference state and is
// safe for concurrent use.
type Channel struct {
	broker    broker.Broker
	namespace string
	timeout   time.Duration
	retention time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates a response channel.
func New(cfg Config) (*Channel, error) {
	if cfg.Broker == nil {
		return nil, errors.New("mailbox: broker is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("mailbox")
	}

	return &Channel{
		broker:    cfg.Broker,
		namespace: cfg.Namespace,
		timeout:   cfg.Timeout,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

// Key returns the mailbox key for ref.
func (c *Channel) Key(ref tunnel.Reference) string {
	return c.namespace + "." + string(ref)
}

// Timeout returns the default wait bound.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// Push encodes env and delivers it to the mailbox of ref.
func (c *Channel) Push(ctx context.Context, ref tunnel.Reference, env *tunnel.Envelope) error {
	data, err := tunnel.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return c.PushRaw(ctx, ref, data)
}

// PushRaw delivers already encoded envelope bytes to the mailbox of ref. The
// push and the retention expiry travel in one pipeline.
func (c *Channel) PushRaw(ctx context.Context, ref tunnel.Reference, data []byte) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "mailbox.push",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("tunnel.ref", string(ref)),
			attribute.Int("tunnel.envelope_bytes", len(data)),
		),
	)
	defer span.End()

	key := c.Key(ref)
	err := c.broker.Pipeline(ctx, func(b broker.Batch) {
		b.LPush(key, data)
		b.Expire(key, c.retention)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "push failed")
		return fmt.Errorf("failed to push response for %s: %w", ref, err)
	}

	c.logger.Debug("Pushed response",
		zap.String("ref", string(ref)),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Await waits up to the default timeout for the response to ref.
func (c *Channel) Await(ctx context.Context, ref tunnel.Reference) (*tunnel.Envelope, bool, error) {
	return c.AwaitTimeout(ctx, ref, c.timeout)
}

// AwaitTimeout waits up to timeout for the response to ref. A missing
// response is reported as ok == false with a nil error. Undecodable bytes
// are reported as tunnel.ErrDecode.
func (c *Channel) AwaitTimeout(ctx context.Context, ref tunnel.Reference, timeout time.Duration) (*tunnel.Envelope, bool, error) {
	data, ok, err := c.AwaitRawTimeout(ctx, ref, timeout)
	if err != nil || !ok {
		return nil, ok, err
	}

	env, err := tunnel.DecodeEnvelope(data)
	if err != nil {
		c.logger.Warn("Received undecodable response",
			zap.String("ref", string(ref)),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		return nil, false, err
	}
	return env, true, nil
}

// AwaitRaw waits up to the default timeout and returns the envelope bytes
// without decoding them.
func (c *Channel) AwaitRaw(ctx context.Context, ref tunnel.Reference) ([]byte, bool, error) {
	return c.AwaitRawTimeout(ctx, ref, c.timeout)
}

// AwaitRawTimeout is AwaitRaw with an explicit wait bound.
func (c *Channel) AwaitRawTimeout(ctx context.Context, ref tunnel.Reference, timeout time.Duration) ([]byte, bool, error) {
	if err := ref.Validate(); err != nil {
		return nil, false, err
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, span := c.tracer.Start(ctx, "mailbox.await",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("tunnel.ref", string(ref)),
			attribute.Int64("tunnel.timeout_ms", timeout.Milliseconds()),
		),
	)
	defer span.End()

	key := c.Key(ref)
	data, ok, err := c.broker.BLPop(ctx, key, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "await failed")
		return nil, false, fmt.Errorf("failed to await response for %s: %w", ref, err)
	}
	if !ok {
		span.SetAttributes(attribute.Bool("tunnel.delivered", false))
		c.logger.Debug("No response before timeout",
			zap.String("ref", string(ref)),
			zap.Duration("timeout", timeout),
		)
		return nil, false, nil
	}

	// The value is already consumed; a failed delete only leaves the key to
	// its own retention, so it is logged rather than returned.
	if _, err := c.broker.Del(context.WithoutCancel(ctx), key); err != nil {
		c.logger.Warn("Failed to delete consumed mailbox",
			zap.String("ref", string(ref)),
			zap.Error(err),
		)
	}

	span.SetAttributes(
		attribute.Bool("tunnel.delivered", true),
		attribute.Int("tunnel.envelope_bytes", len(data)),
	)
	return data, true, nil
}

// Discard removes the mailbox of ref. Callers that abandon an exchange early
// can use it to reclaim the key before its retention runs out.
func (c *Channel) Discard(ctx context.Context, ref tunnel.Reference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if _, err := c.broker.Del(ctx, c.Key(ref)); err != nil {
		return fmt.Errorf("failed to discard mailbox %s: %w", ref, err)
	}
	return nil
}
