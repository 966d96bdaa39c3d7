// Package dispatch delivers tunneled requests to printer agents over NATS.
//
// Delivery is fire-and-forget: the gateway publishes the request and then
// waits on the response mailbox. Nothing here tracks whether an agent
// received the request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/printlink/tunnel/pkg/tunnel"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the root of every delivery subject.
const DefaultSubjectPrefix = "tunnel"

// Handler processes a request delivered to an agent.
type Handler func(ctx context.Context, req *tunnel.Request) error

// Subscription is an active agent listener.
type Subscription interface {
	Unsubscribe() error
}

// Config holds dispatcher configuration.
type Config struct {
	Logger *zap.Logger
	// URLs of an external NATS cluster, comma-separated. Empty starts an
	// embedded server on 127.0.0.1.
	URLs string
	// Port of the embedded server; -1 picks a random port.
	Port          int
	SubjectPrefix string
}

// Dispatcher publishes requests for agents and lets agents listen for them.
type Dispatcher struct {
	server *server.Server
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
	subs   map[*nats.Subscription]struct{}
	mu     sync.Mutex
}

// NewDispatcher connects to NATS, starting an embedded server when no
// external URLs are configured.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}

	var (
		conn       *nats.Conn
		natsServer *server.Server
		err        error
	)

	if cfg.URLs != "" {
		conn, err = nats.Connect(cfg.URLs, nats.Name("tunnel-dispatch"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to external NATS cluster: %w", err)
		}
	} else {
		opts := &server.Options{
			Host:       "127.0.0.1",
			Port:       cfg.Port,
			MaxPayload: 8 * 1024 * 1024,
			NoSigs:     true,
		}

		natsServer, err = server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS server: %w", err)
		}

		go natsServer.Start()

		if !natsServer.ReadyForConnections(10 * time.Second) {
			natsServer.Shutdown()
			return nil, errors.New("NATS server failed to start")
		}

		conn, err = nats.Connect(natsServer.ClientURL())
		if err != nil {
			natsServer.Shutdown()
			return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
		}
	}

	cfg.Logger.Info("Dispatcher connected",
		zap.String("url", conn.ConnectedUrl()),
		zap.Bool("embedded", natsServer != nil),
	)

	return &Dispatcher{
		server: natsServer,
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		logger: cfg.Logger,
		subs:   make(map[*nats.Subscription]struct{}),
	}, nil
}

// Subject returns the delivery subject of a printer.
func (d *Dispatcher) Subject(printerID int64) string {
	return d.prefix + ".printer." + strconv.FormatInt(printerID, 10)
}

// ClientURL returns the URL agents can connect to when the server is embedded.
func (d *Dispatcher) ClientURL() string {
	if d.server != nil {
		return d.server.ClientURL()
	}
	return d.conn.ConnectedUrl()
}

// Deliver publishes req to the agent of target and returns the number of
// bytes put on the wire.
func (d *Dispatcher) Deliver(ctx context.Context, target tunnel.Target, req *tunnel.Request) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := tunnel.EncodeRequest(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", tunnel.ErrDispatch, err)
	}

	subject := d.Subject(target.PrinterID)
	if err := d.conn.Publish(subject, data); err != nil {
		return 0, fmt.Errorf("%w: publish %s: %v", tunnel.ErrDispatch, subject, err)
	}

	d.logger.Debug("Dispatched request",
		zap.String("ref", string(req.Ref)),
		zap.String("subject", subject),
		zap.Int("bytes", len(data)),
	)
	return len(data), nil
}

// Listen subscribes handler to the requests addressed to printerID.
func (d *Dispatcher) Listen(ctx context.Context, printerID int64, handler Handler) (Subscription, error) {
	subject := d.Subject(printerID)

	sub, err := d.conn.Subscribe(subject, func(msg *nats.Msg) {
		req, decodeErr := tunnel.DecodeRequest(msg.Data)
		if decodeErr != nil {
			d.logger.Error("Failed to decode request",
				zap.String("subject", subject),
				zap.Error(decodeErr),
			)
			return
		}

		if handleErr := handler(ctx, req); handleErr != nil {
			d.logger.Error("Request handler failed",
				zap.String("subject", subject),
				zap.String("ref", string(req.Ref)),
				zap.Error(handleErr),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	// Make sure the server has the interest registered before returning so
	// a Deliver right after Listen is not lost.
	if err := d.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}

	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()

	return &subscription{d: d, sub: sub}, nil
}

// Close unsubscribes every listener, closes the connection and stops the
// embedded server.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	for sub := range d.subs {
		_ = sub.Unsubscribe()
	}
	d.subs = make(map[*nats.Subscription]struct{})
	d.mu.Unlock()

	if d.conn != nil {
		d.conn.Close()
	}
	if d.server != nil {
		d.server.Shutdown()
	}
	return nil
}

type subscription struct {
	d   *Dispatcher
	sub *nats.Subscription
}

func (s *subscription) Unsubscribe() error {
	s.d.mu.Lock()
	delete(s.d.subs, s.sub)
	s.d.mu.Unlock()
	return s.sub.Unsubscribe()
}
