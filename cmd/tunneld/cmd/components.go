package cmd

import (
	"context"
	"fmt"

	"github.com/printlink/tunnel/internal/broker"
	brokerredis "github.com/printlink/tunnel/internal/broker/redis"
	"github.com/printlink/tunnel/internal/circuitbreaker"
	"github.com/printlink/tunnel/internal/config"
	"github.com/printlink/tunnel/internal/dispatch"
	"github.com/printlink/tunnel/internal/gateway"
	"github.com/printlink/tunnel/internal/mailbox"
	"github.com/printlink/tunnel/internal/metrics"
	"github.com/printlink/tunnel/internal/observability"
	"github.com/printlink/tunnel/internal/stats"
	"go.uber.org/zap"
)

// components are the pieces shared by serve and agent.
type components struct {
	broker     *brokerredis.Client
	dispatcher *dispatch.Dispatcher
	obs        *observability.Observability
	metrics    *metrics.Collector
	gatewayCfg gateway.Config
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}

	obs, err := observability.NewObservability(observability.Config{
		Enabled:     cfg.Observability.Enabled,
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Observability.Environment,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability: %w", err)
	}
	c.obs = obs

	client, err := brokerredis.Open(ctx, broker.Config{
		URL:         cfg.Broker.URL,
		DialTimeout: cfg.Broker.DialTimeout,
		PoolSize:    cfg.Broker.PoolSize,
	}, logger)
	if err != nil {
		c.close(ctx, logger)
		return nil, err
	}
	c.broker = client

	d, err := dispatch.NewDispatcher(dispatch.Config{
		Logger:        logger,
		URLs:          cfg.Dispatch.NATSURLs,
		Port:          cfg.Dispatch.Port,
		SubjectPrefix: cfg.Dispatch.SubjectPrefix,
	})
	if err != nil {
		c.close(ctx, logger)
		return nil, err
	}
	c.dispatcher = d

	mb, err := mailbox.New(mailbox.Config{
		Broker:    client,
		Namespace: cfg.Tunnel.Namespace,
		Timeout:   cfg.Tunnel.ResponseTimeout,
		Retention: cfg.Tunnel.ResponseRetention,
		Logger:    logger,
		Tracer:    obs.Tracer(),
	})
	if err != nil {
		c.close(ctx, logger)
		return nil, err
	}

	agg, err := stats.New(stats.Config{
		Broker:    client,
		Namespace: cfg.Tunnel.Namespace,
		Retention: cfg.Tunnel.StatsRetention,
		Logger:    logger,
	})
	if err != nil {
		c.close(ctx, logger)
		return nil, err
	}

	c.metrics = metrics.NewCollector(logger)

	var breakers *circuitbreaker.Manager
	if cfg.Gateway.BreakerThreshold > 0 {
		breakers = circuitbreaker.NewManager(circuitbreaker.Config{
			FailureThreshold: cfg.Gateway.BreakerThreshold,
			ResetTimeout:     cfg.Gateway.BreakerReset,
		})
	}

	c.gatewayCfg = gateway.Config{
		Mailbox:   mb,
		Stats:     agg,
		Deliverer: d,
		Metrics:   c.metrics,
		Breakers:  breakers,
		Logger:    logger,
		Tracer:    obs.Tracer(),
	}
	return c, nil
}

func (c *components) close(ctx context.Context, logger *zap.Logger) {
	if c.dispatcher != nil {
		c.dispatcher.Close()
	}
	if c.broker != nil {
		if err := c.broker.Close(); err != nil {
			logger.Warn("Error closing broker", zap.Error(err))
		}
	}
	if c.obs != nil {
		if err := c.obs.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down observability", zap.Error(err))
		}
	}
}
