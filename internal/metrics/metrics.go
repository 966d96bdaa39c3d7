// Package metrics exposes Prometheus metrics for tunneled traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Outcome labels the result of one tunneled exchange.
type Outcome string

const (
	OutcomeDelivered     Outcome = "delivered"
	OutcomeNoResponse    Outcome = "no_response"
	OutcomeDecodeError   Outcome = "decode_error"
	OutcomeBrokerError   Outcome = "broker_error"
	OutcomeDispatchError Outcome = "dispatch_error"
	OutcomeCircuitOpen   Outcome = "circuit_open"
)

// Byte directions, mirroring the traffic stats directions.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Collector records tunnel metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	requests        *prometheus.CounterVec
	awaitDuration   *prometheus.HistogramVec
	bytes           *prometheus.CounterVec
	statsFailures   *prometheus.CounterVec
	trackerFailures *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with its own registry.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_requests_total",
			Help: "Tunneled requests by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	// 10ms to ~82s, wide enough to cover the default 60s response timeout
	awaitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunnel_await_seconds",
			Help:    "Time spent waiting for a response envelope",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"transport"},
	)

	bytes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_bytes_total",
			Help: "Bytes tunneled by direction and transport",
		},
		[]string{"direction", "transport"},
	)

	statsFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_stats_failures_total",
			Help: "Traffic stats updates that failed",
		},
		[]string{"direction"},
	)

	trackerFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_tracker_failures_total",
			Help: "Prediction and progress tracker operations that failed",
		},
		[]string{"op"},
	)

	registry.MustRegister(requests)
	registry.MustRegister(awaitDuration)
	registry.MustRegister(bytes)
	registry.MustRegister(statsFailures)
	registry.MustRegister(trackerFailures)

	return &Collector{
		registry:        registry,
		logger:          logger,
		requests:        requests,
		awaitDuration:   awaitDuration,
		bytes:           bytes,
		statsFailures:   statsFailures,
		trackerFailures: trackerFailures,
	}
}

// RecordRequest records the outcome of a tunneled exchange.
func (c *Collector) RecordRequest(transport string, outcome Outcome) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(transport, string(outcome)).Inc()
}

// RecordAwait records how long the gateway waited on the mailbox.
func (c *Collector) RecordAwait(transport string, d time.Duration) {
	if c == nil {
		return
	}
	c.awaitDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// RecordBytes adds n tunneled bytes.
func (c *Collector) RecordBytes(direction, transport string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytes.WithLabelValues(direction, transport).Add(float64(n))
}

// RecordStatsFailure counts a failed traffic stats update.
func (c *Collector) RecordStatsFailure(direction string) {
	if c == nil {
		return
	}
	c.statsFailures.WithLabelValues(direction).Inc()
}

// RecordTrackerFailure counts a failed tracker operation.
func (c *Collector) RecordTrackerFailure(op string) {
	if c == nil {
		return
	}
	c.trackerFailures.WithLabelValues(op).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}
