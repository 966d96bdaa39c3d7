// Package api provides the HTTP API of the tunnel gateway.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/printlink/tunnel/internal/broker"
	"github.com/printlink/tunnel/internal/circuitbreaker"
	"github.com/printlink/tunnel/internal/gateway"
	"github.com/printlink/tunnel/internal/metrics"
	"github.com/printlink/tunnel/internal/observability"
	"github.com/printlink/tunnel/internal/printercache"
	"github.com/printlink/tunnel/internal/stats"
	"github.com/printlink/tunnel/internal/tracker"
	"github.com/printlink/tunnel/pkg/tunnel"
	"go.uber.org/zap"
)

// Server represents the API server.
type Server struct {
	echo      *echo.Echo
	broker    broker.Broker
	gateway   *gateway.Gateway
	responder *gateway.Responder
	stats     *stats.Aggregator
	tracker   *tracker.Tracker
	cache     *printercache.Cache
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Broker        broker.Broker
	Gateway       *gateway.Gateway
	Responder     *gateway.Responder
	Stats         *stats.Aggregator
	Tracker       *tracker.Tracker
	Cache         *printercache.Cache
	Metrics       *metrics.Collector
	Logger        *zap.Logger
	Observability *observability.Observability
	// BodyLimit caps request bodies, e.g. "8M". Empty means no limit.
	BodyLimit string
}

// NewServer creates a new API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Broker == nil {
		return nil, errors.New("api: broker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	// Tracing runs before logging so request logs carry the trace ids.
	if cfg.Observability != nil {
		e.Use(tracingMiddleware(cfg.Observability))
	}
	e.Use(loggingMiddleware(cfg.Logger))
	e.Use(contextValidationMiddleware())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	s := &Server{
		echo:      e,
		broker:    cfg.Broker,
		gateway:   cfg.Gateway,
		responder: cfg.Responder,
		stats:     cfg.Stats,
		tracker:   cfg.Tracker,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthz)
	s.echo.GET("/ready", s.ready)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")

	if s.gateway != nil {
		v1.POST("/users/:user/printers/:printer/requests", s.tunnelRequest)
	}
	if s.responder != nil {
		v1.POST("/tunnel/responses/:ref", s.pushResponse)
	}

	if s.stats != nil {
		v1.GET("/stats", s.getStatsRange)
		v1.GET("/stats/:month", s.getStats)
	}

	if s.tracker != nil {
		prints := v1.Group("/prints/:id")
		prints.GET("/predictions", s.getPredictionCount)
		prints.POST("/predictions", s.incrementPredictionCount)
		prints.DELETE("/predictions", s.deletePredictionCount)
		prints.GET("/predictions/high", s.getHighPredictions)
		prints.POST("/predictions/high", s.addHighPrediction)
		prints.GET("/progress", s.getProgress)
		prints.PUT("/progress", s.setProgress)
	}

	if s.cache != nil {
		printers := v1.Group("/printers/:printer/cache/:kind")
		printers.GET("", s.getPrinterCache)
		printers.GET("/:field", s.getPrinterCacheField)
		printers.PUT("", s.setPrinterCache)
		printers.DELETE("", s.deletePrinterCache)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func loggingMiddleware(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogError:     true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			fields = append(fields, observability.TraceFields(c.Request().Context())...)

			logger.Info("request", fields...)
			return nil
		},
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func contextValidationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Context().Err() != nil {
				return c.JSON(http.StatusRequestTimeout, errorResponse{
					Error:   "request_timeout",
					Message: "Request context was cancelled",
				})
			}
			return next(c)
		}
	}
}

// handleError maps tunnel errors to HTTP responses.
func (s *Server) handleError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errInvalidInput), errors.Is(err, tunnel.ErrInvalidReference):
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_input",
			Message: err.Error(),
		})
	case errors.Is(err, tunnel.ErrDecode):
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error:   "bad_envelope",
			Message: err.Error(),
		})
	case errors.Is(err, tunnel.ErrDispatch):
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error:   "dispatch_failed",
			Message: err.Error(),
		})
	case errors.Is(err, circuitbreaker.ErrOpen):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:   "printer_unavailable",
			Message: err.Error(),
		})
	case errors.Is(err, tunnel.ErrBrokerUnavailable):
		s.logger.Warn("Broker unavailable", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:   "broker_unavailable",
			Message: "The broker is not reachable",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusRequestTimeout, errorResponse{
			Error:   "request_timeout",
			Message: err.Error(),
		})
	}

	s.logger.Error("internal server error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// healthz handles GET /healthz (liveness probe).
func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ready handles GET /ready. It reports 503 while the broker cannot be pinged.
func (s *Server) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.broker.Ping(ctx); err != nil {
		s.logger.Warn("Readiness check failed: broker not accessible", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"reason":  "broker_unavailable",
			"message": "Broker is not accessible",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}
