package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/printlink/tunnel/internal/api"
	"github.com/printlink/tunnel/internal/gateway"
	"github.com/printlink/tunnel/internal/printercache"
	"github.com/printlink/tunnel/internal/tracker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tunnel gateway API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		comps, err := buildComponents(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
			defer cancel()
			comps.close(closeCtx, logger)
		}()

		gw, err := gateway.New(comps.gatewayCfg)
		if err != nil {
			return err
		}
		responder, err := gateway.NewResponder(comps.gatewayCfg)
		if err != nil {
			return err
		}
		trk, err := tracker.New(tracker.Config{
			Broker:            comps.broker,
			PredictionTTL:     cfg.Tracker.PredictionTTL,
			HighPredictionTTL: cfg.Tracker.HighPredictionTTL,
			HighPredictionMax: cfg.Tracker.HighPredictionMax,
			ProgressTTL:       cfg.Tracker.ProgressTTL,
			Logger:            logger,
		})
		if err != nil {
			return err
		}
		cache, err := printercache.New(comps.broker)
		if err != nil {
			return err
		}

		server, err := api.NewServer(api.Config{
			Broker:        comps.broker,
			Gateway:       gw,
			Responder:     responder,
			Stats:         comps.gatewayCfg.Stats,
			Tracker:       trk,
			Cache:         cache,
			Metrics:       comps.metrics,
			Logger:        logger,
			Observability: comps.obs,
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting API server",
				zap.String("addr", cfg.API.Listen),
				zap.String("nats", comps.dispatcher.ClientURL()),
			)
			if err := server.Start(cfg.API.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				logger.Error("API server failed", zap.Error(err))
				return err
			}
		}

		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down API server", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
