package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/printlink/tunnel/internal/gateway"
	"github.com/printlink/tunnel/pkg/tunnel"
	"github.com/spf13/cobra"
)

var (
	agentUser      int64
	agentPrinter   int64
	agentTransport string
	agentNATS      string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a demo printer agent that echoes every request",
	Long: `agent subscribes to the requests of one printer and answers each with
status 200 and the request body, pushing the response into the mailbox.

The agent and the gateway must share a NATS server, so either pass --nats or
set dispatch.natsURLs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if agentNATS != "" {
			cfg.Dispatch.NATSURLs = agentNATS
		}
		if cfg.Dispatch.NATSURLs == "" {
			return errors.New("agent needs an external NATS server: pass --nats or set dispatch.natsURLs")
		}

		target := tunnel.Target{
			UserID:    agentUser,
			PrinterID: agentPrinter,
			Transport: tunnel.Transport(agentTransport),
		}
		if err := target.Validate(); err != nil {
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
		defer comps.close(context.WithoutCancel(ctx), logger)

		responder, err := gateway.NewResponder(comps.gatewayCfg)
		if err != nil {
			return err
		}
		return responder.Serve(ctx, comps.dispatcher, target, gateway.Echo)
	},
}

func init() {
	agentCmd.Flags().Int64Var(&agentUser, "user", 0, "user id owning the printer")
	agentCmd.Flags().Int64Var(&agentPrinter, "printer", 0, "printer id to serve")
	agentCmd.Flags().StringVar(&agentTransport, "transport", string(tunnel.TransportWebSocket), "transport label for traffic stats")
	agentCmd.Flags().StringVar(&agentNATS, "nats", "", "NATS URLs shared with the gateway")
	_ = agentCmd.MarkFlagRequired("user")
	_ = agentCmd.MarkFlagRequired("printer")
	rootCmd.AddCommand(agentCmd)
}
