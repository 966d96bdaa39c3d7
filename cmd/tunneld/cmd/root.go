package cmd

import (
	"fmt"
	"os"

	"github.com/printlink/tunnel/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "tunneld",
	Short: "Printer tunnel gateway",
	Long: `tunneld relays HTTP-shaped requests to printer agents and correlates
their responses through per-request mailboxes in Redis.

Examples:
  # Run the gateway with an embedded NATS server
  tunneld serve

  # Run a demo agent for user 1, printer 2 against a running gateway
  tunneld agent --user 1 --printer 2 --nats nats://localhost:4222`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging")
}

// loadConfig reads the config file and TUNNEL_* environment into a fresh viper.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.New(), cfgFile)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if debug || cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
