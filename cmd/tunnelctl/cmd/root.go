package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	apiServer string
	output    string
)

var rootCmd = &cobra.Command{
	Use:   "tunnelctl",
	Short: "Command-line tool for the printer tunnel gateway",
	Long: `tunnelctl talks to the tunneld HTTP API.

Examples:
  # Traffic of March 2024 for one printer
  tunnelctl stats 202403 --user 1 --printer 2

  # Failure prediction counters of a print
  tunnelctl predictions 4711 --high

  # Set the progress of a print
  tunnelctl progress 4711 set 42

  # Send a request through the tunnel
  tunnelctl request 1 2 /api/version`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		PrintError(err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tunnelctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&apiServer, "server", "s", "http://localhost:8080", "API server address")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json, yaml)")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	viper.SetEnvPrefix("TUNNELCTL")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tunnelctl")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
