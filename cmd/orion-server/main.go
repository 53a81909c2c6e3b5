// Package main provides the Orion simulation service: it accepts JSON-RPC
// requests, dispatches them to the computation agent, applies the agent's
// results and serves status feeds.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/config"
	"github.com/ArielSltty/Orion/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orion-server",
	Short: "Orion simulation service",
	Long: `orion-server runs the simulation service behind the orion CLI.

Endpoints:
  POST /rpc                          JSON-RPC 2.0 (submit_simulation_request, get_simulation_result,
                                     receive_simulation_result, send_chat_message, list_simulation_results)
  POST /callback/simulation-result   agent result callback
  GET  /ws/requests/:id              websocket status feed
  GET  /health, /metrics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := loaded.ValidateServer(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file or directory (default: ./orion.yaml, ~/.orion/orion.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "Apply database migrations before serving")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
