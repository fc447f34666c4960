package cmd

import (
	"log/slog"
	"os"

	"github.com/q-controller/imaged/src/pkg/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imaged",
	Short: "Ingests images, stores web-optimized variants and serves them by identifier",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("log-level") {
			level, _ := cmd.Flags().GetString("log-level")
			slog.SetDefault(logging.CreateLogger(logging.ParseLevel(level)))
		}
	},
}

func Execute() {
	slog.SetDefault(logging.CreateLogger(logging.LevelFromEnv()))
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("failed to execute command", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error (defaults to $LOG_LEVEL)")
}
