package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/cmd/vaulter/commands"
	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "vaulter",
		Short: "Declarative config and secret variables across environments",
		Long: `vaulter keeps local .env override files and a remote variable store in
sync: diff them, review a plan, apply it with full version history, and
roll any variable back to an earlier value.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			metrics.Init()
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultFileName, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	rootCmd.AddCommand(
		commands.NewInitCommand(cfg),
		commands.NewSetCommand(cfg),
		commands.NewUnsetCommand(cfg),
		commands.NewGetCommand(cfg),
		commands.NewDiffCommand(cfg),
		commands.NewPlanCommand(cfg),
		commands.NewApplyCommand(cfg),
		commands.NewPushCommand(cfg),
		commands.NewPullCommand(cfg),
		commands.NewRollbackCommand(cfg),
		commands.NewHistoryCommand(cfg),
		commands.NewInventoryCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
