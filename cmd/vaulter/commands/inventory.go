package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/inventory"
)

func NewInventoryCommand(cfg *config.Config) *cobra.Command {
	var (
		storeName  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Analyze the remote store for drift and orphans",
		Long: `Build a cross-environment report of the remote store.

The report lists every scope with its variable counts, variables that
exist in some environments but not others, orphaned variables whose
service is no longer declared in vaulter.yaml, and a full coverage
matrix.

Examples:
  vaulter inventory
  vaulter inventory --store aws --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			remoteStore, err := openRemote(cfg, storeName)
			if err != nil {
				return err
			}

			report, err := inventory.Build(context.Background(), remoteStore,
				cfg.Project(), cfg.Definition.Environments, cfg.KnownServices())
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"project":  cfg.Project(),
					"store":    remoteStore.Name(),
					"services": report.Services,
					"orphaned": report.OrphanedVars,
					"missing":  report.MissingVars,
					"coverage": report.CoverageMatrix,
				})
			}

			printInventory(cfg, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full report as JSON")

	return cmd
}

func printInventory(cfg *config.Config, report inventory.Report) {
	fmt.Printf("Inventory of %s\n\n", cfg.Project())

	fmt.Println("Scopes:")
	for _, svc := range report.Services {
		fmt.Printf("  %-24s %3d vars  [%s]  %s\n",
			svc.Name, svc.VarCount, strings.Join(svc.Environments, ", "), svc.Lifecycle)
	}

	if len(report.MissingVars) > 0 {
		fmt.Println("\nMissing across environments:")
		for _, mv := range report.MissingVars {
			fmt.Printf("  %s (scope %s): present in %s, missing from %s\n",
				mv.Key, mv.Scope, strings.Join(mv.PresentIn, ", "), strings.Join(mv.MissingFrom, ", "))
		}
	}

	if len(report.OrphanedVars) > 0 {
		fmt.Println("\nOrphaned variables:")
		for _, ov := range report.OrphanedVars {
			fmt.Printf("  %s (scope %s): %s\n", ov.Key, ov.Scope, ov.Reason)
		}
	}

	if len(report.MissingVars) == 0 && len(report.OrphanedVars) == 0 {
		cfg.Logger.Info("No drift detected")
	}
}
