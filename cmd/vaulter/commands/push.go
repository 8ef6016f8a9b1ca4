package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
)

func NewPushCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag string
		envName   string
		storeName string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push local overrides to the remote store",
		Long: `Make the remote store match the local override files for one scope.

Remote-only keys are deleted. This is a one-way sync; use 'vaulter apply'
for a conflict-aware merge.

Examples:
  vaulter push --env dev
  vaulter push --env prd --scope service:api --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirectional(cfg, plan.OpPush, envName, scopeFlag, storeName, dryRun)
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without mutating anything")

	return cmd
}

// runDirectional executes a one-way push or pull for a single scope.
func runDirectional(cfg *config.Config, op plan.Operation, envName, scopeFlag, storeName string, dryRun bool) error {
	if err := cfg.Load(); err != nil {
		return err
	}

	environment, err := cfg.ResolveEnvironment(envName)
	if err != nil {
		return err
	}

	sc, err := parseScopeFlag(scopeFlag)
	if err != nil {
		return err
	}

	remoteStore, err := openRemote(cfg, storeName)
	if err != nil {
		return err
	}

	engine, cleanup, err := newEngine(cfg, remoteStore)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	p, err := buildPlan(ctx, cfg, remoteStore, op, environment, sc, diff.StrategyError)
	if err != nil {
		return err
	}

	return applyOne(ctx, cfg, engine, p, plan.ApplyOptions{
		DryRun: dryRun,
		User:   cfg.User(),
	})
}
