package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

func NewDiffCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag   string
		envName     string
		storeName   string
		allServices bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare local overrides against the remote store",
		Long: `Show what would change if the local override files were pushed.

Added, updated and deleted keys are listed per scope; secret values are
masked. The comparison is scope-to-scope: shared inheritance does not
apply here.

Examples:
  vaulter diff --env dev
  vaulter diff --env prd --scope service:api
  vaulter diff --env stg --all-services`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			environment, err := cfg.ResolveEnvironment(envName)
			if err != nil {
				return err
			}

			remoteStore, err := openRemote(cfg, storeName)
			if err != nil {
				return err
			}

			var scopes []scope.Scope
			if allServices {
				scopes, err = targetScopes(cfg)
				if err != nil {
					return err
				}
			} else {
				sc, err := parseScopeFlag(scopeFlag)
				if err != nil {
					return err
				}
				scopes = []scope.Scope{sc}
			}

			ctx := context.Background()
			clean := true
			for _, sc := range scopes {
				p, err := buildPlan(ctx, cfg, remoteStore, plan.OpPush, environment, sc, diff.StrategyError)
				if err != nil {
					return err
				}

				if p.IsEmpty() {
					cfg.Logger.Debug("Scope %s is in sync", sc)
					continue
				}
				clean = false

				fmt.Printf("Scope %s:\n", sc)
				fmt.Println(plan.Summary(p))
			}

			if clean {
				cfg.Logger.Info("Local overrides and %s are in sync for %s", remoteStore.Name(), environment)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().BoolVar(&allServices, "all-services", false, "Diff shared plus every service scope")

	return cmd
}
