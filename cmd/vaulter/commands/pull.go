package commands

import (
	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
)

func NewPullCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag string
		envName   string
		storeName string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull remote variables into the local override files",
		Long: `Make the local override files match the remote store for one scope.

Local-only keys are removed. Sensitive remote variables land in
secrets.env, everything else in configs.env.

Examples:
  vaulter pull --env dev
  vaulter pull --env prd --scope service:api --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirectional(cfg, plan.OpPull, envName, scopeFlag, storeName, dryRun)
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without mutating anything")

	return cmd
}
