package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/internal/version"
)

func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag  string
		envName    string
		limit      int
		showValues bool
	)

	cmd := &cobra.Command{
		Use:   "history KEY",
		Short: "Show a variable's version history",
		Long: `List the recorded versions of one variable, newest first.

Values are masked unless --show-values is given. Every apply, delete
and rollback appends an entry here.

Examples:
  vaulter history DATABASE_URL --env prd
  vaulter history API_KEY --env prd --scope service:api --limit 5 --show-values`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			versions, err := version.NewFileStore(cfg.DataDir(), cfg.Logger)
			if err != nil {
				return err
			}
			defer versions.Close()

			id := version.VarID{
				Project:     cfg.Project(),
				Environment: environment,
				Scope:       sc,
				Key:         args[0],
			}

			entries, err := versions.History(context.Background(), id, limit)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				cfg.Logger.Info("No recorded versions for %s in %s scope %s", args[0], environment, sc)
				return nil
			}

			fmt.Printf("History of %s (%s, scope %s):\n", args[0], environment, sc)
			for _, e := range entries {
				value := logging.Mask(e.Value, !showValues)
				fmt.Printf("  v%-4d %s  %-8s %-12s %s = %s\n",
					e.Version,
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Operation,
					e.User,
					e.Source,
					value)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&showValues, "show-values", false, "Print raw values instead of masking them")

	return cmd
}
