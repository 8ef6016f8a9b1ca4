package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/internal/version"
)

func NewRollbackCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag     string
		envName       string
		storeName     string
		targetVersion int
	)

	cmd := &cobra.Command{
		Use:   "rollback KEY",
		Short: "Roll a variable back to an earlier version",
		Long: `Restore a variable's value from its version history.

Rolling back appends a new version carrying the historical value; the
history itself is never rewound, so a rollback can itself be rolled
back.

Examples:
  vaulter rollback DATABASE_URL --env prd --version 3
  vaulter rollback API_KEY --env prd --scope service:api --version 7`,
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

			if targetVersion <= 0 {
				return vaultererrors.ValidationError{
					Field:      "version",
					Value:      targetVersion,
					Message:    "a positive target version is required",
					Suggestion: "Find one with: vaulter history " + args[0],
				}
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

			id := version.VarID{
				Project:     cfg.Project(),
				Environment: environment,
				Scope:       sc,
				Key:         args[0],
			}

			newVersion, err := engine.Rollback(context.Background(), id, targetVersion, cfg.User())
			if err != nil {
				return err
			}

			cfg.Logger.Info("Rolled %s back to version %d (now version %d)", args[0], targetVersion, newVersion)
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().IntVar(&targetVersion, "version", 0, "Version number to restore (required)")

	_ = cmd.MarkFlagRequired("version")

	return cmd
}
