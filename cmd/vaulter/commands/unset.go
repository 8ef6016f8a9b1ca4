package commands

import (
	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
)

func NewUnsetCommand(cfg *config.Config) *cobra.Command {
	var scopeFlag string

	cmd := &cobra.Command{
		Use:   "unset KEY",
		Short: "Remove a local override variable",
		Long: `Remove one variable from the local override files.

Removing a key that does not exist is not an error. The remote store is
untouched; run 'vaulter apply' to propagate the removal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			sc, err := parseScopeFlag(scopeFlag)
			if err != nil {
				return err
			}

			key := args[0]
			existed, err := openLocal(cfg).DeleteOne(sc, key)
			if err != nil {
				return err
			}

			if existed {
				cfg.Logger.Info("Removed %s from scope %s", key, sc)
			} else {
				cfg.Logger.Warn("%s was not set in scope %s", key, sc)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")

	return cmd
}
