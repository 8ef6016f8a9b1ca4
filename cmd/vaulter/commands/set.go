package commands

import (
	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
)

func NewSetCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag string
		secret    bool
	)

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a local override variable",
		Long: `Write one variable into the local override files.

Plain variables land in configs.env, secrets in secrets.env. A key lives
in exactly one of the two files: setting it moves it if needed.

Examples:
  # Shared config value
  vaulter set LOG_LEVEL debug

  # Service-scoped secret
  vaulter set DATABASE_URL postgres://... --scope service:api --secret`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			sc, err := parseScopeFlag(scopeFlag)
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			if err := openLocal(cfg).SetOne(sc, key, value, secret); err != nil {
				return err
			}

			if secret {
				cfg.Logger.Info("Set secret %s in scope %s", logging.Secret(key), sc)
			} else {
				cfg.Logger.Info("Set %s in scope %s", key, sc)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().BoolVar(&secret, "secret", false, "Store the value in the secrets bucket")

	return cmd
}
