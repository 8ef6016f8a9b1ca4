package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
)

const exampleConfig = `version: 0

project: my-project

environments: [dev, stg, prd]

# Services with their own variable scope. Anything not listed here is
# reported as orphaned by 'vaulter inventory'.
services:
  - api
  - worker

# Named remote stores. All fields besides 'type' are store-specific.
stores:
  local-memory:
    type: memory

  # aws:
  #   type: aws.ssm
  #   region: us-east-1
  #   # kms_key_id: alias/vaulter
  #
  # aws-sm:
  #   type: aws.secretsmanager
  #   region: us-east-1
  #
  # backend:
  #   type: rest
  #   base_url: https://vaulter.internal.example.com
  #   token_env: VAULTER_API_TOKEN

defaults:
  environment: dev
  store: local-memory
  concurrency: 4

# audit:
#   file: .vaulter/audit.jsonl
#   sql:
#     driver: postgresql
#     dsn: postgres://vaulter@localhost/vaulter?sslmode=disable
`

func NewInitCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new vaulter configuration",
		Long:  "Create a vaulter.yaml file with example configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfg.Path); err == nil {
				return fmt.Errorf("%s already exists. Remove it first if you want to reinitialize", cfg.Path)
			}

			if err := os.WriteFile(cfg.Path, []byte(exampleConfig), 0644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			cfg.Logger.Info("Created %s with example stores and environments", cfg.Path)
			cfg.Logger.Info("Next steps:")
			cfg.Logger.Info("  1. Edit %s to declare your project, environments and stores", cfg.Path)
			cfg.Logger.Info("  2. Run 'vaulter set KEY value' to create local overrides")
			cfg.Logger.Info("  3. Run 'vaulter diff --env dev' to compare against the remote store")
			cfg.Logger.Info("  4. Run 'vaulter apply --env dev' to reconcile")

			return nil
		},
	}

	return cmd
}
