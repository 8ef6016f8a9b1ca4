package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag  string
		envName    string
		storeName  string
		fromRemote bool
		noInherit  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Get a single variable value",
		Long: `Resolve and print one variable's effective value.

By default the value comes from the local override files, with service
scopes inheriting shared values. With --remote the value is read from
the remote store instead. Only the raw value is printed, making the
command suitable for scripting.

Examples:
  # Effective local value for a service
  vaulter get DATABASE_URL --scope service:api

  # Remote value with metadata
  vaulter get API_KEY --env prd --remote --json

  # Use in scripts
  export DB_URL=$(vaulter get DATABASE_URL --scope service:api)`,
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

			if fromRemote {
				return getRemote(cfg, key, sc, envName, storeName, jsonOutput)
			}
			return getLocal(cfg, key, sc, noInherit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name (remote lookups only)")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().BoolVar(&fromRemote, "remote", false, "Read from the remote store instead of local files")
	cmd.Flags().BoolVar(&noInherit, "no-inherit", false, "Do not fall back to shared values for service scopes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format with metadata")

	return cmd
}

func getLocal(cfg *config.Config, key string, sc scope.Scope, noInherit, jsonOutput bool) error {
	local := openLocal(cfg)

	set, err := local.Load(sc)
	if err != nil {
		return err
	}
	effective := set.Merged()

	if sc.IsService() && !noInherit {
		shared, err := local.Load(scope.Shared)
		if err != nil {
			return err
		}
		effective = scope.MergeForService(shared.Merged(), effective, true)
	}

	value, exists := effective[key]
	if !exists {
		return vaultererrors.UserError{
			Message:    fmt.Sprintf("Variable '%s' is not set in scope %s", key, sc),
			Suggestion: fmt.Sprintf("Set it with: vaulter set %s <value> --scope %s", key, sc),
		}
	}

	if jsonOutput {
		return printJSON(map[string]interface{}{
			"variable": key,
			"value":    value,
			"scope":    sc.String(),
			"source":   "local",
			"secret":   set.IsSecret(key),
		})
	}
	fmt.Print(value)
	return nil
}

func getRemote(cfg *config.Config, key string, sc scope.Scope, envName, storeName string, jsonOutput bool) error {
	environment, err := cfg.ResolveEnvironment(envName)
	if err != nil {
		return err
	}

	remoteStore, err := openRemote(cfg, storeName)
	if err != nil {
		return err
	}

	v, err := remoteStore.Get(context.Background(), key, store.Query{
		Project:     cfg.Project(),
		Environment: environment,
		Scope:       &sc,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]interface{}{
			"variable":    key,
			"value":       v.Value,
			"scope":       sc.String(),
			"environment": environment,
			"source":      remoteStore.Name(),
			"sensitive":   v.Sensitive,
		})
	}
	fmt.Print(v.Value)
	return nil
}

func printJSON(output map[string]interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
