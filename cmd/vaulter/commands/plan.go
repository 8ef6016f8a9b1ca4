package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
)

func NewPlanCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag    string
		envName      string
		storeName    string
		opFlag       string
		strategyFlag string
		outFile      string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build a reviewable reconciliation plan",
		Long: `Compute the change set for one scope and print it for review.

The default operation is a bidirectional merge; conflicting keys block
the plan unless a resolution strategy is chosen. With --out the plan is
written as a JSON artifact that 'vaulter apply --plan' executes later.

Examples:
  vaulter plan --env prd
  vaulter plan --env prd --strategy local-wins --out release.plan.json
  vaulter plan --env dev --op push --scope service:api`,
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

			op, ok := plan.ParseOperation(opFlag)
			if !ok {
				return vaultererrors.ValidationError{
					Field:      "op",
					Value:      opFlag,
					Message:    "unknown operation",
					Suggestion: "Use one of: merge, push, pull",
				}
			}

			strategy, ok := diff.ParseStrategy(strategyFlag)
			if !ok {
				return vaultererrors.ValidationError{
					Field:      "strategy",
					Value:      strategyFlag,
					Message:    "unknown conflict strategy",
					Suggestion: "Use one of: error, local-wins, remote-wins",
				}
			}

			remoteStore, err := openRemote(cfg, storeName)
			if err != nil {
				return err
			}

			p, err := buildPlan(context.Background(), cfg, remoteStore, op, environment, sc, strategy)
			var conflictErr diff.ConflictError
			if err != nil && !errors.As(err, &conflictErr) {
				return err
			}

			fmt.Println(plan.Summary(p))

			if outFile != "" {
				if err := plan.WriteFile(p, outFile); err != nil {
					return err
				}
				cfg.Logger.Info("Plan written to %s", outFile)
			}

			if p.Status == plan.StatusBlocked {
				return vaultererrors.UserError{
					Message:    fmt.Sprintf("Plan is blocked by %d conflicting keys", len(conflictErr.Keys)),
					Suggestion: "Re-run with --strategy local-wins or --strategy remote-wins to resolve them",
				}
			}

			if p.IsEmpty() {
				cfg.Logger.Info("Nothing to do: local and remote are in sync")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().StringVar(&opFlag, "op", "merge", "Operation: merge, push or pull")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "error", "Conflict strategy: error, local-wins or remote-wins")
	cmd.Flags().StringVar(&outFile, "out", "", "Write the plan artifact to this file")

	return cmd
}
