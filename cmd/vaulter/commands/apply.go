package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forattini-dev/vaulter-sub005/internal/batch"
	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

func NewApplyCommand(cfg *config.Config) *cobra.Command {
	var (
		scopeFlag    string
		envName      string
		storeName    string
		opFlag       string
		strategyFlag string
		planFile     string
		dryRun       bool
		allServices  bool
		concurrency  int
		stopOnError  bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a reconciliation plan",
		Long: `Execute the changes between local overrides and the remote store.

Without --plan a fresh plan is computed first. Every applied change
appends a version entry and an audit event. With --all-services the
shared scope and every service scope are reconciled as a batch with
bounded concurrency.

Examples:
  vaulter apply --env dev
  vaulter apply --env prd --plan release.plan.json
  vaulter apply --env prd --all-services --concurrency 8 --stop-on-error
  vaulter apply --env stg --dry-run`,
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

			engine, cleanup, err := newEngine(cfg, remoteStore)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			opts := plan.ApplyOptions{
				DryRun:       dryRun,
				AllOrNothing: stopOnError,
				User:         cfg.User(),
			}

			if planFile != "" {
				p, err := plan.LoadFile(planFile)
				if err != nil {
					return err
				}
				return applyOne(ctx, cfg, engine, p, opts)
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

			if !allServices {
				sc, err := parseScopeFlag(scopeFlag)
				if err != nil {
					return err
				}
				p, err := buildPlan(ctx, cfg, remoteStore, op, environment, sc, strategy)
				if err != nil {
					return err
				}
				return applyOne(ctx, cfg, engine, p, opts)
			}

			scopes, err := targetScopes(cfg)
			if err != nil {
				return err
			}

			if concurrency <= 0 {
				concurrency = cfg.Concurrency()
			}

			result := batch.Run(ctx, scopes, concurrency, func(ctx context.Context, sc scope.Scope) error {
				p, err := buildPlan(ctx, cfg, remoteStore, op, environment, sc, strategy)
				if err != nil {
					return err
				}
				return applyOne(ctx, cfg, engine, p, opts)
			}, batch.Options{StopOnError: stopOnError})

			cfg.Logger.Info("Batch finished: %d scopes applied, %d failed, %d skipped",
				result.Successful, result.Failed, result.Skipped)

			for _, item := range result.Operations {
				if item.Err != nil && !errors.Is(item.Err, batch.ErrSkipped) {
					cfg.Logger.Error("Scope %s: %v", item.Item, item.Err)
				}
			}

			if result.Failed > 0 {
				return fmt.Errorf("%d of %d scopes failed", result.Failed, result.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Target scope: 'shared' (default) or 'service:<name>'")
	cmd.Flags().StringVar(&envName, "env", "", "Environment name")
	cmd.Flags().StringVar(&storeName, "store", "", "Remote store name (defaults to the configured default)")
	cmd.Flags().StringVar(&opFlag, "op", "merge", "Operation: merge, push or pull")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "error", "Conflict strategy: error, local-wins or remote-wins")
	cmd.Flags().StringVar(&planFile, "plan", "", "Apply a previously written plan artifact")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without mutating anything")
	cmd.Flags().BoolVar(&allServices, "all-services", false, "Reconcile shared plus every service scope")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel scope applies for --all-services (0 uses the configured default)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "Abort remaining work at the first failure")

	return cmd
}

// applyOne executes a single plan: pull plans land in the local override
// files, everything else goes through the apply engine.
func applyOne(ctx context.Context, cfg *config.Config, engine *plan.Engine, p plan.Plan, opts plan.ApplyOptions) error {
	if p.IsEmpty() {
		cfg.Logger.Info("Scope %s: nothing to do", p.Scope)
		return nil
	}

	if p.Status == plan.StatusBlocked {
		return vaultererrors.UserError{
			Message:    fmt.Sprintf("Plan %s is blocked by unresolved conflicts", p.ID),
			Suggestion: "Rebuild it with --strategy local-wins or --strategy remote-wins",
		}
	}

	if p.Operation == plan.OpPull {
		return applyPull(cfg, p, opts.DryRun)
	}

	result, err := engine.Apply(ctx, p, opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		cfg.Logger.Info("Dry-run for scope %s: %d changes would be applied", p.Scope, len(result.Succeeded))
		fmt.Println(plan.Summary(p))
		return nil
	}

	cfg.Logger.Info("Scope %s: %d changes applied in %s", p.Scope, len(result.Succeeded), result.Duration.Round(time.Millisecond))
	if len(result.Failed) > 0 {
		for _, failure := range result.Failed {
			cfg.Logger.Error("  %s: %s", failure.Key, failure.Error)
		}
		return fmt.Errorf("%d of %d changes failed", len(result.Failed), p.ChangeCount())
	}
	return nil
}

// applyPull writes a pull plan's changes into the local override files.
// Versions and audit events track remote mutations only, so none are
// recorded here.
func applyPull(cfg *config.Config, p plan.Plan, dryRun bool) error {
	if dryRun {
		cfg.Logger.Info("Dry-run for scope %s: %d local changes", p.Scope, p.ChangeCount())
		fmt.Println(plan.Summary(p))
		return nil
	}

	local := openLocal(cfg)

	for _, key := range p.Changes.AddedKeys() {
		if err := local.SetOne(p.Scope, key, p.Changes.Added[key], p.Sensitive[key]); err != nil {
			return err
		}
	}
	for _, key := range p.Changes.UpdatedKeys() {
		if err := local.SetOne(p.Scope, key, p.Changes.Updated[key].Local, p.Sensitive[key]); err != nil {
			return err
		}
	}
	for _, key := range p.Changes.DeletedKeys() {
		if _, err := local.DeleteOne(p.Scope, key); err != nil {
			return err
		}
	}

	cfg.Logger.Info("Scope %s: %d local changes written", p.Scope, p.ChangeCount())
	return nil
}
