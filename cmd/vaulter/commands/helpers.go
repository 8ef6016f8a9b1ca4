package commands

import (
	"context"
	"sort"
	"strings"

	"github.com/forattini-dev/vaulter-sub005/internal/audit"
	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/internal/localstate"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
	"github.com/forattini-dev/vaulter-sub005/internal/remote"
	"github.com/forattini-dev/vaulter-sub005/internal/version"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// parseScopeFlag turns the --scope flag into a Scope, defaulting to shared.
func parseScopeFlag(raw string) (scope.Scope, error) {
	if raw == "" {
		return scope.Shared, nil
	}
	return scope.Parse(raw)
}

// openRemote resolves and constructs the remote store named by --store.
func openRemote(cfg *config.Config, storeName string) (store.Store, error) {
	name, sc, err := cfg.ResolveStore(storeName)
	if err != nil {
		return nil, err
	}

	registry := remote.NewRegistry()
	remoteStore, err := registry.CreateStore(name, sc.Type, sc.Config)
	if err != nil {
		return nil, vaultererrors.ConfigError{
			Field:      "stores." + name,
			Value:      sc.Type,
			Message:    "failed to create remote store",
			Suggestion: "Check the store type and its configuration. Supported types: " + joinSorted(registry.SupportedTypes()),
		}
	}
	return remoteStore, nil
}

// openLocal returns the local override store rooted at the configured dir.
func openLocal(cfg *config.Config) *localstate.Store {
	return localstate.NewStore(cfg.LocalDir())
}

// openAudit builds the configured audit sinks. With nothing configured the
// returned sink discards events.
func openAudit(cfg *config.Config) (audit.Sink, error) {
	var sinks audit.MultiSink

	if path := cfg.Definition.Audit.File; path != "" {
		fileSink, err := audit.NewFileSink(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}

	if sqlCfg := cfg.Definition.Audit.SQL; sqlCfg != nil {
		sqlSink, err := audit.NewSQLSink(sqlCfg.Driver, sqlCfg.DSN, sqlCfg.Table)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sqlSink)
	}

	if len(sinks) == 0 {
		return audit.NopSink{}, nil
	}
	return sinks, nil
}

// newEngine wires the apply engine from configuration. The returned cleanup
// closes the version store and audit sinks.
func newEngine(cfg *config.Config, remoteStore store.Store) (*plan.Engine, func(), error) {
	versions, err := version.NewFileStore(cfg.DataDir(), cfg.Logger)
	if err != nil {
		return nil, nil, err
	}

	sink, err := openAudit(cfg)
	if err != nil {
		versions.Close()
		return nil, nil, err
	}

	engine := plan.NewEngine(remoteStore, versions, sink, cfg.Logger)
	cleanup := func() {
		if err := sink.Close(); err != nil {
			cfg.Logger.Warn("Failed to close audit sink: %v", err)
		}
		if err := versions.Close(); err != nil {
			cfg.Logger.Warn("Failed to close version store: %v", err)
		}
	}
	return engine, cleanup, nil
}

// snapshots loads the local and remote key→value maps for one scope. The two
// sides are compared scope-to-scope, without shared inheritance.
func snapshots(ctx context.Context, cfg *config.Config, remoteStore store.Store, environment string, sc scope.Scope) (localstate.OverrideSet, map[string]string, error) {
	set, err := openLocal(cfg).Load(sc)
	if err != nil {
		return localstate.OverrideSet{}, nil, err
	}

	remoteSnapshot, err := remoteStore.Export(ctx, store.Query{
		Project:     cfg.Project(),
		Environment: environment,
		Scope:       &sc,
	}, store.ExportOptions{})
	if err != nil {
		return localstate.OverrideSet{}, nil, err
	}

	return set, remoteSnapshot, nil
}

// buildPlan computes the change set for one scope and wraps it in a plan.
// Unresolved merge conflicts yield a blocked plan and the conflict error.
func buildPlan(ctx context.Context, cfg *config.Config, remoteStore store.Store, op plan.Operation, environment string, sc scope.Scope, strategy diff.Strategy) (plan.Plan, error) {
	set, remoteSnapshot, err := snapshots(ctx, cfg, remoteStore, environment, sc)
	if err != nil {
		return plan.Plan{}, err
	}
	local := set.Merged()

	var changes diff.ChangeSet
	var mergeErr error
	switch op {
	case plan.OpPush:
		changes = diff.Diff(local, remoteSnapshot)
	case plan.OpPull:
		changes = diff.Diff(remoteSnapshot, local)
	default:
		changes, mergeErr = diff.Merge(local, remoteSnapshot, strategy)
	}

	pctx := plan.Context{
		Project:     cfg.Project(),
		Environment: environment,
		Scope:       sc,
		Strategy:    strategy,
		User:        cfg.User(),
		Sensitive:   sensitiveKeys(ctx, set, remoteStore, cfg.Project(), environment, sc),
	}
	p := plan.Build(op, changes, pctx)

	if mergeErr != nil {
		p.Status = plan.StatusBlocked
		return p, mergeErr
	}
	return p, nil
}

// sensitiveKeys marks keys living in the local secrets bucket or flagged
// sensitive on the remote store.
func sensitiveKeys(ctx context.Context, set localstate.OverrideSet, remoteStore store.Store, project, environment string, sc scope.Scope) map[string]bool {
	sensitive := make(map[string]bool)
	for key := range set.Secrets {
		sensitive[key] = true
	}

	vars, err := remoteStore.List(ctx, store.Query{
		Project:     project,
		Environment: environment,
		Scope:       &sc,
	})
	if err != nil {
		return sensitive
	}
	for _, v := range vars {
		if v.Sensitive {
			sensitive[v.Key] = true
		}
	}
	return sensitive
}

// targetScopes expands --all-services into the union of configured services
// and those present on disk, always starting with shared.
func targetScopes(cfg *config.Config) ([]scope.Scope, error) {
	onDisk, err := openLocal(cfg).ListServices()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, name := range append(append([]string{}, cfg.KnownServices()...), onDisk...) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	scopes := []scope.Scope{scope.Shared}
	for _, name := range names {
		sc, err := scope.ForService(name)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

func joinSorted(values []string) string {
	sorted := append([]string{}, values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
