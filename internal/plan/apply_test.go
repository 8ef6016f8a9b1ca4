package plan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/internal/audit"
	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/internal/plan"
	"github.com/forattini-dev/vaulter-sub005/internal/remote"
	"github.com/forattini-dev/vaulter-sub005/internal/version"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
	"github.com/forattini-dev/vaulter-sub005/tests/fakes"
)

type applyFixture struct {
	engine   *plan.Engine
	remote   *fakes.FlakyStore
	backing  *remote.MemoryStore
	versions *version.MemoryStore
	sink     *fakes.RecordingSink
}

func newApplyFixture(t *testing.T) *applyFixture {
	t.Helper()

	backing := remote.NewMemoryStore("test")
	flaky := fakes.NewFlakyStore(backing)
	versions := version.NewMemoryStore()
	sink := &fakes.RecordingSink{}
	logger := logging.New(false, true)

	return &applyFixture{
		engine:   plan.NewEngine(flaky, versions, sink, logger),
		remote:   flaky,
		backing:  backing,
		versions: versions,
		sink:     sink,
	}
}

// seedRemote installs existing remote state for the update and delete paths.
func (f *applyFixture) seedRemote(t *testing.T, p plan.Plan, values map[string]string) {
	t.Helper()
	for key, value := range values {
		require.NoError(t, f.backing.Set(context.Background(), store.Input{
			Key:         key,
			Value:       value,
			Project:     p.Project,
			Environment: p.Environment,
			Scope:       p.Scope,
		}))
	}
}

func threeWayPlan(t *testing.T) plan.Plan {
	t.Helper()

	changes := diff.Diff(
		map[string]string{"API_URL": "https://api.new", "NEW_KEY": "fresh"},
		map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"},
	)
	return plan.Build(plan.OpPush, changes, plan.Context{
		Project:     "shop",
		Environment: "dev",
		Scope:       scope.Shared,
		User:        "tester",
	})
}

func TestApplyOrdersAddsBeforeUpdatesBeforeDeletes(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})

	result, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{})
	require.NoError(t, err)

	assert.Equal(t, plan.StatusApplied, result.Status)
	assert.ElementsMatch(t, []string{"NEW_KEY", "API_URL", "OLD_KEY"}, result.Succeeded)
	assert.Empty(t, result.Failed)

	assert.Equal(t, []string{"NEW_KEY", "API_URL"}, f.remote.SetCalls)
	assert.Equal(t, []string{"OLD_KEY"}, f.remote.DelCalls)

	got, err := f.backing.Get(context.Background(), "API_URL", store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.new", got.Value)

	_, err = f.backing.Get(context.Background(), "OLD_KEY", store.Query{Project: "shop", Environment: "dev"})
	var notFound store.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestApplyAppendsVersionsAndAuditEvents(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})

	_, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{User: "release-bot"})
	require.NoError(t, err)

	ctx := context.Background()
	for _, key := range []string{"NEW_KEY", "API_URL", "OLD_KEY"} {
		id := version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: key}
		max, err := f.versions.MaxVersion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, max, key)
	}

	deleted, err := f.versions.Get(ctx, version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: "OLD_KEY"}, 1)
	require.NoError(t, err)
	assert.Equal(t, audit.OpDelete, deleted.Operation)
	assert.Empty(t, deleted.Value)
	assert.Equal(t, "release-bot", deleted.User)
	assert.Equal(t, "push", deleted.Source)

	events := f.sink.Events()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, p.ID, e.Metadata["plan_id"])
		assert.Equal(t, "release-bot", e.Metadata["user"])
	}
	assert.Equal(t, audit.OpSet, events[0].Operation)
	assert.Equal(t, audit.OpDelete, events[2].Operation)
	assert.Equal(t, "stale", events[2].PreviousValue)
}

func TestApplyDryRunMutatesNothing(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})

	result, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, plan.StatusPlanned, result.Status)
	assert.Len(t, result.Succeeded, 3)

	assert.Empty(t, f.remote.SetCalls)
	assert.Empty(t, f.remote.DelCalls)
	assert.Empty(t, f.sink.Events())

	got, err := f.backing.Get(context.Background(), "API_URL", store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.old", got.Value)

	max, err := f.versions.MaxVersion(context.Background(), version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: "NEW_KEY"})
	require.NoError(t, err)
	assert.Equal(t, 0, max)
}

func TestApplyBestEffortContinuesPastFailures(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})
	f.remote.FailSet("NEW_KEY", errors.New("throttled"))

	result, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{})
	require.NoError(t, err)

	assert.Equal(t, plan.StatusFailed, result.Status)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "NEW_KEY", result.Failed[0].Key)
	assert.Contains(t, result.Failed[0].Error, "throttled")

	// The failing add does not stop the update or the delete.
	assert.ElementsMatch(t, []string{"API_URL", "OLD_KEY"}, result.Succeeded)
	assert.Equal(t, []string{"OLD_KEY"}, f.remote.DelCalls)
}

func TestApplyAllOrNothingStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})
	f.remote.FailSet("NEW_KEY", errors.New("access denied"))

	result, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{AllOrNothing: true})
	require.NoError(t, err)

	assert.Equal(t, plan.StatusFailed, result.Status)
	require.Len(t, result.Failed, 1)
	assert.Empty(t, result.Succeeded)

	// Only the failing key was attempted; the update and delete never ran.
	assert.Equal(t, []string{"NEW_KEY"}, f.remote.SetCalls)
	assert.Empty(t, f.remote.DelCalls)
}

func TestApplySwallowsAuditSinkFailures(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	f.sink.Err = errors.New("disk full")
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})

	result, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, plan.StatusApplied, result.Status)
	assert.Empty(t, result.Failed)
}

func TestRollbackAppendsNewVersion(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	ctx := context.Background()
	id := version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: "DB_HOST"}

	_, err := f.versions.Append(ctx, id, version.Entry{Value: "db-01", User: "alice", Operation: audit.OpSet})
	require.NoError(t, err)
	_, err = f.versions.Append(ctx, id, version.Entry{Value: "db-02", User: "alice", Operation: audit.OpSet})
	require.NoError(t, err)
	require.NoError(t, f.backing.Set(ctx, store.Input{
		Key: "DB_HOST", Value: "db-02", Project: "shop", Environment: "dev", Scope: scope.Shared,
	}))

	newVersion, err := f.engine.Rollback(ctx, id, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, newVersion)

	got, err := f.backing.Get(ctx, "DB_HOST", store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "db-01", got.Value)

	entry, err := f.versions.Get(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, "db-01", entry.Value)
	assert.Equal(t, audit.OpRollback, entry.Operation)
	assert.Equal(t, "rollback:1", entry.Source)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OpRollback, events[0].Operation)
	assert.Equal(t, "db-02", events[0].PreviousValue)
	assert.Equal(t, "db-01", events[0].NewValue)
}

func TestRollbackUnknownVersionHasNoEffect(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	ctx := context.Background()
	id := version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: "DB_HOST"}

	_, err := f.versions.Append(ctx, id, version.Entry{Value: "db-01", Operation: audit.OpSet})
	require.NoError(t, err)
	require.NoError(t, f.backing.Set(ctx, store.Input{
		Key: "DB_HOST", Value: "db-01", Project: "shop", Environment: "dev", Scope: scope.Shared,
	}))

	_, err = f.engine.Rollback(ctx, id, 7, "alice")
	var notFound version.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 7, notFound.Version)
	assert.Equal(t, id, notFound.ID)

	got, err := f.backing.Get(ctx, "DB_HOST", store.Query{Project: "shop", Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "db-01", got.Value)

	max, err := f.versions.MaxVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, max)
	assert.Empty(t, f.remote.SetCalls)
}

func TestApplyRegistersChangeMetrics(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	p := threeWayPlan(t)
	f.seedRemote(t, p, map[string]string{"API_URL": "https://api.old", "OLD_KEY": "stale"})

	result, err := f.engine.Apply(context.Background(), p, plan.ApplyOptions{})
	require.NoError(t, err)
	require.Empty(t, result.Failed)

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "vaulter_apply_changes_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
