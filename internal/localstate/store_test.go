package localstate_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/internal/localstate"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

func serviceScope(t *testing.T, name string) scope.Scope {
	t.Helper()
	sc, err := scope.ForService(name)
	require.NoError(t, err)
	return sc
}

func TestLoadMissingFilesYieldsEmptySet(t *testing.T) {
	t.Parallel()

	st := localstate.NewStore(t.TempDir())

	set, err := st.Load(scope.Shared)
	require.NoError(t, err)
	assert.Empty(t, set.Configs)
	assert.Empty(t, set.Secrets)
	assert.Zero(t, set.Len())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	st := localstate.NewStore(t.TempDir())
	sc := serviceScope(t, "api")

	set := localstate.NewOverrideSet()
	set.Configs["LOG_LEVEL"] = "debug"
	set.Configs["PORT"] = "8080"
	set.Secrets["DB_PASSWORD"] = "hunter2"

	require.NoError(t, st.Save(sc, set))

	loaded, err := st.Load(sc)
	require.NoError(t, err)
	assert.Equal(t, set.Configs, loaded.Configs)
	assert.Equal(t, set.Secrets, loaded.Secrets)
	assert.True(t, loaded.IsSecret("DB_PASSWORD"))
	assert.False(t, loaded.IsSecret("PORT"))
}

func TestSecretFilePermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	dir := t.TempDir()
	st := localstate.NewStore(dir)

	set := localstate.NewOverrideSet()
	set.Secrets["TOKEN"] = "s3cr3t"
	require.NoError(t, st.Save(scope.Shared, set))

	info, err := os.Stat(filepath.Join(dir, "secrets.env"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDeleteLastKeyLeavesNewlineTerminatedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := localstate.NewStore(dir)

	require.NoError(t, st.SetOne(scope.Shared, "ONLY", "v", false))
	removed, err := st.DeleteOne(scope.Shared, "ONLY")
	require.NoError(t, err)
	require.True(t, removed)

	data, err := os.ReadFile(filepath.Join(dir, "configs.env"))
	require.NoError(t, err)
	assert.Equal(t, "\n", string(data))
}

func TestSetOneMovesKeyBetweenBuckets(t *testing.T) {
	t.Parallel()

	st := localstate.NewStore(t.TempDir())

	require.NoError(t, st.SetOne(scope.Shared, "API_KEY", "v1", false))
	set, err := st.Load(scope.Shared)
	require.NoError(t, err)
	assert.Equal(t, "v1", set.Configs["API_KEY"])
	assert.False(t, set.IsSecret("API_KEY"))

	// Re-setting as secret moves the key, it never exists in both buckets.
	require.NoError(t, st.SetOne(scope.Shared, "API_KEY", "v2", true))
	set, err = st.Load(scope.Shared)
	require.NoError(t, err)
	assert.Equal(t, "v2", set.Secrets["API_KEY"])
	assert.NotContains(t, set.Configs, "API_KEY")
	assert.Equal(t, 1, set.Len())
}

func TestDeleteOne(t *testing.T) {
	t.Parallel()

	st := localstate.NewStore(t.TempDir())
	require.NoError(t, st.SetOne(scope.Shared, "A", "1", false))
	require.NoError(t, st.SetOne(scope.Shared, "B", "2", true))

	existed, err := st.DeleteOne(scope.Shared, "A")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = st.DeleteOne(scope.Shared, "A")
	require.NoError(t, err)
	assert.False(t, existed)

	set, err := st.Load(scope.Shared)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, "2", set.Secrets["B"])
}

func TestMergedSecretsWin(t *testing.T) {
	t.Parallel()

	set := localstate.NewOverrideSet()
	set.Configs["KEY"] = "config-value"
	set.Configs["OTHER"] = "x"
	set.Secrets["KEY"] = "secret-value"

	merged := set.Merged()
	assert.Equal(t, "secret-value", merged["KEY"])
	assert.Equal(t, "x", merged["OTHER"])
	assert.Len(t, merged, 2)
}

func TestListServices(t *testing.T) {
	t.Parallel()

	st := localstate.NewStore(t.TempDir())

	names, err := st.ListServices()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, st.SetOne(serviceScope(t, "api"), "A", "1", false))
	require.NoError(t, st.SetOne(serviceScope(t, "worker"), "B", "2", false))

	names, err = st.ListServices()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"api", "worker"}, names)
}

func TestScopeDirLayout(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	st := localstate.NewStore(base)

	assert.Equal(t, base, st.ScopeDir(scope.Shared))
	assert.Equal(t, filepath.Join(base, "services", "api"), st.ScopeDir(serviceScope(t, "api")))
}
