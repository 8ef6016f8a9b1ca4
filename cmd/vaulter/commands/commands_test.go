package commands

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/localstate"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/internal/version"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

const testConfig = `version: 0
project: shop
environments: [dev, prd]
services: [api]
stores:
  mem:
    type: memory
defaults:
  environment: dev
  store: mem
  user: tester
`

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	return &config.Config{Path: path, Logger: logging.New(false, true)}
}

func TestSetAndUnsetCommands(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)

	setCmd := NewSetCommand(cfg)
	setCmd.SetArgs([]string{"LOG_LEVEL", "debug"})
	require.NoError(t, setCmd.Execute())

	setCmd = NewSetCommand(cfg)
	setCmd.SetArgs([]string{"DB_PASSWORD", "hunter2", "--scope", "service:api", "--secret"})
	require.NoError(t, setCmd.Execute())

	local := localstate.NewStore(cfg.LocalDir())

	shared, err := local.Load(scope.Shared)
	require.NoError(t, err)
	assert.Equal(t, "debug", shared.Configs["LOG_LEVEL"])

	api, err := scope.ForService("api")
	require.NoError(t, err)
	svc, err := local.Load(api)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", svc.Secrets["DB_PASSWORD"])
	assert.NotContains(t, svc.Configs, "DB_PASSWORD")

	unsetCmd := NewUnsetCommand(cfg)
	unsetCmd.SetArgs([]string{"LOG_LEVEL"})
	require.NoError(t, unsetCmd.Execute())

	shared, err = local.Load(scope.Shared)
	require.NoError(t, err)
	assert.NotContains(t, shared.Configs, "LOG_LEVEL")
}

func TestApplyCommandPushRecordsVersions(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)

	setCmd := NewSetCommand(cfg)
	setCmd.SetArgs([]string{"API_URL", "https://api.example.com"})
	require.NoError(t, setCmd.Execute())

	applyCmd := NewApplyCommand(cfg)
	applyCmd.SetArgs([]string{"--env", "dev", "--op", "push"})
	require.NoError(t, applyCmd.Execute())

	versions, err := version.NewFileStore(cfg.DataDir(), cfg.Logger)
	require.NoError(t, err)
	defer versions.Close()

	id := version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: "API_URL"}
	history, err := versions.History(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, "https://api.example.com", history[0].Value)
	assert.Equal(t, "tester", history[0].User)
	assert.Equal(t, "push", history[0].Source)
}

func TestApplyCommandWritesAuditLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.jsonl")
	body := testConfig + "audit:\n  file: " + auditPath + "\n"
	path := filepath.Join(dir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	cfg := &config.Config{Path: path, Logger: logging.New(false, true)}

	setCmd := NewSetCommand(cfg)
	setCmd.SetArgs([]string{"REGION", "eu-west-1"})
	require.NoError(t, setCmd.Execute())

	applyCmd := NewApplyCommand(cfg)
	applyCmd.SetArgs([]string{"--env", "dev", "--op", "push"})
	require.NoError(t, applyCmd.Execute())

	file, err := os.Open(auditPath)
	require.NoError(t, err)
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
		assert.Contains(t, scanner.Text(), `"operation":"set"`)
	}
	require.NoError(t, scanner.Err())
	assert.GreaterOrEqual(t, lines, 1)
}

func TestApplyCommandDryRunKeepsHistoryEmpty(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)

	setCmd := NewSetCommand(cfg)
	setCmd.SetArgs([]string{"API_URL", "https://api.example.com"})
	require.NoError(t, setCmd.Execute())

	applyCmd := NewApplyCommand(cfg)
	applyCmd.SetArgs([]string{"--env", "dev", "--op", "push", "--dry-run"})
	require.NoError(t, applyCmd.Execute())

	versions, err := version.NewFileStore(cfg.DataDir(), cfg.Logger)
	require.NoError(t, err)
	defer versions.Close()

	id := version.VarID{Project: "shop", Environment: "dev", Scope: scope.Shared, Key: "API_URL"}
	max, err := versions.MaxVersion(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, max)
}

func TestApplyCommandRejectsUnknownOperation(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)

	applyCmd := NewApplyCommand(cfg)
	applyCmd.SetArgs([]string{"--env", "dev", "--op", "teleport"})
	err := applyCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestApplyCommandRejectsUnknownEnvironment(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)

	applyCmd := NewApplyCommand(cfg)
	applyCmd.SetArgs([]string{"--env", "qa"})
	err := applyCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment not found")
}

func TestParseScopeFlag(t *testing.T) {
	t.Parallel()

	sc, err := parseScopeFlag("")
	require.NoError(t, err)
	assert.Equal(t, scope.Shared, sc)

	sc, err = parseScopeFlag("service:api")
	require.NoError(t, err)
	assert.Equal(t, "api", sc.ServiceName())

	_, err = parseScopeFlag("env:dev")
	assert.Error(t, err)
}

func TestTargetScopesMergesConfigAndDisk(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	require.NoError(t, cfg.Load())

	// One service from config, one only on disk.
	worker, err := scope.ForService("worker")
	require.NoError(t, err)
	require.NoError(t, localstate.NewStore(cfg.LocalDir()).SetOne(worker, "QUEUE", "jobs", false))

	scopes, err := targetScopes(cfg)
	require.NoError(t, err)
	require.Len(t, scopes, 3)
	assert.Equal(t, scope.Shared, scopes[0])
	assert.Equal(t, "api", scopes[1].ServiceName())
	assert.Equal(t, "worker", scopes[2].ServiceName())
}
