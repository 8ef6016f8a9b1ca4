package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/internal/config"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
)

func TestInitCommand_CreatesConfig(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, config.DefaultFileName)

	cfg := &config.Config{
		Path:   configPath,
		Logger: logging.New(false, true),
	}

	cmd := NewInitCommand(cfg)

	err := cmd.Execute()
	require.NoError(t, err)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)

	assert.Contains(t, string(content), "version:")
	assert.Contains(t, string(content), "environments:")
	assert.Contains(t, string(content), "stores:")

	// The generated file must load cleanly.
	require.NoError(t, cfg.Load())
	assert.NotEmpty(t, cfg.Project())
}

func TestInitCommand_ExistingConfigError(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("existing config"), 0644))

	cfg := &config.Config{
		Path:   configPath,
		Logger: logging.New(false, true),
	}

	cmd := NewInitCommand(cfg)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitCommand_CustomPath(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "custom", config.DefaultFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))

	cfg := &config.Config{
		Path:   configPath,
		Logger: logging.New(false, true),
	}

	cmd := NewInitCommand(cfg)

	err := cmd.Execute()
	require.NoError(t, err)

	_, err = os.Stat(configPath)
	require.NoError(t, err, "config file should exist at custom path")
}
