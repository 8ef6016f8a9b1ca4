package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	vaultererrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
)

const (
	// DefaultFileName is the configuration file vaulter looks for.
	DefaultFileName = "vaulter.yaml"

	defaultLocalDir    = "local"
	defaultDataDir     = ".vaulter/data"
	defaultConcurrency = 4
)

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the vaulter.yaml structure
type Definition struct {
	Version      int                    `yaml:"version"`
	Project      string                 `yaml:"project"`
	Environments []string               `yaml:"environments"`
	Services     []string               `yaml:"services,omitempty"`
	Stores       map[string]StoreConfig `yaml:"stores"`
	Defaults     Defaults               `yaml:"defaults,omitempty"`
	Local        LocalConfig            `yaml:"local,omitempty"`
	Data         DataConfig             `yaml:"data,omitempty"`
	Audit        AuditConfig            `yaml:"audit,omitempty"`
}

// StoreConfig holds remote store-specific configuration
type StoreConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// Defaults holds fallback values applied when flags are not given
type Defaults struct {
	Environment string `yaml:"environment,omitempty"`
	Store       string `yaml:"store,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	User        string `yaml:"user,omitempty"`
}

// LocalConfig points at the directory holding the local env files
type LocalConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// DataConfig points at the directory holding version history and plan artifacts
type DataConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// AuditConfig selects audit sinks. Both may be active at once.
type AuditConfig struct {
	File string          `yaml:"file,omitempty"`
	SQL  *SQLAuditConfig `yaml:"sql,omitempty"`
}

// SQLAuditConfig configures the database audit sink
type SQLAuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table,omitempty"`
}

// Load reads and parses the vaulter.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return vaultererrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Run 'vaulter init' to create a new configuration file",
			}
		}
		return vaultererrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return vaultererrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return vaultererrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your vaulter.yaml file",
		}
	}

	if def.Project == "" {
		return vaultererrors.ConfigError{
			Field:      "project",
			Message:    "project name is required",
			Suggestion: "Set 'project: <name>' in your vaulter.yaml file",
		}
	}

	if len(def.Environments) == 0 {
		return vaultererrors.ConfigError{
			Field:      "environments",
			Message:    "at least one environment is required",
			Suggestion: "List your environments, for example: environments: [dev, stg, prd]",
		}
	}

	c.Definition = &def
	return nil
}

// Project returns the configured project name.
func (c *Config) Project() string {
	if c.Definition == nil {
		return ""
	}
	return c.Definition.Project
}

// ResolveEnvironment validates an environment name, falling back to the
// configured default when name is empty.
func (c *Config) ResolveEnvironment(name string) (string, error) {
	if c.Definition == nil {
		return "", vaultererrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	if name == "" {
		name = c.Definition.Defaults.Environment
	}
	if name == "" {
		return "", vaultererrors.UserError{
			Message:    "No environment specified",
			Suggestion: fmt.Sprintf("Pass --env or set 'defaults.environment'. Available environments: %s", strings.Join(c.Definition.Environments, ", ")),
		}
	}

	for _, env := range c.Definition.Environments {
		if env == name {
			return name, nil
		}
	}

	return "", vaultererrors.ConfigError{
		Field:      "environment",
		Value:      name,
		Message:    "environment not found",
		Suggestion: fmt.Sprintf("Available environments: %s", strings.Join(c.Definition.Environments, ", ")),
	}
}

// GetStore returns the configuration for a named remote store
func (c *Config) GetStore(name string) (StoreConfig, error) {
	if c.Definition == nil {
		return StoreConfig{}, vaultererrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	if store, ok := c.Definition.Stores[name]; ok {
		return store, nil
	}

	var available []string
	for storeName := range c.Definition.Stores {
		available = append(available, storeName)
	}

	suggestion := "Add the store to the 'stores:' section of your vaulter.yaml"
	if len(available) > 0 {
		suggestion = fmt.Sprintf("Available stores: %s. %s", strings.Join(available, ", "), suggestion)
	}

	return StoreConfig{}, vaultererrors.ConfigError{
		Field:      "store",
		Value:      name,
		Message:    "store not found in configuration",
		Suggestion: suggestion,
	}
}

// ResolveStore picks the store to use: the named one, the configured default,
// or the only configured store when there is exactly one.
func (c *Config) ResolveStore(name string) (string, StoreConfig, error) {
	if name == "" {
		name = c.Definition.Defaults.Store
	}
	if name == "" && len(c.Definition.Stores) == 1 {
		for only := range c.Definition.Stores {
			name = only
		}
	}
	if name == "" {
		return "", StoreConfig{}, vaultererrors.UserError{
			Message:    "No remote store specified",
			Suggestion: "Pass --store or set 'defaults.store' in your vaulter.yaml",
		}
	}

	sc, err := c.GetStore(name)
	if err != nil {
		return "", StoreConfig{}, err
	}
	return name, sc, nil
}

// KnownServices returns the declared service names.
func (c *Config) KnownServices() []string {
	if c.Definition == nil {
		return nil
	}
	return c.Definition.Services
}

// Concurrency returns the configured default concurrency for batch apply.
func (c *Config) Concurrency() int {
	if c.Definition == nil || c.Definition.Defaults.Concurrency <= 0 {
		return defaultConcurrency
	}
	return c.Definition.Defaults.Concurrency
}

// User returns the identity recorded on version entries and audit events.
// Falls back to the OS user when not configured.
func (c *Config) User() string {
	if c.Definition != nil && c.Definition.Defaults.User != "" {
		return c.Definition.Defaults.User
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// LocalDir returns the directory holding local env files, relative to the
// config file's directory unless absolute.
func (c *Config) LocalDir() string {
	dir := defaultLocalDir
	if c.Definition != nil && c.Definition.Local.Dir != "" {
		dir = c.Definition.Local.Dir
	}
	return c.resolvePath(dir)
}

// DataDir returns the directory holding version history and plan artifacts.
func (c *Config) DataDir() string {
	dir := defaultDataDir
	if c.Definition != nil && c.Definition.Data.Dir != "" {
		dir = c.Definition.Data.Dir
	}
	return c.resolvePath(dir)
}

func (c *Config) resolvePath(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(c.Path), dir)
}
