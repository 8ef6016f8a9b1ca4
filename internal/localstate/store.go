// Package localstate persists the locally-held desired state: per-scope
// override files split into a plain "config" bucket and a sensitive "secret"
// bucket.
//
// Layout under the base directory:
//
//	local/configs.env                      shared scope, config bucket
//	local/secrets.env                      shared scope, secret bucket
//	local/services/<name>/configs.env      service scope, config bucket
//	local/services/<name>/secrets.env      service scope, secret bucket
//
// Files are owned by the workstation or CI job running vaulter. They are
// never synchronized to the remote store except through an explicit push or
// apply. Read-merge-write operations are last-writer-wins; the store assumes
// a single operator per checkout.
package localstate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

const (
	configsFile = "configs.env"
	secretsFile = "secrets.env"
	servicesDir = "services"
)

// OverrideSet is the local desired state for one scope, partitioned into the
// config and secret buckets.
type OverrideSet struct {
	Configs map[string]string
	Secrets map[string]string
}

// NewOverrideSet returns an OverrideSet with empty buckets.
func NewOverrideSet() OverrideSet {
	return OverrideSet{
		Configs: make(map[string]string),
		Secrets: make(map[string]string),
	}
}

// Merged flattens both buckets into one key→value map, the secret bucket
// winning if a key somehow appears in both.
func (s OverrideSet) Merged() map[string]string {
	merged := make(map[string]string, len(s.Configs)+len(s.Secrets))
	for k, v := range s.Configs {
		merged[k] = v
	}
	for k, v := range s.Secrets {
		merged[k] = v
	}
	return merged
}

// IsSecret reports whether a key lives in the secret bucket.
func (s OverrideSet) IsSecret(key string) bool {
	_, ok := s.Secrets[key]
	return ok
}

// Len returns the total number of overrides across both buckets.
func (s OverrideSet) Len() int {
	return len(s.Configs) + len(s.Secrets)
}

// Store reads and writes override files under one base directory.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir (conventionally "local").
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// ScopeDir returns the directory holding a scope's override files.
func (st *Store) ScopeDir(sc scope.Scope) string {
	if sc.IsShared() {
		return st.baseDir
	}
	return filepath.Join(st.baseDir, servicesDir, sc.ServiceName())
}

// Load reads both buckets for a scope. Missing files yield empty buckets,
// never an error.
func (st *Store) Load(sc scope.Scope) (OverrideSet, error) {
	dir := st.ScopeDir(sc)

	configs, err := st.loadFile(filepath.Join(dir, configsFile))
	if err != nil {
		return OverrideSet{}, err
	}
	secrets, err := st.loadFile(filepath.Join(dir, secretsFile))
	if err != nil {
		return OverrideSet{}, err
	}

	return OverrideSet{Configs: configs, Secrets: secrets}, nil
}

func (st *Store) loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseEnvFile(path, data)
}

// Save writes both buckets deterministically, creating the scope directory
// if needed.
func (st *Store) Save(sc scope.Scope, set OverrideSet) error {
	dir := st.ScopeDir(sc)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create scope directory %s: %w", dir, err)
	}

	if err := os.WriteFile(filepath.Join(dir, configsFile), serializeEnvFile(set.Configs), 0644); err != nil {
		return fmt.Errorf("failed to write config bucket: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, secretsFile), serializeEnvFile(set.Secrets), 0600); err != nil {
		return fmt.Errorf("failed to write secret bucket: %w", err)
	}
	return nil
}

// SetOne sets a single override via read-merge-write. Setting a key in one
// bucket removes it from the other so the key keeps a single identity.
// Not safe against concurrent external edits; last writer wins.
func (st *Store) SetOne(sc scope.Scope, key, value string, secret bool) error {
	set, err := st.Load(sc)
	if err != nil {
		return err
	}

	if secret {
		delete(set.Configs, key)
		set.Secrets[key] = value
	} else {
		delete(set.Secrets, key)
		set.Configs[key] = value
	}

	return st.Save(sc, set)
}

// DeleteOne removes a key from whichever bucket holds it. It reports whether
// the key existed.
func (st *Store) DeleteOne(sc scope.Scope, key string) (bool, error) {
	set, err := st.Load(sc)
	if err != nil {
		return false, err
	}

	_, inConfigs := set.Configs[key]
	_, inSecrets := set.Secrets[key]
	if !inConfigs && !inSecrets {
		return false, nil
	}

	delete(set.Configs, key)
	delete(set.Secrets, key)

	if err := st.Save(sc, set); err != nil {
		return false, err
	}
	return true, nil
}

// ListServices returns the names of all service scopes that have a local
// override directory, sorted by the filesystem's directory order.
func (st *Store) ListServices() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(st.baseDir, servicesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list service scopes: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
