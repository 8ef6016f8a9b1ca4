package version

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forattini-dev/vaulter-sub005/internal/logging"
)

// FileStore implements Store using one JSON document per variable under a
// data directory. Histories are small (one entry per apply), so whole-file
// read-modify-write is acceptable for a single-operator tool.
type FileStore struct {
	dataDir string
	logger  *logging.Logger
	mu      sync.RWMutex
}

// NewFileStore creates a file-based version store rooted at dataDir.
func NewFileStore(dataDir string, logger *logging.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "versions"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create version data directory: %w", err)
	}
	return &FileStore{dataDir: dataDir, logger: logger}, nil
}

// storedHistory is the on-disk document for one variable.
type storedHistory struct {
	ID      VarID   `json:"id"`
	Entries []Entry `json:"entries"`
}

func (f *FileStore) path(id VarID) string {
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		sanitizeFileName(id.Project),
		sanitizeFileName(id.Environment),
		sanitizeFileName(id.Scope.String()),
		sanitizeFileName(id.Key))
	return filepath.Join(f.dataDir, "versions", name)
}

func (f *FileStore) read(id VarID) (storedHistory, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return storedHistory{ID: id}, nil
		}
		return storedHistory{}, fmt.Errorf("failed to read version history: %w", err)
	}

	var stored storedHistory
	if err := json.Unmarshal(data, &stored); err != nil {
		return storedHistory{}, fmt.Errorf("failed to unmarshal version history %s: %w", f.path(id), err)
	}
	return stored, nil
}

func (f *FileStore) write(stored storedHistory) error {
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version history: %w", err)
	}
	if err := os.WriteFile(f.path(stored.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write version history: %w", err)
	}
	return nil
}

// Append adds a new entry, assigning the next version number.
func (f *FileStore) Append(ctx context.Context, id VarID, e Entry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := f.read(id)
	if err != nil {
		return 0, err
	}

	e.Version = maxVersionLocked(stored.Entries) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	stored.Entries = append(stored.Entries, e)

	if err := f.write(stored); err != nil {
		return 0, err
	}

	f.logger.Debug("Appended version %d for %s", e.Version, logging.Secret(id.Key))
	return e.Version, nil
}

// History returns entries newest first.
func (f *FileStore) History(ctx context.Context, id VarID, limit int) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stored, err := f.read(id)
	if err != nil {
		return nil, err
	}

	history := make([]Entry, len(stored.Entries))
	copy(history, stored.Entries)
	sort.Slice(history, func(i, j int) bool {
		return history[i].Version > history[j].Version
	})

	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// Get returns one specific version.
func (f *FileStore) Get(ctx context.Context, id VarID, version int) (Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stored, err := f.read(id)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range stored.Entries {
		if e.Version == version {
			return e, nil
		}
	}
	return Entry{}, NotFoundError{ID: id, Version: version}
}

// MaxVersion returns the highest recorded version, or 0.
func (f *FileStore) MaxVersion(ctx context.Context, id VarID) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stored, err := f.read(id)
	if err != nil {
		return 0, err
	}
	return maxVersionLocked(stored.Entries), nil
}

// Close is a no-op for file storage.
func (f *FileStore) Close() error {
	return nil
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(name)
}
