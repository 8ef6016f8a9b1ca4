// Package version keeps the append-only version history of every variable.
//
// Each mutation applied to the remote store appends one Entry; version
// numbers are strictly increasing per variable starting at 1. Rollback never
// rewinds the counter; it appends a new entry whose value equals an old one.
package version

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

// VarID is the identity a history is attached to.
type VarID struct {
	Project     string      `json:"project"`
	Environment string      `json:"environment"`
	Scope       scope.Scope `json:"scope"`
	Key         string      `json:"key"`
}

func (id VarID) String() string {
	return id.Project + "/" + id.Environment + "/" + id.Scope.String() + "/" + id.Key
}

// Entry is one immutable historical value of a variable.
type Entry struct {
	Version   int       `json:"version"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Operation string    `json:"operation"`
	Source    string    `json:"source,omitempty"`
}

// Store provides persistent storage for version histories.
type Store interface {
	// Append adds a new entry for the variable, assigning the next version
	// number (current max + 1, starting at 1). It returns the assigned
	// version.
	Append(ctx context.Context, id VarID, e Entry) (int, error)

	// History returns the entries for a variable, newest first. A positive
	// limit truncates the result.
	History(ctx context.Context, id VarID, limit int) ([]Entry, error)

	// Get returns one specific version, or a NotFoundError if the variable
	// has no entry with that version number.
	Get(ctx context.Context, id VarID, version int) (Entry, error)

	// MaxVersion returns the highest version number recorded for a variable,
	// or 0 when no history exists.
	MaxVersion(ctx context.Context, id VarID) (int, error)

	// Close releases any resources used by the store.
	Close() error
}

// NotFoundError indicates a rollback target that does not exist. It is
// surfaced as-is with no partial effect.
type NotFoundError struct {
	ID      VarID
	Version int
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("version %d not found for %s", e.Version, e.ID)
}

// MemoryStore implements Store in memory. It backs tests and dry-run flows.
type MemoryStore struct {
	entries map[VarID][]Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[VarID][]Entry)}
}

// Append adds a new entry, assigning the next version number.
func (m *MemoryStore) Append(ctx context.Context, id VarID, e Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Version = maxVersionLocked(m.entries[id]) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.entries[id] = append(m.entries[id], e)
	return e.Version, nil
}

// History returns entries newest first.
func (m *MemoryStore) History(ctx context.Context, id VarID, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]Entry, len(m.entries[id]))
	copy(history, m.entries[id])
	sort.Slice(history, func(i, j int) bool {
		return history[i].Version > history[j].Version
	})

	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// Get returns one specific version.
func (m *MemoryStore) Get(ctx context.Context, id VarID, version int) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[id] {
		if e.Version == version {
			return e, nil
		}
	}
	return Entry{}, NotFoundError{ID: id, Version: version}
}

// MaxVersion returns the highest recorded version, or 0.
func (m *MemoryStore) MaxVersion(ctx context.Context, id VarID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maxVersionLocked(m.entries[id]), nil
}

// Close clears the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[VarID][]Entry)
	return nil
}

func maxVersionLocked(entries []Entry) int {
	max := 0
	for _, e := range entries {
		if e.Version > max {
			max = e.Version
		}
	}
	return max
}
