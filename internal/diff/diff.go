// Package diff compares a materialized local desired state against a remote
// snapshot for one scope and environment, producing a categorized change set.
//
// Equality is strict string equality; no semantic or whitespace normalization
// is applied. Both inputs are plain key→value maps and are never mutated.
package diff

import (
	"sort"
	"strings"
)

// Strategy selects how bidirectional merge resolves keys that differ on both
// sides. There is no stored last-synced snapshot, so divergence between the
// two snapshots is the only conflict signal; the absence of a true three-way
// base is a known limitation.
type Strategy string

const (
	// StrategyError refuses to resolve conflicts, blocking plan construction.
	StrategyError Strategy = "error"
	// StrategyLocalWins resolves conflicts by pushing the local value.
	StrategyLocalWins Strategy = "local-wins"
	// StrategyRemoteWins resolves conflicts by keeping the remote value.
	StrategyRemoteWins Strategy = "remote-wins"
)

// ParseStrategy validates a strategy string.
func ParseStrategy(raw string) (Strategy, bool) {
	switch Strategy(raw) {
	case StrategyError, StrategyLocalWins, StrategyRemoteWins:
		return Strategy(raw), true
	}
	return "", false
}

// Change records the two sides of a differing key.
type Change struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// ChangeSet is the result of one diff invocation.
//
// Added, Updated and Unchanged partition the local key set; Deleted holds
// remote keys absent locally (removal candidates; the caller decides whether
// deletions are honored). Conflicts is populated only by Merge and records
// keys that differed on both sides, regardless of how the strategy resolved
// them.
type ChangeSet struct {
	Added     map[string]string `json:"added"`
	Updated   map[string]Change `json:"updated"`
	Deleted   map[string]string `json:"deleted"`
	Unchanged map[string]string `json:"unchanged"`
	Conflicts map[string]Change `json:"conflicts,omitempty"`
}

func newChangeSet() ChangeSet {
	return ChangeSet{
		Added:     make(map[string]string),
		Updated:   make(map[string]Change),
		Deleted:   make(map[string]string),
		Unchanged: make(map[string]string),
		Conflicts: make(map[string]Change),
	}
}

// IsEmpty reports whether the set contains no pending changes. Unchanged keys
// do not count.
func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Added) == 0 && len(cs.Updated) == 0 && len(cs.Deleted) == 0
}

// AddedKeys returns the added keys in sorted order.
func (cs ChangeSet) AddedKeys() []string { return sortedKeys(cs.Added) }

// UpdatedKeys returns the updated keys in sorted order.
func (cs ChangeSet) UpdatedKeys() []string {
	keys := make([]string, 0, len(cs.Updated))
	for k := range cs.Updated {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeletedKeys returns the deletion-candidate keys in sorted order.
func (cs ChangeSet) DeletedKeys() []string { return sortedKeys(cs.Deleted) }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff classifies every local key as added, updated or unchanged against the
// remote snapshot, and every remote-only key as a deletion candidate. Empty
// inputs yield an empty ChangeSet.
func Diff(local, remote map[string]string) ChangeSet {
	cs := newChangeSet()

	for key, localValue := range local {
		remoteValue, exists := remote[key]
		switch {
		case !exists:
			cs.Added[key] = localValue
		case localValue != remoteValue:
			cs.Updated[key] = Change{Local: localValue, Remote: remoteValue}
		default:
			cs.Unchanged[key] = localValue
		}
	}

	for key, remoteValue := range remote {
		if _, exists := local[key]; !exists {
			cs.Deleted[key] = remoteValue
		}
	}

	return cs
}

// Merge performs the bidirectional diff. Keys present and differing on both
// sides are conflicts: with StrategyError a ConflictError is returned and no
// change set is produced; with StrategyLocalWins they are classified as
// updates; with StrategyRemoteWins the remote value stands and they are
// classified as unchanged. Resolved or not, conflicted keys are recorded in
// ChangeSet.Conflicts so callers can report them.
func Merge(local, remote map[string]string, strategy Strategy) (ChangeSet, error) {
	cs := newChangeSet()
	var conflictKeys []string

	for key, localValue := range local {
		remoteValue, exists := remote[key]
		switch {
		case !exists:
			cs.Added[key] = localValue
		case localValue != remoteValue:
			cs.Conflicts[key] = Change{Local: localValue, Remote: remoteValue}
			conflictKeys = append(conflictKeys, key)
			switch strategy {
			case StrategyLocalWins:
				cs.Updated[key] = Change{Local: localValue, Remote: remoteValue}
			case StrategyRemoteWins:
				cs.Unchanged[key] = remoteValue
			}
		default:
			cs.Unchanged[key] = localValue
		}
	}

	if len(conflictKeys) > 0 && strategy == StrategyError {
		sort.Strings(conflictKeys)
		return ChangeSet{}, ConflictError{Keys: conflictKeys}
	}

	for key, remoteValue := range remote {
		if _, exists := local[key]; !exists {
			cs.Deleted[key] = remoteValue
		}
	}

	return cs, nil
}

// ConflictError reports keys that diverged on both sides while no resolution
// strategy was selected. The caller must re-invoke with an explicit strategy.
type ConflictError struct {
	Keys []string
}

func (e ConflictError) Error() string {
	return "merge conflict on " + strings.Join(e.Keys, ", ") +
		": both sides changed; re-run with --strategy local-wins or remote-wins"
}
