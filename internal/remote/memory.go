// Package remote provides the Store implementations vaulter reconciles
// against: an in-memory store for tests and demos, AWS SSM Parameter Store,
// AWS Secrets Manager, and a generic REST backend.
package remote

import (
	"context"
	"sync"
	"time"

	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// fullKey is the unique identity of one variable.
type fullKey struct {
	project     string
	environment string
	sc          scope.Scope
	key         string
}

// MemoryStore implements store.Store in process memory. It is safe for
// concurrent use and backs the "memory" store type and most unit tests.
type MemoryStore struct {
	name string
	vars map[fullKey]store.Variable
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name: name,
		vars: make(map[fullKey]store.Variable),
	}
}

// Name returns the store identifier.
func (m *MemoryStore) Name() string { return m.name }

// List returns a snapshot of all matching variables.
func (m *MemoryStore) List(ctx context.Context, q store.Query) ([]store.Variable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []store.Variable
	for fk, v := range m.vars {
		if fk.project != q.Project || fk.environment != q.Environment {
			continue
		}
		if q.Scope != nil && fk.sc != *q.Scope {
			continue
		}
		result = append(result, v)
	}
	return result, nil
}

// Get returns one variable or a store.NotFoundError.
func (m *MemoryStore) Get(ctx context.Context, key string, q store.Query) (store.Variable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	v, ok := m.vars[fullKey{project: q.Project, environment: q.Environment, sc: sc, key: key}]
	if !ok {
		return store.Variable{}, store.NotFoundError{Store: m.name, Key: key}
	}
	return v, nil
}

// Set creates or overwrites one variable.
func (m *MemoryStore) Set(ctx context.Context, in store.Input) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vars[fullKey{project: in.Project, environment: in.Environment, sc: in.Scope, key: in.Key}] = store.Variable{
		Key:         in.Key,
		Value:       in.Value,
		Project:     in.Project,
		Environment: in.Environment,
		Scope:       in.Scope,
		Sensitive:   in.Sensitive,
		Metadata:    in.Metadata,
		UpdatedAt:   time.Now(),
	}
	return nil
}

// Delete removes one variable, reporting whether it existed.
func (m *MemoryStore) Delete(ctx context.Context, key string, q store.Query) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	fk := fullKey{project: q.Project, environment: q.Environment, sc: sc, key: key}
	if _, ok := m.vars[fk]; !ok {
		return false, nil
	}
	delete(m.vars, fk)
	return true, nil
}

// Export materializes the effective key→value map for the query's scope.
func (m *MemoryStore) Export(ctx context.Context, q store.Query, opts store.ExportOptions) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc := scope.Shared
	if q.Scope != nil {
		sc = *q.Scope
	}

	collect := func(target scope.Scope) map[string]string {
		vars := make(map[string]string)
		for fk, v := range m.vars {
			if fk.project == q.Project && fk.environment == q.Environment && fk.sc == target {
				vars[fk.key] = v.Value
			}
		}
		return vars
	}

	own := collect(sc)
	if sc.IsService() && opts.IncludeShared {
		return scope.MergeForService(collect(scope.Shared), own, true), nil
	}
	return own, nil
}

// Validate always succeeds for the in-memory store.
func (m *MemoryStore) Validate(ctx context.Context) error { return nil }
