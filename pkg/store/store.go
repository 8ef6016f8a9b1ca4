// Package store defines the contract between the vaulter core and the remote
// source of truth.
//
// A Store holds the authoritative set of variables for a project, keyed by
// (project, environment, scope, key). The reconciliation core (diff, plan,
// apply, inventory) only ever talks to a Store through this interface; the
// wire protocol and the at-rest encryption scheme are the store's own
// business.
//
// Implementations live in internal/remote (in-memory, AWS SSM Parameter
// Store, AWS Secrets Manager, generic REST). All of them must be safe for
// concurrent use: the batch executor may issue calls from several goroutines.
//
// Stores do not retry. Connectivity and auth failures are reported as
// UnavailableError and retry policy is left to the caller.
package store

import (
	"context"
	"time"

	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

// Variable is one remote configuration or secret value.
//
// Identity is the (Project, Environment, Scope, Key) tuple. Sensitive controls
// masking on display only; encryption at rest is the store's concern.
type Variable struct {
	Key         string            `json:"key"`
	Value       string            `json:"value"`
	Project     string            `json:"project"`
	Environment string            `json:"environment"`
	Scope       scope.Scope       `json:"scope"`
	Sensitive   bool              `json:"sensitive"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
}

// Input carries one variable write.
type Input struct {
	Key         string
	Value       string
	Project     string
	Environment string
	Scope       scope.Scope
	Sensitive   bool
	Metadata    map[string]string
}

// Query selects variables by project and environment, optionally narrowed to
// one scope. A nil Scope means all scopes in the environment.
type Query struct {
	Project     string
	Environment string
	Scope       *scope.Scope
}

// ExportOptions controls Export behavior.
type ExportOptions struct {
	// IncludeShared overlays shared-pool variables under the service's own,
	// the service winning on key collision.
	IncludeShared bool
}

// Store is the remote collaborator consumed by the reconciliation core.
type Store interface {
	// Name returns the store's identifier for logging and errors.
	Name() string

	// List returns every variable matching the query. The returned slice is a
	// point-in-time snapshot; the core treats it as immutable within one
	// reconciliation pass.
	List(ctx context.Context, q Query) ([]Variable, error)

	// Get returns one variable, or a NotFoundError if it does not exist.
	Get(ctx context.Context, key string, q Query) (Variable, error)

	// Set writes one variable, creating or overwriting it.
	Set(ctx context.Context, in Input) error

	// Delete removes one variable. It reports whether the variable existed.
	Delete(ctx context.Context, key string, q Query) (bool, error)

	// Export materializes the effective key→value map for the query's scope.
	Export(ctx context.Context, q Query, opts ExportOptions) (map[string]string, error)

	// Validate checks that the store is reachable and authenticated.
	Validate(ctx context.Context) error
}

// NotFoundError indicates that a requested variable does not exist.
type NotFoundError struct {
	Store string
	Key   string
}

func (e NotFoundError) Error() string {
	return "variable not found: " + e.Key + " in " + e.Store
}

// UnavailableError indicates a connectivity or authentication failure talking
// to the remote store. The core surfaces it as-is; the batch executor records
// it as a per-item failure and continues.
type UnavailableError struct {
	Store string
	Op    string
	Err   error
}

func (e UnavailableError) Error() string {
	msg := "remote store " + e.Store + " unavailable"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e UnavailableError) Unwrap() error {
	return e.Err
}
