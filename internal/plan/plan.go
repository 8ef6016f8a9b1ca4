// Package plan turns diff output into reviewable, serializable plans and
// executes them against the remote store.
//
// A Plan is a pure value: a deterministic function of the two snapshots that
// produced its change set. It can be serialized, reviewed offline and applied
// later. No staleness check is performed on apply; the recorded changes are
// trusted as-is, without re-diffing.
package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/forattini-dev/vaulter-sub005/internal/diff"
	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

// Operation is the reconciliation direction a plan was built for.
type Operation string

const (
	// OpMerge is the bidirectional merge of local and remote state.
	OpMerge Operation = "merge"
	// OpPush writes local state to the remote store.
	OpPush Operation = "push"
	// OpPull writes remote state into the local override files.
	OpPull Operation = "pull"
)

// ParseOperation validates an operation string.
func ParseOperation(raw string) (Operation, bool) {
	switch Operation(raw) {
	case OpMerge, OpPush, OpPull:
		return Operation(raw), true
	}
	return "", false
}

// Status tracks a plan through its lifecycle.
type Status string

const (
	// StatusPlanned is the initial status of every freshly built plan.
	StatusPlanned Status = "planned"
	// StatusApplied means every recorded change was executed.
	StatusApplied Status = "applied"
	// StatusBlocked means unresolved conflicts prevented construction.
	StatusBlocked Status = "blocked"
	// StatusFailed means at least one change could not be applied.
	StatusFailed Status = "failed"
)

// Context carries the identity and provenance of a plan.
type Context struct {
	Project     string
	Environment string
	Scope       scope.Scope
	Strategy    diff.Strategy
	User        string
	// Sensitive marks which keys belong to the secret bucket so apply can
	// flag them on the remote store and mask them on display.
	Sensitive map[string]bool
}

// Plan is a reviewable description of the changes between a local and a
// remote snapshot for one scope and environment.
type Plan struct {
	ID          string          `json:"id"`
	Operation   Operation       `json:"operation"`
	Project     string          `json:"project"`
	Environment string          `json:"environment"`
	Scope       scope.Scope     `json:"scope"`
	Strategy    diff.Strategy   `json:"strategy,omitempty"`
	Changes     diff.ChangeSet  `json:"changes"`
	Sensitive   map[string]bool `json:"sensitive,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	GeneratedBy string          `json:"generated_by,omitempty"`
	Status      Status          `json:"status"`
}

// Build constructs a plan from a change set. Construction is pure aside from
// stamping the ID and GeneratedAt; the true applied/failed status is set by
// Engine.Apply, never here.
func Build(op Operation, changes diff.ChangeSet, pctx Context) Plan {
	return Plan{
		ID:          uuid.NewString(),
		Operation:   op,
		Project:     pctx.Project,
		Environment: pctx.Environment,
		Scope:       pctx.Scope,
		Strategy:    pctx.Strategy,
		Changes:     changes,
		Sensitive:   pctx.Sensitive,
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: pctx.User,
		Status:      StatusPlanned,
	}
}

// IsEmpty reports whether the plan carries no pending changes.
func (p Plan) IsEmpty() bool {
	return p.Changes.IsEmpty()
}

// ChangeCount returns the number of pending changes.
func (p Plan) ChangeCount() int {
	return len(p.Changes.Added) + len(p.Changes.Updated) + len(p.Changes.Deleted)
}
