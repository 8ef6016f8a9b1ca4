package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/forattini-dev/vaulter-sub005/internal/audit"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
	"github.com/forattini-dev/vaulter-sub005/internal/metrics"
	"github.com/forattini-dev/vaulter-sub005/internal/version"
	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// Engine executes plans against the remote store, appending version history
// and emitting audit events for every mutation.
type Engine struct {
	remote   store.Store
	versions version.Store
	audit    *audit.BestEffort
	logger   *logging.Logger
}

// NewEngine wires an apply engine. The audit sink may be nil, in which case
// events are discarded.
func NewEngine(remote store.Store, versions version.Store, sink audit.Sink, logger *logging.Logger) *Engine {
	return &Engine{
		remote:   remote,
		versions: versions,
		audit:    audit.NewBestEffort(sink, logger),
		logger:   logger,
	}
}

// ApplyOptions controls one Apply invocation.
type ApplyOptions struct {
	// DryRun materializes the result without mutating remote state,
	// versions or the audit log.
	DryRun bool
	// AllOrNothing stops at the first per-key failure instead of the
	// default best-effort behavior. Already-applied keys are not undone.
	AllOrNothing bool
	// User overrides the identity recorded in version entries and audit
	// events. Falls back to the plan's GeneratedBy.
	User string
}

// KeyError records one per-key apply failure.
type KeyError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Result aggregates the outcome of one Apply.
type Result struct {
	PlanID    string     `json:"plan_id"`
	Status    Status     `json:"status"`
	Succeeded []string   `json:"succeeded"`
	Failed    []KeyError `json:"failed"`
	DryRun    bool       `json:"dry_run"`
	Duration  time.Duration
}

// Apply executes a plan's changes strictly in the order added → updated →
// deleted, deletions last so a key that is both deleted and recreated is
// never transiently lost.
//
// Per-key failures are recorded and do not abort the remaining items unless
// AllOrNothing is set. A Result is always returned; the returned error is
// non-nil only when nothing could proceed at all.
//
// Re-applying an already-applied plan is not idempotent by value: it appends
// a new version even when the value is unchanged. Callers needing idempotence
// must re-diff before re-applying. Dry-run never mutates remote state nor
// appends versions or audit events.
func (e *Engine) Apply(ctx context.Context, p Plan, opts ApplyOptions) (Result, error) {
	result := Result{PlanID: p.ID, DryRun: opts.DryRun}
	started := time.Now()

	user := opts.User
	if user == "" {
		user = p.GeneratedBy
	}

	if opts.DryRun {
		for _, key := range p.Changes.AddedKeys() {
			result.Succeeded = append(result.Succeeded, key)
		}
		for _, key := range p.Changes.UpdatedKeys() {
			result.Succeeded = append(result.Succeeded, key)
		}
		for _, key := range p.Changes.DeletedKeys() {
			result.Succeeded = append(result.Succeeded, key)
		}
		result.Status = StatusPlanned
		result.Duration = time.Since(started)
		return result, nil
	}

	aborted := false

	writeOne := func(key, value, previous string) {
		if aborted {
			return
		}
		if err := e.setKey(ctx, p, key, value, previous, user); err != nil {
			result.Failed = append(result.Failed, KeyError{Key: key, Error: err.Error()})
			metrics.RecordApplyFailure(p.Project, p.Environment, "set")
			e.logger.Debug("apply failed for %s: %v", logging.Secret(key), err)
			if opts.AllOrNothing {
				aborted = true
			}
			return
		}
		result.Succeeded = append(result.Succeeded, key)
		metrics.RecordApplyChange(p.Project, p.Environment, "set")
	}

	for _, key := range p.Changes.AddedKeys() {
		writeOne(key, p.Changes.Added[key], "")
	}
	for _, key := range p.Changes.UpdatedKeys() {
		change := p.Changes.Updated[key]
		writeOne(key, change.Local, change.Remote)
	}

	for _, key := range p.Changes.DeletedKeys() {
		if aborted {
			break
		}
		if err := e.deleteKey(ctx, p, key, p.Changes.Deleted[key], user); err != nil {
			result.Failed = append(result.Failed, KeyError{Key: key, Error: err.Error()})
			metrics.RecordApplyFailure(p.Project, p.Environment, "delete")
			if opts.AllOrNothing {
				aborted = true
			}
			continue
		}
		result.Succeeded = append(result.Succeeded, key)
		metrics.RecordApplyChange(p.Project, p.Environment, "delete")
	}

	if len(result.Failed) > 0 {
		result.Status = StatusFailed
	} else {
		result.Status = StatusApplied
	}
	result.Duration = time.Since(started)
	return result, nil
}

// setKey writes one variable, appends its version entry and emits the audit
// event. The audit failure path never surfaces: recording is best-effort.
func (e *Engine) setKey(ctx context.Context, p Plan, key, value, previous, user string) error {
	err := e.remote.Set(ctx, store.Input{
		Key:         key,
		Value:       value,
		Project:     p.Project,
		Environment: p.Environment,
		Scope:       p.Scope,
		Sensitive:   p.Sensitive[key],
	})
	if err != nil {
		return err
	}

	id := version.VarID{Project: p.Project, Environment: p.Environment, Scope: p.Scope, Key: key}
	if _, err := e.versions.Append(ctx, id, version.Entry{
		Value:     value,
		User:      user,
		Operation: audit.OpSet,
		Source:    string(p.Operation),
	}); err != nil {
		return fmt.Errorf("value written but version append failed: %w", err)
	}

	e.audit.Log(audit.NewEvent(audit.Event{
		Operation:     audit.OpSet,
		Key:           key,
		Project:       p.Project,
		Environment:   p.Environment,
		Service:       p.Scope.ServiceName(),
		Source:        string(p.Operation),
		PreviousValue: previous,
		NewValue:      value,
		Metadata:      map[string]string{"plan_id": p.ID, "user": user},
	}))
	return nil
}

// deleteKey removes one variable, recording the previous value for the audit
// trail before the delete.
func (e *Engine) deleteKey(ctx context.Context, p Plan, key, previous, user string) error {
	if _, err := e.remote.Delete(ctx, key, store.Query{
		Project:     p.Project,
		Environment: p.Environment,
		Scope:       &p.Scope,
	}); err != nil {
		return err
	}

	id := version.VarID{Project: p.Project, Environment: p.Environment, Scope: p.Scope, Key: key}
	if _, err := e.versions.Append(ctx, id, version.Entry{
		User:      user,
		Operation: audit.OpDelete,
		Source:    string(p.Operation),
	}); err != nil {
		return fmt.Errorf("value deleted but version append failed: %w", err)
	}

	e.audit.Log(audit.NewEvent(audit.Event{
		Operation:     audit.OpDelete,
		Key:           key,
		Project:       p.Project,
		Environment:   p.Environment,
		Service:       p.Scope.ServiceName(),
		Source:        string(p.Operation),
		PreviousValue: previous,
		Metadata:      map[string]string{"plan_id": p.ID, "user": user},
	}))
	return nil
}

// Rollback re-applies the value recorded at targetVersion for one key. It
// always appends a new version (the counter never rewinds) and fails with
// version.NotFoundError when the target does not exist, with no partial
// effect.
func (e *Engine) Rollback(ctx context.Context, id version.VarID, targetVersion int, user string) (int, error) {
	target, err := e.versions.Get(ctx, id, targetVersion)
	if err != nil {
		return 0, err
	}

	var previous string
	current, err := e.remote.Get(ctx, id.Key, store.Query{
		Project:     id.Project,
		Environment: id.Environment,
		Scope:       &id.Scope,
	})
	if err == nil {
		previous = current.Value
	}

	if err := e.remote.Set(ctx, store.Input{
		Key:         id.Key,
		Value:       target.Value,
		Project:     id.Project,
		Environment: id.Environment,
		Scope:       id.Scope,
		Sensitive:   current.Sensitive,
	}); err != nil {
		return 0, err
	}

	newVersion, err := e.versions.Append(ctx, id, version.Entry{
		Value:     target.Value,
		User:      user,
		Operation: audit.OpRollback,
		Source:    fmt.Sprintf("rollback:%d", targetVersion),
	})
	if err != nil {
		return 0, fmt.Errorf("value restored but version append failed: %w", err)
	}

	e.audit.Log(audit.NewEvent(audit.Event{
		Operation:     audit.OpRollback,
		Key:           id.Key,
		Project:       id.Project,
		Environment:   id.Environment,
		Service:       id.Scope.ServiceName(),
		Source:        fmt.Sprintf("rollback:%d", targetVersion),
		PreviousValue: previous,
		NewValue:      target.Value,
		Metadata:      map[string]string{"user": user},
	}))

	return newVersion, nil
}
