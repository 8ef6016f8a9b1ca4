// Package audit emits structured, write-once audit events for every remote
// mutation. Recording is best-effort: a failure to persist an event is
// logged and swallowed, never propagated as an apply failure.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/forattini-dev/vaulter-sub005/internal/logging"
)

// Event is one append-only audit record.
type Event struct {
	ID            string            `json:"id"`
	Operation     string            `json:"operation"`
	Key           string            `json:"key"`
	Project       string            `json:"project"`
	Environment   string            `json:"environment"`
	Service       string            `json:"service,omitempty"`
	Source        string            `json:"source,omitempty"`
	PreviousValue string            `json:"previous_value,omitempty"`
	NewValue      string            `json:"new_value,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Operations recorded by the apply engine.
const (
	OpSet      = "set"
	OpDelete   = "delete"
	OpRollback = "rollback"
)

// NewEvent stamps an ID and timestamp on a partially-filled event.
func NewEvent(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

// Sink persists audit events. Implementations must treat events as
// append-only and never rewrite past records.
type Sink interface {
	Log(event Event) error
	Close() error
}

// WriteError wraps the underlying persistence failure of a sink. It is
// logged by the caller and explicitly never converted into a propagated
// error from apply.
type WriteError struct {
	Sink string
	Err  error
}

func (e WriteError) Error() string {
	return "audit write to " + e.Sink + " failed: " + e.Err.Error()
}

func (e WriteError) Unwrap() error {
	return e.Err
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Log(Event) error { return nil }
func (NopSink) Close() error    { return nil }

// MultiSink fans one event out to several sinks. The first write failure is
// returned; remaining sinks are still attempted.
type MultiSink []Sink

func (m MultiSink) Log(event Event) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Log(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BestEffort wraps a sink so that write failures are logged at warn level and
// swallowed.
type BestEffort struct {
	sink   Sink
	logger *logging.Logger
}

// NewBestEffort wraps sink. A nil sink behaves like NopSink.
func NewBestEffort(sink Sink, logger *logging.Logger) *BestEffort {
	if sink == nil {
		sink = NopSink{}
	}
	return &BestEffort{sink: sink, logger: logger}
}

// Log records the event, swallowing any WriteError.
func (b *BestEffort) Log(event Event) {
	if err := b.sink.Log(event); err != nil {
		b.logger.Warn("audit event %s dropped: %v", event.Operation, err)
	}
}

// Close closes the wrapped sink.
func (b *BestEffort) Close() error {
	return b.sink.Close()
}
