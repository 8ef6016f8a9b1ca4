package fakes

import (
	"sync"

	"github.com/forattini-dev/vaulter-sub005/internal/audit"
)

// RecordingSink captures every audit event for assertions. An optional Err
// makes all writes fail.
type RecordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	Err    error
	Closed bool
}

func (r *RecordingSink) Log(event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *RecordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

// Events returns a copy of the captured events.
func (r *RecordingSink) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event{}, r.events...)
}
