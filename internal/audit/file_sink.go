package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends events to a JSON-lines file, one event per line.
type FileSink struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the audit log at path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &FileSink{path: path, file: file}, nil
}

// Log appends one event as a single JSON line.
func (f *FileSink) Log(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return WriteError{Sink: "file:" + f.path, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.file.Write(append(data, '\n')); err != nil {
		return WriteError{Sink: "file:" + f.path, Err: err}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
