// Package journal records the outcome of every dispatched input file.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Record describes one dispatch of one input file.
type Record struct {
	ID       uuid.UUID `json:"id"`
	Input    string    `json:"input"`
	Sequence int       `json:"sequence"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Outputs  []string  `json:"outputs,omitempty"`
	At       time.Time `json:"at"`
}

// NewRecord returns a record with a fresh ID and timestamp.
func NewRecord(input string, seq int) Record {
	return Record{ID: uuid.New(), Input: input, Sequence: seq, At: time.Now().UTC()}
}

type Writer interface {
	Append(ctx context.Context, r Record) error
	Close() error
}

// MultiWriter fans out records to multiple underlying writers. Every writer
// is tried; the first error is returned.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(ctx context.Context, r Record) error {
	var first error
	for _, w := range m.writers {
		if err := w.Append(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiWriter) Close() error {
	var first error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len reports the number of wrapped writers.
func (m *MultiWriter) Len() int { return len(m.writers) }

// Nop discards records.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }
func (Nop) Close() error                         { return nil }

// FileWriter appends records as JSON lines.
type FileWriter struct {
	mu   sync.Mutex
	path string
}

func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: path}, nil
}

func (w *FileWriter) Append(_ context.Context, r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(&r); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

func (w *FileWriter) Close() error { return nil }
