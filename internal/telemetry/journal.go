package telemetry

import (
	"encoding/json"
	"os"
	"sync"
)

// JournalWriter appends every batch as one JSONL line to a local file.
// It is a diagnostic mirror, not a durability mechanism; the upload
// engine owns durability.
type JournalWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJournalWriter opens (or creates) the journal file for appending.
func NewJournalWriter(path string) (*JournalWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JournalWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// WriteBatch appends one line per batch.
func (j *JournalWriter) WriteBatch(batch Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(batch)
}

// Close closes the underlying file.
func (j *JournalWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// MultiSink fans a batch out to several sinks. The first error is
// returned after all sinks have been attempted.
type MultiSink struct {
	sinks []BatchSink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...BatchSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// WriteBatch delivers to every sink even when an earlier one fails.
func (m *MultiSink) WriteBatch(batch Batch) error {
	var first error
	for _, s := range m.sinks {
		if err := s.WriteBatch(batch); err != nil && first == nil {
			first = err
		}
	}
	return first
}
