package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fieldscout/internal/telemetry"
)

const (
	filePrefix    = "offline_data_"
	fileSuffix    = ".json"
	quarantineDir = "problematic"
	// Sortable creation timestamp; microseconds keep two batches
	// failing within the same second from colliding.
	stampLayout = "20060102_150405.000000"
)

// Queue is the disk-backed store of batches awaiting delivery. One file
// per failed batch, named by creation time so lexical order is
// chronological order. The upload engine is the only component that
// touches this directory.
type Queue struct {
	dir string
	now func() time.Time
}

// QueuedFile describes one pending entry.
type QueuedFile struct {
	Name string
	Size int64
}

// NewQueue creates the queue and quarantine directories if needed.
func NewQueue(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create offline dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, quarantineDir), 0o755); err != nil {
		return nil, fmt.Errorf("create quarantine dir: %w", err)
	}
	return &Queue{dir: dir, now: time.Now}, nil
}

// Store persists an envelope, uncompressed, via write-then-rename so a
// crash cannot leave a half-written file in the active queue.
func (q *Queue) Store(env telemetry.Envelope) (string, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize envelope: %w", err)
	}
	name := filePrefix + q.now().UTC().Format(stampLayout) + fileSuffix
	tmp := filepath.Join(q.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write offline file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(q.dir, name)); err != nil {
		return "", fmt.Errorf("commit offline file: %w", err)
	}
	return name, nil
}

// List returns pending files in creation (chronological) order.
func (q *Queue) List() ([]QueuedFile, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("list offline dir: %w", err)
	}
	var files []QueuedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, QueuedFile{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Depth returns the number of pending files, zero on a listing error.
func (q *Queue) Depth() int {
	files, err := q.List()
	if err != nil {
		return 0
	}
	return len(files)
}

// Load reads and parses one pending file.
func (q *Queue) Load(name string) (telemetry.Envelope, []byte, error) {
	data, err := os.ReadFile(filepath.Join(q.dir, name))
	if err != nil {
		return telemetry.Envelope{}, nil, fmt.Errorf("read offline file: %w", err)
	}
	var env telemetry.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return telemetry.Envelope{}, nil, fmt.Errorf("parse offline file %s: %w", name, err)
	}
	return env, data, nil
}

// Delete removes a delivered file.
func (q *Queue) Delete(name string) error {
	return os.Remove(filepath.Join(q.dir, name))
}

// Quarantine moves an unparseable file aside so it is never retried and
// never silently destroyed.
func (q *Queue) Quarantine(name string) error {
	return os.Rename(
		filepath.Join(q.dir, name),
		filepath.Join(q.dir, quarantineDir, name),
	)
}
