package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fieldscout/internal/telemetry"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func testEnvelope(seq int) telemetry.Envelope {
	start := time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC)
	return telemetry.NewEnvelope("6f1c2e34-0000-4000-8000-000000000000", start, 60,
		telemetry.Batch{{Timestamp: start.Add(time.Duration(seq) * time.Minute), GPSFixValid: true}})
}

func TestQueueStoreAndLoad(t *testing.T) {
	q := newTestQueue(t)
	name, err := q.Store(testEnvelope(0))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "offline_data_") || !strings.HasSuffix(name, ".json") {
		t.Errorf("unexpected file name %q", name)
	}

	env, raw, err := q.Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if env.DeviceUUID != "6f1c2e34-0000-4000-8000-000000000000" {
		t.Errorf("device uuid = %q", env.DeviceUUID)
	}
	if len(env.Payload) != 1 {
		t.Errorf("payload has %d entries, want 1", len(env.Payload))
	}
	if len(raw) == 0 {
		t.Error("raw bytes empty")
	}
}

func TestQueueListChronological(t *testing.T) {
	q := newTestQueue(t)
	base := time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC)
	var names []string
	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Second)
		q.now = func() time.Time { return stamp }
		name, err := q.Store(testEnvelope(i))
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}

	files, err := q.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("list returned %d files, want 3", len(files))
	}
	for i, f := range files {
		if f.Name != names[i] {
			t.Errorf("position %d: %q, want %q (creation order)", i, f.Name, names[i])
		}
		if f.Size == 0 {
			t.Errorf("%s listed with zero size", f.Name)
		}
	}
	if q.Depth() != 3 {
		t.Errorf("depth = %d, want 3", q.Depth())
	}
}

func TestQueueListSkipsTempAndForeignFiles(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Store(testEnvelope(0)); err != nil {
		t.Fatal(err)
	}
	// A crash between write and rename leaves a .tmp behind; it must
	// never be replayed.
	for _, stray := range []string{"offline_data_x.json.tmp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(q.dir, stray), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := q.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("list returned %d files, want 1: %+v", len(files), files)
	}
}

func TestQueueDelete(t *testing.T) {
	q := newTestQueue(t)
	name, err := q.Store(testEnvelope(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Delete(name); err != nil {
		t.Fatal(err)
	}
	if q.Depth() != 0 {
		t.Errorf("depth after delete = %d, want 0", q.Depth())
	}
}

func TestQueueQuarantine(t *testing.T) {
	q := newTestQueue(t)
	name := "offline_data_20250811_090000.000000.json"
	if err := os.WriteFile(filepath.Join(q.dir, name), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := q.Load(name); err == nil {
		t.Fatal("expected a parse error")
	}
	if err := q.Quarantine(name); err != nil {
		t.Fatal(err)
	}
	if q.Depth() != 0 {
		t.Errorf("depth after quarantine = %d, want 0", q.Depth())
	}
	if _, err := os.Stat(filepath.Join(q.dir, quarantineDir, name)); err != nil {
		t.Errorf("quarantined file not preserved: %v", err)
	}
}
