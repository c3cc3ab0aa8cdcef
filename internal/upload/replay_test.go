package upload

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fieldscout/internal/metrics"
	"fieldscout/internal/telemetry"
)

func storeN(t *testing.T, q *Queue, n int) []string {
	t.Helper()
	base := time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC)
	var names []string
	for i := 0; i < n; i++ {
		stamp := base.Add(time.Duration(i) * time.Second)
		q.now = func() time.Time { return stamp }
		name, err := q.Store(testEnvelope(i))
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}
	return names
}

func newTestReplayer(q *Queue, srvURL string) (*Replayer, *stateRecorder) {
	rec := &stateRecorder{}
	client := NewClient(srvURL, "dev-1", Policy{MaxRetries: 0, InitialInterval: 1})
	return NewReplayer(client, q, metrics.New(), rec, time.Minute), rec
}

func TestReplayDrainsInOrder(t *testing.T) {
	var mu sync.Mutex
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zr, _ := gzip.NewReader(r.Body)
		raw, _ := io.ReadAll(zr)
		var env telemetry.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Errorf("replayed body unparseable: %v", err)
		}
		mu.Lock()
		received = append(received, env.Payload[0].Timestamp.Format(time.RFC3339))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	q := newTestQueue(t)
	storeN(t, q, 3)
	r, rec := newTestReplayer(q, srv.URL)

	if got := r.Cycle(context.Background()); got != 3 {
		t.Fatalf("delivered = %d, want 3", got)
	}
	if q.Depth() != 0 {
		t.Errorf("queue depth = %d, want 0 after drain", q.Depth())
	}
	want := []string{"2025-08-11T09:00:00Z", "2025-08-11T09:01:00Z", "2025-08-11T09:02:00Z"}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if received[i] != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, received[i], want[i])
		}
	}
	if rec.last() != "online" {
		t.Errorf("status = %q, want online after a full drain", rec.last())
	}
}

func TestReplayStopsCycleOnFailure(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q := newTestQueue(t)
	storeN(t, q, 3)
	r, _ := newTestReplayer(q, srv.URL)

	if got := r.Cycle(context.Background()); got != 0 {
		t.Fatalf("delivered = %d, want 0", got)
	}
	// The first failure ends the cycle; later files must not be
	// attempted, or they could land before their predecessor.
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
	if q.Depth() != 3 {
		t.Errorf("queue depth = %d, want 3 (nothing lost)", q.Depth())
	}
}

func TestReplayDeletesZeroSizeFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected for an empty file")
	}))
	defer srv.Close()

	q := newTestQueue(t)
	name := "offline_data_20250811_090000.000000.json"
	if err := os.WriteFile(filepath.Join(q.dir, name), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r, _ := newTestReplayer(q, srv.URL)

	r.Cycle(context.Background())
	if q.Depth() != 0 {
		t.Errorf("queue depth = %d, want 0 after dropping the empty file", q.Depth())
	}
}

func TestReplayQuarantinesCorruptFiles(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	q := newTestQueue(t)
	bad := "offline_data_20250811_085900.000000.json"
	if err := os.WriteFile(filepath.Join(q.dir, bad), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	storeN(t, q, 1)
	r, _ := newTestReplayer(q, srv.URL)

	if got := r.Cycle(context.Background()); got != 1 {
		t.Fatalf("delivered = %d, want 1 (the good file)", got)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1 (corrupt file never hits the network)", requests)
	}
	if _, err := os.Stat(filepath.Join(q.dir, quarantineDir, bad)); err != nil {
		t.Errorf("corrupt file not quarantined: %v", err)
	}

	// Quarantine is permanent: the next cycle must not see it again.
	if got := r.Cycle(context.Background()); got != 0 {
		t.Errorf("second cycle delivered %d, want 0", got)
	}
}

func TestFailedUploadThenReplayRecovers(t *testing.T) {
	healthy := false
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	q := newTestQueue(t)
	rec := &stateRecorder{}
	client := NewClient(srv.URL, "dev-1", testPolicy())
	e := NewEngine(context.Background(), client, q, metrics.New(), rec, "dev-1",
		time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC), 60)

	if err := e.UploadNow(context.Background(), telemetry.Batch{{GPSFixValid: true}}); err == nil {
		t.Fatal("expected the upload to fail while the endpoint is down")
	}
	if q.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1 after the failed upload", q.Depth())
	}

	mu.Lock()
	healthy = true
	mu.Unlock()

	r, _ := newTestReplayer(q, srv.URL)
	if got := r.Cycle(context.Background()); got != 1 {
		t.Fatalf("replay delivered %d, want 1", got)
	}
	if q.Depth() != 0 {
		t.Errorf("queue depth = %d, want 0 after recovery", q.Depth())
	}
}

func TestReplayIdleQueueMakesNoRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected for an empty queue")
	}))
	defer srv.Close()

	q := newTestQueue(t)
	r, _ := newTestReplayer(q, srv.URL)
	if got := r.Cycle(context.Background()); got != 0 {
		t.Errorf("delivered = %d, want 0", got)
	}
}
