// Package admin exposes a small local HTTP surface for operators:
// session health as JSON and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fieldscout/internal/gps"
	"fieldscout/internal/metrics"
	"fieldscout/internal/session"
	"fieldscout/internal/upload"
)

// Server serves the admin endpoints.
type Server struct {
	sched *session.Scheduler
	queue *upload.Queue
	col   *metrics.Collector
	mux   *http.ServeMux
}

// Health is the /healthz response body.
type Health struct {
	Running      bool    `json:"running"`
	SessionStart string  `json:"session_start,omitempty"`
	FixStatus    string  `json:"fix_status"`
	FixAgeSec    float64 `json:"fix_age_seconds"`
	QueueDepth   int     `json:"offline_queue_depth"`
}

// NewServer wires the handlers.
func NewServer(sched *session.Scheduler, queue *upload.Queue, col *metrics.Collector) *Server {
	s := &Server{sched: sched, queue: queue, col: col, mux: http.NewServeMux()}
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/gps", s.handleGPS)
	s.mux.Handle("/metrics", col.Handler())
	return s
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fix, age := s.sched.GPSSnapshot()
	h := Health{
		Running:    s.sched.Running(),
		FixStatus:  fix.Status,
		FixAgeSec:  age.Seconds(),
		QueueDepth: s.queue.Depth(),
	}
	if started := s.sched.StartedAt(); !started.IsZero() {
		h.SessionStart = started.Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleGPS(w http.ResponseWriter, r *http.Request) {
	fix, age := s.sched.GPSSnapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		gps.Fix
		AgeSec float64 `json:"age_seconds"`
	}{Fix: fix, AgeSec: age.Seconds()})
}
