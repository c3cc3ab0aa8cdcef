// Package status publishes coarse device state to an operator-visible
// indicator (LED controller, log line, test recorder).
package status

import (
	"context"
	"sync"

	"fieldscout/internal/logging"
)

// Tag identifies one operator-visible device state.
type Tag string

const (
	Booting        Tag = "booting"
	Running        Tag = "running"
	Stopped        Tag = "stopped"
	NoFix          Tag = "no_fix"
	FixOK          Tag = "fix_ok"
	Online         Tag = "online"
	Offline        Tag = "offline"
	UploadsPending Tag = "uploads_pending"
	Fault          Tag = "fault"
)

// Sink receives state changes. Implementations must be safe for
// concurrent use; the scheduler and the upload engine both publish.
type Sink interface {
	SetState(tag Tag)
}

// LogSink logs every state change. It is the default when no LED
// controller is wired up.
type LogSink struct {
	ctx context.Context
}

// NewLogSink returns a sink logging through the context logger.
func NewLogSink(ctx context.Context) *LogSink {
	return &LogSink{ctx: ctx}
}

func (s *LogSink) SetState(tag Tag) {
	logging.FromContext(s.ctx).Info("state change", "state", string(tag))
}

// Dedup wraps a sink and drops repeated publications of the same tag so
// a per-tick publisher does not flood the indicator.
type Dedup struct {
	mu   sync.Mutex
	last Tag
	next Sink
}

// NewDedup wraps next with duplicate suppression.
func NewDedup(next Sink) *Dedup {
	return &Dedup{next: next}
}

func (d *Dedup) SetState(tag Tag) {
	d.mu.Lock()
	changed := d.last != tag
	d.last = tag
	d.mu.Unlock()
	if changed {
		d.next.SetState(tag)
	}
}
