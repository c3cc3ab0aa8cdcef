package gps

import (
	"context"
	"errors"
	"time"

	"fieldscout/internal/logging"
)

// ErrReadTimeout is returned by LineSource implementations when no
// sentence arrived within the transport's poll window. The reader treats
// it as silence, not as a fault.
var ErrReadTimeout = errors.New("gps: read timeout")

// LineSource yields raw sentence lines from the receiver. The serial/AT
// transport behind it is an external collaborator.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

// Reader pumps a LineSource into a State until cancelled.
type Reader struct {
	state  *State
	source LineSource
	// Pause after a transport fault before the next read.
	retryDelay time.Duration
}

// NewReader returns a reader feeding state from source.
func NewReader(state *State, source LineSource) *Reader {
	return &Reader{state: state, source: source, retryDelay: time.Second}
}

// Run blocks until ctx is cancelled. Read timeouts are silent; other
// transport faults are logged and retried after a short pause so a
// receiver mid-reset does not spin the loop.
func (r *Reader) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := r.source.ReadLine(ctx)
		switch {
		case err == nil:
			r.state.Ingest(line)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		case errors.Is(err, ErrReadTimeout):
			// No sentence this window; the receiver may be cold-starting.
		default:
			log.Warn("gps read failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retryDelay):
			}
		}
	}
}
