// Package camera defines the still-frame capture collaborator. The
// actual device binding (V4L2, GigE) lives outside the telemetry core;
// the scheduler only needs encoded bytes or a CaptureError.
package camera

import (
	"context"
	"fmt"
)

// StillCamera captures one encoded frame per call.
type StillCamera interface {
	// CaptureStill returns one JPEG-encoded frame.
	CaptureStill(ctx context.Context) ([]byte, error)
	// Release frees the underlying device. Safe to call more than once.
	Release() error
}

// CaptureError reports a failed frame grab. The scheduler treats it as
// "no image this tick", never as fatal.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera capture failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("camera capture failed: %s", e.Reason)
}

func (e *CaptureError) Unwrap() error { return e.Err }
