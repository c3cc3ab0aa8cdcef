package imu

import (
	"context"
	"sync"
	"time"

	"fieldscout/internal/logging"
)

// Loop samples the IMU at a fixed rate and accumulates fused samples in
// a shared buffer. The producer (Run) appends, the scheduler drains;
// each operation holds the lock only for the swap or append.
type Loop struct {
	reader   FrameReader
	cal      Profile
	interval time.Duration

	mu     sync.Mutex
	buffer []Sample
	last   time.Time

	now func() time.Time
}

// NewLoop returns a loop sampling ratePerSecond times per second with
// the given calibration profile applied to magnetometer readings.
func NewLoop(reader FrameReader, cal Profile, ratePerSecond int) *Loop {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	return &Loop{
		reader:   reader,
		cal:      cal,
		interval: time.Second / time.Duration(ratePerSecond),
		now:      time.Now,
	}
}

// Run samples until ctx is cancelled. A failed register read degrades
// exactly one sample: it is logged and the loop continues.
func (l *Loop) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := l.reader.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("imu frame read failed", "err", err)
				continue
			}
			l.append(l.fuse(frame))
		}
	}
}

// fuse converts one raw frame into a physical-unit sample.
func (l *Loop) fuse(frame RawFrame) Sample {
	mag := l.cal.Apply(frame.Mag)
	return Sample{
		RawAcc:      frame.Acc,
		RawGyr:      frame.Gyr,
		Acc:         frame.Acc.Mul(accSensitivity),
		Gyr:         frame.Gyr.Mul(gyroSensitivity),
		Mag:         mag,
		Heading:     TiltCompensatedHeading(frame.Acc, mag),
		Temperature: frame.Temperature,
		Pressure:    frame.Pressure,
	}
}

func (l *Loop) append(s Sample) {
	l.mu.Lock()
	l.buffer = append(l.buffer, s)
	l.last = l.now()
	l.mu.Unlock()
}

// Drain atomically swaps the buffer for an empty one and returns the
// accumulated samples. An empty result means "no new data", not an
// error.
func (l *Loop) Drain() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.buffer
	l.buffer = nil
	return out
}

// LastSample returns when the producer last appended a sample. The zero
// time means it has not produced yet.
func (l *Loop) LastSample() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
