// Package flow counts flow-meter pulses. The pin-level transport (GPIO
// chip claim, pull-ups) is an external collaborator; the core only sees
// level reads and an atomically drained pulse count.
package flow

import (
	"context"
	"sync/atomic"
	"time"

	"fieldscout/internal/logging"
)

// PulseSource yields the number of pulses observed since the previous
// drain. Implementations must be callable repeatedly without leaking.
type PulseSource interface {
	DrainPulses() int
}

// LevelReader reads the instantaneous logic level of the meter pin.
type LevelReader interface {
	ReadLevel() (int, error)
}

// Counter accumulates pulses and hands them out atomically.
type Counter struct {
	pulses atomic.Int64
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Add records n pulses.
func (c *Counter) Add(n int) {
	c.pulses.Add(int64(n))
}

// DrainPulses returns the accumulated count and resets it to zero.
func (c *Counter) DrainPulses() int {
	return int(c.pulses.Swap(0))
}

// Monitor polls a LevelReader and counts falling edges into a Counter.
type Monitor struct {
	counter *Counter
	pin     LevelReader
	period  time.Duration
}

// NewMonitor returns a monitor polling pin every period. A period of
// zero defaults to 1ms, matching the meter's pulse width.
func NewMonitor(counter *Counter, pin LevelReader, period time.Duration) *Monitor {
	if period <= 0 {
		period = time.Millisecond
	}
	return &Monitor{counter: counter, pin: pin, period: period}
}

// Run polls until ctx is cancelled. A read fault is logged and polling
// continues; the meter may be mid-reconnect.
func (m *Monitor) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	last, err := m.pin.ReadLevel()
	if err != nil {
		log.Warn("flow pin initial read failed", "err", err)
		last = 1
	}
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level, err := m.pin.ReadLevel()
			if err != nil {
				log.Warn("flow pin read failed", "err", err)
				continue
			}
			if last == 1 && level == 0 {
				m.counter.Add(1)
			}
			last = level
		}
	}
}
