package flow

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCounterDrainResets(t *testing.T) {
	c := NewCounter()
	c.Add(3)
	c.Add(4)
	if got := c.DrainPulses(); got != 7 {
		t.Errorf("first drain = %d, want 7", got)
	}
	if got := c.DrainPulses(); got != 0 {
		t.Errorf("second drain = %d, want 0", got)
	}
}

// scriptedPin replays a fixed level sequence, then holds the last level.
type scriptedPin struct {
	mu     sync.Mutex
	levels []int
	i      int
}

func (p *scriptedPin) ReadLevel() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.i < len(p.levels) {
		l := p.levels[p.i]
		p.i++
		return l, nil
	}
	return p.levels[len(p.levels)-1], nil
}

func (p *scriptedPin) exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.i >= len(p.levels)
}

func TestMonitorCountsFallingEdges(t *testing.T) {
	c := NewCounter()
	// Initial read consumes the first level; three falling edges follow.
	pin := &scriptedPin{levels: []int{1, 0, 1, 0, 1, 1, 0, 1}}
	m := NewMonitor(c, pin, 100*time.Microsecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !pin.exhausted() {
		select {
		case <-deadline:
			t.Fatal("monitor did not consume the scripted levels in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := c.DrainPulses(); got != 3 {
		t.Errorf("pulses = %d, want 3", got)
	}
}
