// Package session orchestrates one sampling session: it ties the GPS,
// IMU, and flow producers together into batch entries on a fixed tick
// and hands finished batches to the batch sink.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"fieldscout/internal/camera"
	"fieldscout/internal/flow"
	"fieldscout/internal/gps"
	"fieldscout/internal/imu"
	"fieldscout/internal/logging"
	"fieldscout/internal/metrics"
	"fieldscout/internal/status"
	"fieldscout/internal/telemetry"
)

var (
	// ErrAlreadyRunning is returned by Start while a session runs.
	ErrAlreadyRunning = errors.New("session: already running")
	// ErrNotRunning is returned by Stop when no session runs.
	ErrNotRunning = errors.New("session: not running")
)

// Config carries the per-session tuning knobs.
type Config struct {
	// Tick interval.
	Interval time.Duration
	// Entries per batch before a flush.
	BatchSize int
	// IMU samples per second.
	IMURate int
	// Flow meter pulses per liter.
	PulsesPerLiter int

	// Ticks between producer health checks. Zero defaults to 12.
	HealthCheckEvery int
	// IMU data older than this counts as a dead producer. Zero
	// defaults to 10s.
	IMUStaleAfter time.Duration
	// Restart attempts before running degraded without IMU data.
	// Zero defaults to 3.
	MaxIMURestarts int
}

func (c *Config) fill() {
	if c.HealthCheckEvery <= 0 {
		c.HealthCheckEvery = 12
	}
	if c.IMUStaleAfter <= 0 {
		c.IMUStaleAfter = 10 * time.Second
	}
	if c.MaxIMURestarts <= 0 {
		c.MaxIMURestarts = 3
	}
}

// Collaborators are the sensor and output endpoints a session drives.
// Any sensor may be nil: the session runs with whatever hardware is
// present.
type Collaborators struct {
	GPS     gps.LineSource
	IMU     imu.FrameReader
	IMUCal  imu.Profile
	Pulses  flow.PulseSource
	Camera  camera.StillCamera
	Sink    telemetry.BatchSink
	Status  status.Sink
	Metrics *metrics.Collector
}

// Scheduler runs the tick loop. Explicitly constructed and owned, not a
// package singleton, so a failed producer can be replaced by building a
// fresh instance.
type Scheduler struct {
	cfg Config
	co  Collaborators

	gpsState *gps.State

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	// Producer goroutine state, owned by the run loop.
	imuLoop       *imu.Loop
	imuCancel     context.CancelFunc
	imuRestarts   int
	parseMissSeen uint64

	batch       telemetry.Batch
	cameraEvery int
	cameraCount int
	ticks       int

	now func() time.Time
}

// New returns an idle scheduler.
func New(cfg Config, co Collaborators) *Scheduler {
	cfg.fill()
	// One image per interval/5 ticks, matching the legacy capture
	// cadence.
	every := int(cfg.Interval/time.Second) / 5
	if every < 1 {
		every = 1
	}
	return &Scheduler{
		cfg:         cfg,
		co:          co,
		gpsState:    gps.NewState(),
		cameraEvery: every,
		now:         time.Now,
	}
}

// StartedAt returns the session start time (zero while idle).
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Running reports the session state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GPSSnapshot exposes the current fix for the admin surface.
func (s *Scheduler) GPSSnapshot() (gps.Fix, time.Duration) {
	return s.gpsState.Snapshot()
}

// Start brings up the sensor producers and begins the tick loop on its
// own goroutine. Sensor init is best-effort: a missing camera or IMU is
// logged and the session proceeds without it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	log := logging.FromContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)

	if s.co.GPS != nil {
		reader := gps.NewReader(s.gpsState, s.co.GPS)
		go reader.Run(runCtx)
	} else {
		log.Warn("no GPS source, positions will be zero")
	}

	if s.co.IMU != nil {
		s.startIMU(runCtx)
	} else {
		log.Warn("no IMU reader, continuing without inertial data")
	}

	s.running = true
	s.startedAt = s.now()
	s.batch = nil
	s.cameraCount = 0
	s.ticks = 0
	s.imuRestarts = 0
	s.cancel = cancel
	s.done = make(chan struct{})
	if s.co.Status != nil {
		s.co.Status.SetState(status.Running)
	}

	go s.run(runCtx)
	return nil
}

// Stop cancels the tick loop and blocks until it has exited; after Stop
// returns no further ticks will run. The partial batch, if any, is
// flushed on the way out.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.startedAt = time.Time{}
	s.mu.Unlock()

	if s.co.Camera != nil {
		s.co.Camera.Release()
	}
	if s.co.Status != nil {
		s.co.Status.SetState(status.Stopped)
	}
	return nil
}

func (s *Scheduler) startIMU(ctx context.Context) {
	imuCtx, cancel := context.WithCancel(ctx)
	loop := imu.NewLoop(s.co.IMU, s.co.IMUCal, s.cfg.IMURate)
	go loop.Run(imuCtx)
	s.imuLoop = loop
	s.imuCancel = cancel
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	log := logging.FromContext(ctx)
	log.Info("session started", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush(ctx)
			log.Info("session loop exited")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick assembles one batch entry. Nothing a sensor does here may kill
// the loop: every failure collapses to a safe default value.
func (s *Scheduler) tick(ctx context.Context) {
	log := logging.FromContext(ctx)
	s.ticks++

	fix, _ := s.gpsState.Snapshot()
	valid := fix.HasFix()
	if !valid {
		// Substitute a zeroed placeholder so batch cadence and entry
		// indexing stay regular during outages.
		fix = gps.Fix{Status: gps.StatusNoFix}
	}
	if s.co.Status != nil {
		if valid {
			s.co.Status.SetState(status.FixOK)
		} else {
			s.co.Status.SetState(status.NoFix)
		}
	}

	image := s.maybeCapture(ctx)
	litersPerHour := s.drainFlow()

	var samples []imu.Sample
	if s.imuLoop != nil {
		samples = s.imuLoop.Drain()
	}

	entry := telemetry.Entry{
		Timestamp:     s.now(),
		LitersPerHour: litersPerHour,
		Latitude:      fix.Latitude,
		Longitude:     fix.Longitude,
		SpeedKmh:      fix.SpeedKmh,
		Heading:       fix.Course,
		IMU:           samples,
		ImageBase64:   image,
		GPSFixValid:   valid,
	}
	s.batch = append(s.batch, entry)
	log.Debug("tick", "lat", entry.Latitude, "lon", entry.Longitude, "imu_samples", len(samples))

	if len(s.batch) >= s.cfg.BatchSize {
		s.flush(ctx)
	}

	s.publishParseMisses()

	if s.ticks%s.cfg.HealthCheckEvery == 0 {
		s.checkIMUHealth(ctx)
	}
}

// publishParseMisses forwards the receiver's dropped-line count into the
// metrics counter as a delta, once per tick.
func (s *Scheduler) publishParseMisses() {
	if s.co.Metrics == nil {
		return
	}
	misses := s.gpsState.ParseMisses()
	if misses > s.parseMissSeen {
		s.co.Metrics.GPSParseMisses.Add(float64(misses - s.parseMissSeen))
		s.parseMissSeen = misses
	}
}

// flush hands the accumulated batch to the sink and starts a new one.
func (s *Scheduler) flush(ctx context.Context) {
	if len(s.batch) == 0 || s.co.Sink == nil {
		return
	}
	batch := s.batch
	s.batch = nil
	if err := s.co.Sink.WriteBatch(batch); err != nil {
		// The upload engine converts its own failures into durable
		// writes; an error here means a secondary sink (journal)
		// misbehaved, which must not stop sampling.
		logging.FromContext(ctx).Error("batch sink failed", "err", err, "entries", len(batch))
	}
}

// maybeCapture fires the camera once every cameraEvery ticks. A capture
// failure is "no image this tick", never fatal.
func (s *Scheduler) maybeCapture(ctx context.Context) string {
	if s.co.Camera == nil {
		return ""
	}
	s.cameraCount++
	if s.cameraCount < s.cameraEvery {
		return ""
	}
	s.cameraCount = 0
	frame, err := s.co.Camera.CaptureStill(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("image capture failed", "err", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(frame)
}

// drainFlow converts the pulses accumulated over one tick into a
// volumetric rate.
func (s *Scheduler) drainFlow() float64 {
	if s.co.Pulses == nil || s.cfg.PulsesPerLiter <= 0 {
		return 0
	}
	pulses := s.co.Pulses.DrainPulses()
	intervalHours := s.cfg.Interval.Hours()
	if intervalHours <= 0 {
		return 0
	}
	return (float64(pulses) / float64(s.cfg.PulsesPerLiter)) / intervalHours
}

// checkIMUHealth restarts the IMU producer when its data goes stale,
// a bounded number of times; after that the session continues degraded.
func (s *Scheduler) checkIMUHealth(ctx context.Context) {
	if s.imuLoop == nil {
		return
	}
	last := s.imuLoop.LastSample()
	if !last.IsZero() && s.now().Sub(last) <= s.cfg.IMUStaleAfter {
		return
	}
	if last.IsZero() && s.now().Sub(s.startedAt) <= s.cfg.IMUStaleAfter {
		// Still warming up.
		return
	}

	log := logging.FromContext(ctx)
	if s.imuRestarts >= s.cfg.MaxIMURestarts {
		log.Error("imu producer dead after restarts, continuing without inertial data", "restarts", s.imuRestarts)
		s.imuCancel()
		s.imuLoop = nil
		return
	}

	s.imuRestarts++
	log.Warn("imu data stale, restarting producer", "attempt", s.imuRestarts)
	if s.co.Metrics != nil {
		s.co.Metrics.IMURestarts.Inc()
	}
	s.imuCancel()
	s.startIMU(ctx)
}
