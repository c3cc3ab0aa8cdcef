package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fieldscout/internal/admin"
	"fieldscout/internal/config"
	"fieldscout/internal/device"
	"fieldscout/internal/imu"
	"fieldscout/internal/logging"
	"fieldscout/internal/metrics"
	"fieldscout/internal/session"
	"fieldscout/internal/status"
	"fieldscout/internal/telemetry"
	"fieldscout/internal/upload"
)

var (
	runConfigPath string
	runSchemaPath string
	runGPSDevice  string
	runSimulate   bool
	runDebug      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the telemetry session",
	Long:  "run samples the sensors on the configured interval, batches the entries, and delivers them to the ingestion endpoint, queueing offline when the link is down.",
	RunE:  runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/config.yaml", "Path to YAML config")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/device.cue", "Path to CUE schema for config validation")
	runCmd.Flags().StringVar(&runGPSDevice, "gps-device", "", "Serial device or sentence log to read NMEA from")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Use synthetic sensor sources instead of hardware")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath, runSchemaPath)
	if err != nil {
		return err
	}

	logger := logging.New(runDebug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	deviceUUID, err := device.LoadOrCreate(cfg.DeviceIDPath)
	if err != nil {
		return err
	}
	logger.Info("device identity loaded", "uuid", deviceUUID)

	col := metrics.New()
	sink := status.NewDedup(status.NewLogSink(ctx))
	sink.SetState(status.Booting)

	queue, err := upload.NewQueue(cfg.OfflineDataDir)
	if err != nil {
		return err
	}
	client := upload.NewClient(cfg.IngestURL(), deviceUUID, upload.DefaultPolicy())
	engine := upload.NewEngine(ctx, client, queue, col, sink, deviceUUID, time.Now(), cfg.SleepInterval)

	var batchSink telemetry.BatchSink = engine
	if cfg.JournalPath != "" {
		journal, jerr := telemetry.NewJournalWriter(cfg.JournalPath)
		if jerr != nil {
			logger.Warn("journal disabled", "path", cfg.JournalPath, "err", jerr)
		} else {
			defer journal.Close()
			batchSink = telemetry.NewMultiSink(engine, journal)
		}
	}

	co := session.Collaborators{
		IMUCal:  loadCalibration(ctx, cfg.CalibrationPath),
		Sink:    batchSink,
		Status:  sink,
		Metrics: col,
	}
	if runSimulate {
		logger.Info("running with synthetic sensors")
		co.GPS = newSimLineSource()
		co.IMU = newSimFrameReader()
		if cfg.Camera {
			co.Camera = simCamera{}
		}
		if cfg.FlowMeter {
			co.Pulses = newSimPulses()
		}
	} else if runGPSDevice != "" {
		src, serr := openLineSource(runGPSDevice)
		if serr != nil {
			return serr
		}
		defer src.Close()
		co.GPS = src
	} else {
		logger.Warn("no GPS device configured, pass --gps-device or --simulate")
	}

	sched := session.New(session.Config{
		Interval:       cfg.TickInterval(),
		BatchSize:      cfg.BatchSize,
		IMURate:        cfg.IMURatePerSecond,
		PulsesPerLiter: cfg.FlowPulsesPerLiter,
	}, co)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	replayer := upload.NewReplayer(client, queue, col, sink, cfg.ReplayInterval())
	go replayer.Run(ctx)

	if cfg.AdminListen != "" {
		srv := admin.NewServer(sched, queue, col)
		go func() {
			if err := srv.Start(ctx, cfg.AdminListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", "err", err)
			}
		}()
		logger.Info("admin endpoints up", "addr", cfg.AdminListen)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if err := sched.Stop(); err != nil {
		logger.Error("session stop failed", "err", err)
	}
	engine.Wait()
	logger.Info("all uploads settled, exiting")
	return nil
}

// loadCalibration turns a persisted magnetometer envelope into a
// correction profile. Missing or unreadable files fall back to the
// identity profile; heading quality degrades but the session runs.
func loadCalibration(ctx context.Context, path string) imu.Profile {
	log := logging.FromContext(ctx)
	if path == "" {
		return imu.Identity()
	}
	extremes, err := imu.LoadExtremes(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("no calibration file, using identity profile", "path", path)
		} else {
			log.Error("calibration file unreadable, using identity profile", "path", path, "err", err)
		}
		return imu.Identity()
	}
	log.Info("magnetometer calibration loaded", "path", path)
	return extremes.Profile()
}
