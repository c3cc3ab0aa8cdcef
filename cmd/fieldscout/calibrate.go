package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fieldscout/internal/config"
	"fieldscout/internal/imu"
	"fieldscout/internal/logging"
)

var (
	calConfigPath string
	calSchemaPath string
	calSimulate   bool
	calForce      bool
	calTolerance  float64
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate the magnetometer",
	Long:  "calibrate samples the magnetometer while the unit is rotated through all orientations, waits for the min/max envelope to settle, and persists the result. An existing calibration that still brackets live readings is kept unless --force is given.",
	RunE:  runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&calConfigPath, "config", "config/config.yaml", "Path to YAML config")
	calibrateCmd.Flags().StringVar(&calSchemaPath, "schema", "schemas/device.cue", "Path to CUE schema for config validation")
	calibrateCmd.Flags().BoolVar(&calSimulate, "simulate", false, "Use the synthetic IMU instead of hardware")
	calibrateCmd.Flags().BoolVar(&calForce, "force", false, "Recalibrate even when the stored envelope still brackets live readings")
	calibrateCmd.Flags().Float64Var(&calTolerance, "tolerance", 200, "Envelope slack in raw counts for the bracket check")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(calConfigPath, calSchemaPath)
	if err != nil {
		return err
	}
	if cfg.CalibrationPath == "" {
		return fmt.Errorf("calibration_path is not configured")
	}

	logger := logging.New(false)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	var reader imu.FrameReader
	if calSimulate {
		reader = newSimFrameReader()
	} else {
		return fmt.Errorf("no IMU transport bound, rerun with --simulate or attach the sensor driver")
	}

	// A stored envelope that still brackets what the sensor reads now
	// means the magnetic environment has not shifted.
	if !calForce {
		if extremes, lerr := imu.LoadExtremes(cfg.CalibrationPath); lerr == nil {
			frame, rerr := reader.ReadFrame(ctx)
			if rerr == nil && extremes.Brackets(frame.Mag, calTolerance) {
				logger.Info("stored calibration still valid, keeping it", "path", cfg.CalibrationPath)
				return nil
			}
		}
	}

	logger.Info("calibration started, rotate the unit through all orientations")
	cal := imu.NewCalibrator()
	interval := time.Second / time.Duration(cfg.IMURatePerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !cal.Converged() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("calibration aborted: %w", ctx.Err())
		case <-ticker.C:
		}
		frame, rerr := reader.ReadFrame(ctx)
		if rerr != nil {
			logger.Warn("frame read failed during calibration", "err", rerr)
			continue
		}
		if cal.Observe(frame.Mag) {
			logger.Debug("envelope widened", "extremes", cal.Extremes())
		}
	}

	if err := imu.SaveExtremes(cfg.CalibrationPath, cal.Extremes()); err != nil {
		return err
	}
	logger.Info("calibration saved", "path", cfg.CalibrationPath)
	return nil
}
