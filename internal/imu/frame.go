// Package imu runs the inertial fusion loop: raw register triples in,
// calibrated physical-unit samples with a tilt-compensated heading out.
// Register-level I2C access is an external collaborator behind
// FrameReader.
package imu

import (
	"context"

	"github.com/golang/geo/r3"
)

// Sensitivity constants for the LSM6DSL accelerometer/gyro and the
// MMC5983MA magnetometer in their session operating modes.
const (
	accSensitivity  = 0.244 / 1000 // g per LSB at ±8g
	gyroSensitivity = 0.070        // °/s per LSB at 2000 dps
	magResolution   = 1.0 / 16384  // gauss per LSB (16-bit mode)
)

// RawFrame is one uncalibrated readout: accelerometer and gyroscope in
// signed LSB counts, magnetometer in unsigned 18-bit counts, plus the
// barometer's temperature (°C) and pressure (hPa).
type RawFrame struct {
	Acc         r3.Vector
	Gyr         r3.Vector
	Mag         r3.Vector
	Temperature float64
	Pressure    float64
}

// FrameReader reads one raw sensor frame. Implementations block only on
// the underlying register I/O.
type FrameReader interface {
	ReadFrame(ctx context.Context) (RawFrame, error)
}
