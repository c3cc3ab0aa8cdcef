package imu

import (
	"math"

	"github.com/golang/geo/r3"
)

// TiltCompensatedHeading computes the compass heading in degrees
// [0, 360) from raw accelerometer counts and calibrated magnetometer
// components. Roll and pitch from the accelerometer rotate the
// magnetometer reading back into the horizontal plane, so the heading
// stays stable while the device tilts.
func TiltCompensatedHeading(acc, mag r3.Vector) float64 {
	roll := math.Atan2(acc.Y, acc.Z)
	pitch := math.Atan2(-acc.X, math.Sqrt(acc.Y*acc.Y+acc.Z*acc.Z))

	magXComp := mag.X*math.Cos(pitch) + mag.Z*math.Sin(pitch)
	magYComp := mag.X*math.Sin(roll)*math.Sin(pitch) +
		mag.Y*math.Cos(roll) -
		mag.Z*math.Sin(roll)*math.Cos(pitch)

	heading := math.Atan2(magYComp, magXComp) * 180 / math.Pi
	if heading < 0 {
		heading += 360
	}
	return heading
}
