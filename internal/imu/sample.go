package imu

import (
	"encoding/json"

	"github.com/golang/geo/r3"
)

// Sample is one fused, immutable IMU reading. Raw vectors are register
// counts; Acc is in g, Gyr in °/s, Mag in gauss after calibration.
type Sample struct {
	RawAcc  r3.Vector
	RawGyr  r3.Vector
	Acc     r3.Vector
	Gyr     r3.Vector
	Mag     r3.Vector
	Heading float64

	Temperature float64
	Pressure    float64
}

// sampleJSON is the wire shape the ingestion endpoint expects; field
// names predate this implementation and must not change.
type sampleJSON struct {
	ACCx float64 `json:"ACCx"`
	ACCy float64 `json:"ACCy"`
	ACCz float64 `json:"ACCz"`
	GYRx float64 `json:"GYRx"`
	GYRy float64 `json:"GYRy"`
	GYRz float64 `json:"GYRz"`
	MAGx float64 `json:"MAGx"`
	MAGy float64 `json:"MAGy"`
	MAGz float64 `json:"MAGz"`

	ACCxG   float64 `json:"ACCx_mg_unit"`
	ACCyG   float64 `json:"ACCy_mg_unit"`
	ACCzG   float64 `json:"ACCz_mg_unit"`
	GYRxDPS float64 `json:"GYRx_dps"`
	GYRyDPS float64 `json:"GYRy_dps"`
	GYRzDPS float64 `json:"GYRz_dps"`

	Heading     float64 `json:"heading_compensated_deg"`
	Temperature float64 `json:"Temperature"`
	Pressure    float64 `json:"Pressure"`
}

// MarshalJSON flattens the vectors into the legacy field layout.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		ACCx: s.RawAcc.X, ACCy: s.RawAcc.Y, ACCz: s.RawAcc.Z,
		GYRx: s.RawGyr.X, GYRy: s.RawGyr.Y, GYRz: s.RawGyr.Z,
		MAGx: s.Mag.X, MAGy: s.Mag.Y, MAGz: s.Mag.Z,
		ACCxG: s.Acc.X, ACCyG: s.Acc.Y, ACCzG: s.Acc.Z,
		GYRxDPS: s.Gyr.X, GYRyDPS: s.Gyr.Y, GYRzDPS: s.Gyr.Z,
		Heading:     s.Heading,
		Temperature: s.Temperature,
		Pressure:    s.Pressure,
	})
}

// UnmarshalJSON restores a sample from the legacy layout.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var w sampleJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Sample{
		RawAcc:      r3.Vector{X: w.ACCx, Y: w.ACCy, Z: w.ACCz},
		RawGyr:      r3.Vector{X: w.GYRx, Y: w.GYRy, Z: w.GYRz},
		Acc:         r3.Vector{X: w.ACCxG, Y: w.ACCyG, Z: w.ACCzG},
		Gyr:         r3.Vector{X: w.GYRxDPS, Y: w.GYRyDPS, Z: w.GYRzDPS},
		Mag:         r3.Vector{X: w.MAGx, Y: w.MAGy, Z: w.MAGz},
		Heading:     w.Heading,
		Temperature: w.Temperature,
		Pressure:    w.Pressure,
	}
	return nil
}
