// Batch records exchanged between the scheduler and the upload engine.
// JSON field names are the ingestion endpoint's contract and predate
// this implementation.
package telemetry

import (
	"time"

	"fieldscout/internal/imu"
)

// Entry is one tick's fused reading. Entries within a batch are ordered
// by capture time; the endpoint reconstructs a time series from them.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	// Volumetric rate derived from the flow pulse count over the tick.
	LitersPerHour float64      `json:"flow_meter_counter"`
	Latitude      float64      `json:"latitude"`
	Longitude     float64      `json:"longitude"`
	SpeedKmh      float64      `json:"speed_kmh"`
	Heading       float64      `json:"heading"`
	IMU           []imu.Sample `json:"IMU"`
	ImageBase64   string       `json:"image_base_64,omitempty"`
	GPSFixValid   bool         `json:"gps_fix_valid"`
}

// Batch is an ordered sequence of entries, insertion order chronological.
type Batch []Entry

// Envelope is the wire object POSTed to the ingestion endpoint.
type Envelope struct {
	DeviceUUID       string `json:"device_uuid"`
	SessionTimestamp string `json:"sessionTimestamp"`
	SleepTime        int    `json:"sleep_time"`
	Payload          Batch  `json:"payload"`
}

// NewEnvelope stamps a batch with the device identity and session
// parameters.
func NewEnvelope(deviceUUID string, sessionStart time.Time, sleepSeconds int, batch Batch) Envelope {
	return Envelope{
		DeviceUUID:       deviceUUID,
		SessionTimestamp: sessionStart.Format(time.RFC3339),
		SleepTime:        sleepSeconds,
		Payload:          batch,
	}
}

// BatchSink accepts finished batches from the scheduler. The upload
// engine is the primary sink; a journal writer can mirror batches
// locally for diagnostics.
type BatchSink interface {
	WriteBatch(batch Batch) error
}
