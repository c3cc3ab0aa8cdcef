// Package metrics bundles Prometheus instrumentation for the telemetry
// core: batch flow through the upload engine and sensor health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the agent's metrics, registered against one registry
// so tests can use isolated instances.
type Collector struct {
	registry *prometheus.Registry

	BatchesSubmitted   prometheus.Counter
	BatchesUploaded    prometheus.Counter
	BatchesPersisted   prometheus.Counter
	BatchesReplayed    prometheus.Counter
	BatchesQuarantined prometheus.Counter
	UploadRetries      prometheus.Counter
	GPSParseMisses     prometheus.Counter
	IMURestarts        prometheus.Counter
	OfflineQueueDepth  prometheus.Gauge
	ConnectivityOnline prometheus.Gauge
}

// New returns a collector with all metrics registered on a fresh
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}
	return &Collector{
		registry:           reg,
		BatchesSubmitted:   counter("fieldscout_batches_submitted_total", "Batches handed to the upload engine."),
		BatchesUploaded:    counter("fieldscout_batches_uploaded_total", "Batches accepted by the ingestion endpoint on the live path."),
		BatchesPersisted:   counter("fieldscout_batches_persisted_total", "Batches written to the offline queue after delivery failure."),
		BatchesReplayed:    counter("fieldscout_batches_replayed_total", "Offline batches delivered by the replay loop."),
		BatchesQuarantined: counter("fieldscout_batches_quarantined_total", "Offline files moved to quarantine as unparseable."),
		UploadRetries:      counter("fieldscout_upload_retries_total", "Individual delivery attempts beyond the first."),
		GPSParseMisses:     counter("fieldscout_gps_parse_misses_total", "NMEA lines dropped as unframed or unrecognized."),
		IMURestarts:        counter("fieldscout_imu_restarts_total", "IMU producer restarts triggered by the health check."),
		OfflineQueueDepth:  gauge("fieldscout_offline_queue_depth", "Files currently waiting in the offline queue."),
		ConnectivityOnline: gauge("fieldscout_connectivity_online", "1 while the last delivery attempt succeeded, else 0."),
	}
}

// Handler serves the collector's registry in the Prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
