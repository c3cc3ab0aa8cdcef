// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for one telemetry agent.
type Config struct {
	// Tick interval of the session scheduler, in seconds.
	SleepInterval int `yaml:"sleep_interval"`
	// Entries collected before a batch is handed to the uploader.
	BatchSize int `yaml:"batch_size"`
	// IMU samples per second.
	IMURatePerSecond int `yaml:"imu_rate_per_second"`
	// Flow meter pulses per liter, from the meter datasheet.
	FlowPulsesPerLiter int `yaml:"flow_meter_pulses_per_liter"`

	Camera    bool `yaml:"camera"`
	FlowMeter bool `yaml:"flow_meter"`

	Production     bool   `yaml:"production"`
	IngestURLProd  string `yaml:"cloud_function_url_prod"`
	IngestURLStg   string `yaml:"cloud_function_url_stg"`
	DeviceIDPath   string `yaml:"device_id_path"`
	OfflineDataDir string `yaml:"offline_data_dir"`
	// Optional JSONL mirror of every flushed batch; empty disables it.
	JournalPath string `yaml:"journal_path"`

	CalibrationPath string `yaml:"calibration_path"`
	AdminListen     string `yaml:"admin_listen"`

	// Seconds between offline replay cycles.
	OfflineReplayInterval int `yaml:"offline_replay_interval"`
}

// IngestURL picks the production or staging endpoint.
func (c *Config) IngestURL() string {
	if c.Production {
		return c.IngestURLProd
	}
	return c.IngestURLStg
}

// TickInterval returns the scheduler interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.SleepInterval) * time.Second
}

// ReplayInterval returns the offline replay cycle sleep as a duration.
func (c *Config) ReplayInterval() time.Duration {
	if c.OfflineReplayInterval <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.OfflineReplayInterval) * time.Second
}

// Load loads YAML config and validates it against a CUE schema.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check enforces constraints the schema cannot express cross-field.
func (c *Config) check() error {
	if c.SleepInterval <= 0 {
		return fmt.Errorf("sleep_interval must be positive, got %d", c.SleepInterval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.IMURatePerSecond <= 0 {
		return fmt.Errorf("imu_rate_per_second must be positive, got %d", c.IMURatePerSecond)
	}
	if c.FlowMeter && c.FlowPulsesPerLiter <= 0 {
		return fmt.Errorf("flow_meter_pulses_per_liter must be positive when the flow meter is enabled")
	}
	if c.IngestURL() == "" {
		return fmt.Errorf("no ingest URL configured for %s", map[bool]string{true: "production", false: "staging"}[c.Production])
	}
	if c.OfflineDataDir == "" {
		return fmt.Errorf("offline_data_dir must be set")
	}
	return nil
}
