// Package config loads and validates the footfall configuration file.
//
// Configuration is a fixed TOML structure validated once at startup.
// Every tracking and scan option must be present with a sane value or
// Load fails before the scan loop ever starts; there is no partial or
// lazy validation.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	Scan     ScanConfig     `toml:"scan"`
	Tracking TrackingConfig `toml:"tracking"`
	Privacy  PrivacyConfig  `toml:"privacy"`
	Logging  LoggingConfig  `toml:"logging"`
	Storage  StorageConfig  `toml:"storage"`
	Events   EventsConfig   `toml:"events"`
	Sink     SinkConfig     `toml:"sink"`
	Archive  ArchiveConfig  `toml:"archive"`
	API      APIConfig      `toml:"api"`
}

// ScanConfig controls the scan cycle cadence and the scan primitive.
type ScanConfig struct {
	Interval duration `toml:"interval"` // wall-clock gap between cycle starts
	Duration duration `toml:"duration"` // budget handed to the scan command
	Command  string   `toml:"command"`  // helper binary emitting "ADDR RSSI" lines
}

// TrackingConfig controls the device ledger.
type TrackingConfig struct {
	AbsenceTimeout      duration `toml:"absence_timeout"`
	StationaryThreshold duration `toml:"stationary_threshold"`
	MinSignalStrength   int      `toml:"min_signal_strength"` // dBm; readings below are ignored
}

// PrivacyConfig controls salt-epoch rotation.
type PrivacyConfig struct {
	RotationPeriod duration `toml:"rotation_period"`
}

// LoggingConfig controls the logging gate.
type LoggingConfig struct {
	LogEmptyCycles bool `toml:"log_empty_cycles"`
}

// StorageConfig controls where day files land.
type StorageConfig struct {
	DataDir    string   `toml:"data_dir"`    // local fallback root
	MountRoots []string `toml:"mount_roots"` // removable-media probe roots; empty = local only
}

// EventsConfig configures the optional NATS publisher.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // empty = events disabled
}

// SinkConfig configures the optional Postgres sink.
type SinkConfig struct {
	PostgresURL string `toml:"postgres_url"` // empty = disabled
}

// ArchiveConfig configures the optional S3 day-file archiver.
type ArchiveConfig struct {
	S3Bucket   string   `toml:"s3_bucket"` // empty = disabled
	S3Prefix   string   `toml:"s3_prefix"`
	S3Region   string   `toml:"s3_region"`
	S3Endpoint string   `toml:"s3_endpoint"` // custom endpoint for MinIO
	Interval   duration `toml:"interval"`
}

// APIConfig configures the HTTP status API.
type APIConfig struct {
	Addr string `toml:"addr"` // empty = API disabled
}

// duration wraps time.Duration for TOML decoding of "10s"-style strings.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// D returns the wrapped time.Duration.
func (d duration) D() time.Duration { return time.Duration(d) }

// Defaults that apply when the optional keys are omitted.
const (
	DefaultScanCommand     = "footfall-btscan"
	DefaultS3Prefix        = "footfall/raw"
	DefaultS3Region        = "us-east-1"
	DefaultArchiveInterval = 15 * time.Minute
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	var c Config
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.Command == "" {
		c.Scan.Command = DefaultScanCommand
	}
	if c.Archive.S3Prefix == "" {
		c.Archive.S3Prefix = DefaultS3Prefix
	}
	if c.Archive.S3Region == "" {
		c.Archive.S3Region = DefaultS3Region
	}
	if c.Archive.Interval.D() == 0 {
		c.Archive.Interval = duration(DefaultArchiveInterval)
	}
}

// Validate checks every required option. It returns the first problem
// found, naming the offending key.
func (c *Config) Validate() error {
	if c.Scan.Interval.D() <= 0 {
		return fmt.Errorf("scan.interval must be positive")
	}
	if c.Scan.Duration.D() <= 0 {
		return fmt.Errorf("scan.duration must be positive")
	}
	if c.Tracking.AbsenceTimeout.D() <= 0 {
		return fmt.Errorf("tracking.absence_timeout must be positive")
	}
	if c.Tracking.AbsenceTimeout.D() <= c.Scan.Interval.D() {
		return fmt.Errorf("tracking.absence_timeout must exceed scan.interval, otherwise every device expires between cycles")
	}
	if c.Tracking.StationaryThreshold.D() <= 0 {
		return fmt.Errorf("tracking.stationary_threshold must be positive")
	}
	if c.Tracking.StationaryThreshold.D() <= c.Scan.Interval.D() {
		return fmt.Errorf("tracking.stationary_threshold must exceed scan.interval")
	}
	if c.Tracking.MinSignalStrength > 0 {
		return fmt.Errorf("tracking.min_signal_strength is in dBm and must be <= 0")
	}
	if c.Privacy.RotationPeriod.D() <= 0 {
		return fmt.Errorf("privacy.rotation_period must be positive")
	}
	if c.Privacy.RotationPeriod.D() < c.Tracking.StationaryThreshold.D() {
		return fmt.Errorf("privacy.rotation_period must be at least tracking.stationary_threshold")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Archive.S3Bucket != "" && c.Archive.Interval.D() <= 0 {
		return fmt.Errorf("archive.interval must be positive when archive.s3_bucket is set")
	}
	return nil
}

// Plain-duration accessors for callers outside the package.

func (c *Config) ScanInterval() time.Duration        { return c.Scan.Interval.D() }
func (c *Config) ScanDuration() time.Duration        { return c.Scan.Duration.D() }
func (c *Config) AbsenceTimeout() time.Duration      { return c.Tracking.AbsenceTimeout.D() }
func (c *Config) StationaryThreshold() time.Duration { return c.Tracking.StationaryThreshold.D() }
func (c *Config) RotationPeriod() time.Duration      { return c.Privacy.RotationPeriod.D() }
func (c *Config) ArchiveInterval() time.Duration     { return c.Archive.Interval.D() }
