// Package config loads the acquisition configuration from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"seisvault/internal/domain"
)

// Default values applied by Load.
const (
	DefaultNumWorkers      = 4
	DefaultGapToleranceSec = 60
	DefaultDaysPerRequest  = 1
	DefaultTimeoutSec      = 30
	DefaultBeforePSec      = 60
	DefaultAfterPSec       = 600
	DefaultMinMagnitude    = 5.5
)

// Config is the full acquisition configuration.
type Config struct {
	SDSPath       string `yaml:"sds_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`

	NumWorkers      int    `yaml:"num_workers"`
	GapToleranceSec int    `yaml:"gap_tolerance_sec"`
	DownloadType    string `yaml:"download_type"` // continuous, event, sync or live

	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`

	Waveform    WaveformConfig   `yaml:"waveform"`
	Station     StationConfig    `yaml:"station"`
	Event       EventConfig      `yaml:"event"`
	Credentials []CredentialItem `yaml:"credentials"`
}

// WaveformConfig selects the datacenter and request shaping.
type WaveformConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	FeedEndpoint string   `yaml:"feed_endpoint"`
	ChannelPref  []string `yaml:"channel_pref"`
	LocationPref []string `yaml:"location_pref"`

	DaysPerRequest int `yaml:"days_per_request"`
	TimeoutSec     int `yaml:"timeout_sec"`
}

// StationConfig selects which stations to acquire.
type StationConfig struct {
	Networks []string `yaml:"networks"`
	Stations []string `yaml:"stations"`

	MinLatitude  float64 `yaml:"min_latitude"`
	MaxLatitude  float64 `yaml:"max_latitude"`
	MinLongitude float64 `yaml:"min_longitude"`
	MaxLongitude float64 `yaml:"max_longitude"`

	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	MaxRadius float64 `yaml:"max_radius"`

	Force   []string `yaml:"force"`
	Exclude []string `yaml:"exclude"`
}

// EventConfig selects catalog events and the window around each
// predicted P arrival.
type EventConfig struct {
	MinMagnitude float64 `yaml:"min_magnitude"`
	MinRadius    float64 `yaml:"min_radius"`
	MaxRadius    float64 `yaml:"max_radius"`
	BeforePSec   int     `yaml:"before_p_sec"`
	AfterPSec    int     `yaml:"after_p_sec"`
}

// CredentialItem is one restricted-access credential.
type CredentialItem struct {
	Scope    string `yaml:"scope"` // NET or NET.STA
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads and validates the configuration file. Unknown keys are
// rejected so typos surface instead of silently disabling features.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.NumWorkers <= 0 {
		c.NumWorkers = DefaultNumWorkers
	}
	if c.GapToleranceSec <= 0 {
		c.GapToleranceSec = DefaultGapToleranceSec
	}
	if c.DownloadType == "" {
		c.DownloadType = "continuous"
	}
	if c.Waveform.DaysPerRequest <= 0 {
		c.Waveform.DaysPerRequest = DefaultDaysPerRequest
	}
	if c.Waveform.TimeoutSec <= 0 {
		c.Waveform.TimeoutSec = DefaultTimeoutSec
	}
	if c.Event.BeforePSec <= 0 {
		c.Event.BeforePSec = DefaultBeforePSec
	}
	if c.Event.AfterPSec <= 0 {
		c.Event.AfterPSec = DefaultAfterPSec
	}
	if c.Event.MinMagnitude <= 0 {
		c.Event.MinMagnitude = DefaultMinMagnitude
	}
}

func (c *Config) validate() error {
	if c.SDSPath == "" {
		return fmt.Errorf("sds_path is required")
	}
	if c.Waveform.Endpoint == "" {
		return fmt.Errorf("waveform.endpoint is required")
	}
	switch c.DownloadType {
	case "continuous", "event", "sync", "live":
	default:
		return fmt.Errorf("download_type must be continuous, event, sync or live, got %q", c.DownloadType)
	}
	if c.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, c.StartTime); err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
	}
	if c.EndTime != "" {
		if _, err := time.Parse(time.RFC3339, c.EndTime); err != nil {
			return fmt.Errorf("end_time: %w", err)
		}
	}
	for i, cred := range c.Credentials {
		if cred.Scope == "" || cred.Username == "" {
			return fmt.Errorf("credentials[%d]: scope and username are required", i)
		}
	}
	return nil
}

// GapTolerance returns the coalescing tolerance as a duration.
func (c *Config) GapTolerance() time.Duration {
	return time.Duration(c.GapToleranceSec) * time.Second
}

// Window returns the configured acquisition window. The zero-value
// bounds mean "unset" and are left for the caller to default.
func (c *Config) Window() (domain.TimeSpan, error) {
	var span domain.TimeSpan
	if c.StartTime != "" {
		start, err := time.Parse(time.RFC3339, c.StartTime)
		if err != nil {
			return span, err
		}
		span.Start = start.UTC()
	}
	if c.EndTime != "" {
		end, err := time.Parse(time.RFC3339, c.EndTime)
		if err != nil {
			return span, err
		}
		span.End = end.UTC()
	}
	return span, nil
}

// DomainCredentials converts the credential list to domain values.
func (c *Config) DomainCredentials() []domain.Credential {
	creds := make([]domain.Credential, 0, len(c.Credentials))
	for _, item := range c.Credentials {
		creds = append(creds, domain.Credential{
			Scope:    item.Scope,
			Username: item.Username,
			Password: item.Password,
		})
	}
	return creds
}
