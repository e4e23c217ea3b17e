package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the agent
type Config struct {
	// Control API configuration
	Port int `envconfig:"PORT" default:"10010"`

	// Recording configuration
	SensorID    int    `envconfig:"SENSOR_ID" default:"0"`
	SampleHz    int    `envconfig:"SAMPLE_HZ" default:"50"`
	MaxSizeInMB int    `envconfig:"MAX_SIZE_MB" default:"500"`
	OutputDir   string `envconfig:"OUTPUT_DIR" default:"recordings"`

	// Directory watched for recordings dropped by external tooling.
	DropDir string `envconfig:"DROP_DIR" default:"recordings/drop"`

	// Path of the sqlite recording catalog.
	CatalogPath string `envconfig:"CATALOG_PATH" default:"catalog.db"`

	// Scratch directory handed to the native pipeline engine.
	ScratchDir string `envconfig:"SCRATCH_DIR" default:".vd-scratch"`

	// Absolute or relative path to the capture binary. If empty the code falls back to "vd-capture" on $PATH.
	PathToCapture string `envconfig:"CAPTURE_PATH" default:"vd-capture"`

	// Optional YAML file overriding the built-in region policy table.
	RegionPolicyPath string `envconfig:"REGION_POLICY_PATH" default:""`

	// Upload retry attempts per recording.
	SyncAttempts uint `envconfig:"SYNC_ATTEMPTS" default:"3"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if config.DropDir == "" {
		return fmt.Errorf("DROP_DIR is required")
	}
	if config.CatalogPath == "" {
		return fmt.Errorf("CATALOG_PATH is required")
	}
	if config.SensorID < 0 {
		return fmt.Errorf("SENSOR_ID must not be negative")
	}
	if config.SampleHz <= 0 {
		return fmt.Errorf("SAMPLE_HZ must be greater than 0")
	}
	if config.MaxSizeInMB <= 0 {
		return fmt.Errorf("MAX_SIZE_MB must be greater than 0")
	}
	if config.PathToCapture == "" {
		return fmt.Errorf("CAPTURE_PATH is required")
	}
	if config.SyncAttempts == 0 {
		return fmt.Errorf("SYNC_ATTEMPTS must be greater than 0")
	}

	return nil
}
