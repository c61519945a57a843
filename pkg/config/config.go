// Package config provides configuration loading and management for awolmrf.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"awolmrf/pkg/fusion"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// AWoL-MRF parameters
	Fusion struct {
		// Beta weighs the pairwise (doubleton) potential
		Beta float64 `yaml:"beta"`

		// MixingRatio is the minimum number of high-confidence neighbors of a seed
		MixingRatio int `yaml:"mixingRatio" validate:"gte=0"`

		// PatchLength is the patch radius in voxels
		PatchLength int `yaml:"patchLength" validate:"gte=0"`

		// SameThreshold repeats the last threshold for labels without one
		SameThreshold bool `yaml:"sameThreshold"`

		// Thresholds holds one confidence threshold per label, background first
		Thresholds []float64 `yaml:"thresholds" validate:"required,min=1,dive,gte=0,lte=1"`
	} `yaml:"fusion"`

	// Processing parameters
	Processing struct {
		// Workers bounds the goroutines used for vote counting and neighbor indexing
		Workers int `yaml:"workers" validate:"gte=1"`

		// BoundingBox restricts processing to the foreground of the candidates
		BoundingBox bool `yaml:"boundingBox"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Clobber allows overwriting an existing output
		Clobber bool `yaml:"clobber"`

		// Format selects the writer: auto (by path), slices or vol
		Format string `yaml:"format" validate:"oneof=auto slices vol"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is a logrus level name
		Level string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`

		// File receives the log when set, rotated by size
		File string `yaml:"file"`

		// MaxSizeMB is the size at which the log file is rotated
		MaxSizeMB int `yaml:"maxSizeMB" validate:"gte=0"`

		// MaxBackups is the number of rotated files kept
		MaxBackups int `yaml:"maxBackups" validate:"gte=0"`

		// JSON switches to the JSON formatter
		JSON bool `yaml:"json"`
	} `yaml:"logging"`
}

var validate = validator.New()

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	defaults := fusion.DefaultParams()
	cfg.Fusion.Beta = defaults.Beta
	cfg.Fusion.MixingRatio = defaults.MixingRatio
	cfg.Fusion.PatchLength = defaults.PatchLength
	cfg.Fusion.SameThreshold = defaults.SameThreshold
	cfg.Fusion.Thresholds = defaults.Thresholds

	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.BoundingBox = true

	cfg.Output.Clobber = false
	cfg.Output.Format = "auto"

	cfg.Logging.Level = "info"
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 3

	return cfg
}

// Validate checks the configured values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FusionParams converts the configuration into AWoL-MRF parameters.
// The bounding box is left for the caller to compute from the inputs.
func (c *Config) FusionParams() fusion.Params {
	return fusion.Params{
		Beta:          c.Fusion.Beta,
		MixingRatio:   c.Fusion.MixingRatio,
		PatchLength:   c.Fusion.PatchLength,
		SameThreshold: c.Fusion.SameThreshold,
		Thresholds:    append([]float64(nil), c.Fusion.Thresholds...),
		Workers:       c.Processing.Workers,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
