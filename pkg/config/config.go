// Package config provides configuration loading and management for fiberscan.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Strategy names accepted by StrategyConfig.Name
const (
	StrategyConnectivity = "connectivity"
	StrategyDBSCAN       = "dbscan"
	StrategyRandomForest = "randomforest"
)

// DBSCANConfig holds the clustering parameters of the DBSCAN strategy
type DBSCANConfig struct {
	// Eps is the neighbourhood radius in pixels
	Eps float64 `yaml:"eps"`

	// MinPoints is the minimum neighbourhood size (the point itself included)
	// for a pixel to be a core point
	MinPoints int `yaml:"minPoints"`
}

// RandomForestConfig holds the merge classifier parameters
type RandomForestConfig struct {
	// ModelPath points at a YAML forest model
	ModelPath string `yaml:"modelPath"`

	// MaxGap is the largest pixel gap (Chebyshev distance) between two
	// components that are still considered merge candidates
	MaxGap int `yaml:"maxGap"`

	// Threshold is the merge probability at or above which two components are merged
	Threshold float64 `yaml:"threshold"`
}

// StrategyConfig selects and configures the blob detection strategy
type StrategyConfig struct {
	// Name is one of connectivity, dbscan or randomforest
	Name string `yaml:"name"`

	// Connectivity is the pixel neighbourhood (4 or 8) used by the
	// connectivity strategy and the initial pass of the random forest strategy
	Connectivity int `yaml:"connectivity"`

	DBSCAN       DBSCANConfig       `yaml:"dbscan"`
	RandomForest RandomForestConfig `yaml:"randomForest"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many slices are processed concurrently
		NumWorkers int `yaml:"numWorkers"`

		// Spacing is the physical voxel size along each array dimension
		Spacing [3]float64 `yaml:"spacing"`

		// Axis is the plane used for cross-sections: xy, yz or xz
		Axis string `yaml:"axis"`

		// MinObjectSize removes 3D objects smaller than this many voxels
		// before resampling. 0 disables the filter.
		MinObjectSize int `yaml:"minObjectSize"`

		// Threshold is the grey level above which a mask pixel is foreground
		Threshold uint8 `yaml:"threshold"`
	} `yaml:"processing"`

	// Strategy parameters
	Strategy StrategyConfig `yaml:"strategy"`

	// Output parameters
	Output struct {
		// CSVPath is where the blob table is written. Empty disables the export.
		CSVPath string `yaml:"csvPath"`

		// FramesDir receives one rendered PNG per slice. Empty disables the export.
		FramesDir string `yaml:"framesDir"`

		// FrameScale is the pixel magnification of rendered frames
		FrameScale int `yaml:"frameScale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.Spacing = [3]float64{1, 1, 1}
	cfg.Processing.Axis = "xz"
	cfg.Processing.MinObjectSize = 0
	cfg.Processing.Threshold = 127

	cfg.Strategy.Name = StrategyConnectivity
	cfg.Strategy.Connectivity = 8
	cfg.Strategy.DBSCAN.Eps = 1.5
	cfg.Strategy.DBSCAN.MinPoints = 3
	cfg.Strategy.RandomForest.MaxGap = 1
	cfg.Strategy.RandomForest.Threshold = 0.5

	cfg.Output.FrameScale = 4
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks value ranges that would otherwise only fail deep inside a scan
func (c *Config) Validate() error {
	var errs []error
	if c.Processing.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("processing.numWorkers must be >= 1, got %d", c.Processing.NumWorkers))
	}
	for i, s := range c.Processing.Spacing {
		if !(s > 0) {
			errs = append(errs, fmt.Errorf("processing.spacing[%d] must be > 0, got %v", i, s))
		}
	}
	if c.Processing.MinObjectSize < 0 {
		errs = append(errs, fmt.Errorf("processing.minObjectSize must be >= 0, got %d", c.Processing.MinObjectSize))
	}
	if c.Strategy.Connectivity != 4 && c.Strategy.Connectivity != 8 {
		errs = append(errs, fmt.Errorf("strategy.connectivity must be 4 or 8, got %d", c.Strategy.Connectivity))
	}
	if c.Output.FrameScale < 1 {
		errs = append(errs, fmt.Errorf("output.frameScale must be >= 1, got %d", c.Output.FrameScale))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
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
