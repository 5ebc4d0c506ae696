package config

import (
	"os"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Convert ConvertConfig `yaml:"convert"`
	Engine  EngineConfig  `yaml:"engine"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`      // "json" or "console"
	FilePath   string `yaml:"file_path"`   // Path to log file
	Console    bool   `yaml:"console"`     // Whether to log to console
	MaxSize    int    `yaml:"max_size"`    // Max file size in MB
	MaxBackups int    `yaml:"max_backups"` // Max number of backup files
	MaxAge     int    `yaml:"max_age"`     // Max age in days
}

// StorageConfig represents on-disk layout configuration
type StorageConfig struct {
	DataPath string `yaml:"data_path"`
}

// CacheConfig controls the content cache cleanup policy
type CacheConfig struct {
	MaxAgeDays     int   `yaml:"max_age_days"`
	MinAccessCount int64 `yaml:"min_access_count"`
}

// ConvertConfig controls the conversion pipeline
type ConvertConfig struct {
	// Spreadsheets above this size skip the row-by-row reader
	SpreadsheetDirectMB int64 `yaml:"spreadsheet_direct_mb"`
	// Timeout band: budget scales with file size but stays inside [min, max]
	TimeoutMinMinutes int `yaml:"timeout_min_minutes"`
	TimeoutMaxMinutes int `yaml:"timeout_max_minutes"`
	// One minute of budget is granted per this many megabytes of input
	MBPerMinute int64 `yaml:"mb_per_minute"`
}

// EngineConfig controls the embedded query engine
type EngineConfig struct {
	MaxMemoryMB     int   `yaml:"max_memory_mb"`
	QueryTimeoutSec int   `yaml:"query_timeout_sec"`
	MaxResultRows   int64 `yaml:"max_result_rows"`
}

// HTTPConfig controls the HTTP surface
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoadDefaultConfig returns a default configuration
func LoadDefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			FilePath:   "logs/eps-server.log",
			Console:    true,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Storage: StorageConfig{
			DataPath: "./data",
		},
		Cache: CacheConfig{
			MaxAgeDays:     30,
			MinAccessCount: 1,
		},
		Convert: ConvertConfig{
			SpreadsheetDirectMB: 15,
			TimeoutMinMinutes:   2,
			TimeoutMaxMinutes:   20,
			MBPerMinute:         8,
		},
		Engine: EngineConfig{
			MaxMemoryMB:     512,
			QueryTimeoutSec: 300,
			MaxResultRows:   500000,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8090,
		},
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.New(ErrConfigFileReadFailed, "failed to read config file", err)
	}

	config := LoadDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.New(ErrConfigFileParseFailed, "failed to parse config file", err)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.New(ErrConfigValidationFailed, "configuration validation failed", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.New(ErrConfigFileMarshalFailed, "failed to marshal config", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.New(ErrConfigFileWriteFailed, "failed to write config file", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DataPath == "" {
		return errors.New(ErrDataPathRequired, "data_path is required in storage configuration", nil)
	}

	if c.Convert.TimeoutMinMinutes <= 0 || c.Convert.TimeoutMaxMinutes < c.Convert.TimeoutMinMinutes {
		return errors.New(ErrInvalidTimeoutBand, "convert timeout band must satisfy 0 < min <= max", nil)
	}

	if c.Convert.MBPerMinute <= 0 {
		c.Convert.MBPerMinute = 8
	}

	if c.Engine.MaxResultRows <= 0 {
		c.Engine.MaxResultRows = 500000
	}

	return nil
}
