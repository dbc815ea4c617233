// Package config loads the YAML pipeline configuration shared by the
// command line tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
)

// Pipeline is the root configuration for the telemetry processing pipeline.
// Fields omitted from the YAML file keep the values from Default, so
// partial configs are safe.
type Pipeline struct {
	IDB        IDBConfig             `yaml:"idb"`
	Processing ProcessingConfig      `yaml:"processing"`
	Logs       monitoring.FileConfig `yaml:"logs"`
}

// IDBConfig locates the instrument database releases.
type IDBConfig struct {
	// Root is the directory holding idbVersionHistory.json and the
	// per-version subdirectories.
	Root string `yaml:"root"`

	// ForceVersion overrides time-based version resolution when set.
	ForceVersion string `yaml:"force_version"`

	// FallbackVersion is used for packets whose onboard time no release
	// covers. Empty means such packets fail with an error.
	FallbackVersion string `yaml:"fallback_version"`
}

// ProcessingConfig controls the decode loop.
type ProcessingConfig struct {
	// HistoryDB is the SQLite file recording runs, seen packets and
	// published products. Empty disables history recording.
	HistoryDB string `yaml:"history_db"`

	// StopOnError aborts the run at the first packet that fails to
	// decode instead of logging and continuing.
	StopOnError bool `yaml:"stop_on_error"`
}

// Default returns the pipeline configuration used when no file is given.
func Default() Pipeline {
	return Pipeline{
		Logs: monitoring.FileConfig{
			MaxSizeMB:  50,
			MaxAgeDays: 30,
			MaxBackups: 5,
		},
	}
}

// Load reads a pipeline configuration from a YAML file.
// The file is validated to ensure it has a .yaml or .yml extension and is
// under the max file size.
func Load(path string) (*Pipeline, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML over the defaults so omitted fields keep their values.
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration values are valid.
func (p *Pipeline) Validate() error {
	if p.Logs.MaxSizeMB < 0 {
		return fmt.Errorf("logs.max_size_mb must be non-negative, got %d", p.Logs.MaxSizeMB)
	}
	if p.Logs.MaxAgeDays < 0 {
		return fmt.Errorf("logs.max_age_days must be non-negative, got %d", p.Logs.MaxAgeDays)
	}
	if p.Logs.MaxBackups < 0 {
		return fmt.Errorf("logs.max_backups must be non-negative, got %d", p.Logs.MaxBackups)
	}
	return nil
}
