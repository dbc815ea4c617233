package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes rotating log files for a long-running process.
type FileConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// SetupFileLogging tees the standard logger (and therefore the default Logf)
// to stdout and a rotating file named after the process. Returns the rotator
// so callers can Close it on shutdown.
func SetupFileLogging(name string, cfg FileConfig) (io.Closer, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("log directory not set")
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return rotator, nil
}
