package cd11

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/getlantern/golog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls where the package logs go. With an empty Directory
// logs stay on stderr/stdout.
type LogConfig struct {
	Directory  string `yaml:"directory" toml:"directory"`
	Filename   string `yaml:"filename" toml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
	// Quiet drops console output when logging to a file.
	Quiet bool `yaml:"quiet" toml:"quiet"`
}

// ConfigureLogging routes golog output to a rotating file in
// cfg.Directory, in addition to the console unless cfg.Quiet is set. The
// returned closer releases the file.
func ConfigureLogging(cfg LogConfig) (io.Closer, error) {
	if cfg.Directory == "" {
		golog.ResetOutputs()
		return noopCloser{}, nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := cfg.Filename
	if name == "" {
		name = "cd11.log"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	if cfg.Quiet {
		golog.SetOutputs(rotator, rotator)
	} else {
		golog.SetOutputs(io.MultiWriter(os.Stderr, rotator), io.MultiWriter(os.Stdout, rotator))
	}
	return rotator, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
