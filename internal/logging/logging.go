// Package logging builds the zerolog logger used for diagnostics.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the diagnostic log destination and level.
type Config struct {
	Level   string `json:"level" yaml:"level" mapstructure:"level"`
	Debug   bool   `json:"debug" yaml:"debug" mapstructure:"debug"`
	Output  string `json:"output" yaml:"output" mapstructure:"output"`
	Console bool   `json:"console" yaml:"console" mapstructure:"console"`
}

// New returns a logger and a function releasing its destination.
// Output is "stderr" (the default), "stdout", "discard" or a file path.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	noop := func() error { return nil }

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var (
		w       io.Writer
		release = noop
	)
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "discard":
		return zerolog.Nop(), noop, nil
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		release = f.Close
	}

	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), release, nil
}

// Component returns a child logger tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
