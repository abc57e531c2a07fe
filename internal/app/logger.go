package app

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"classroom/internal/config"
)

// NewLogger builds the process logger: JSON lines in production, a
// human-readable console writer in development.
func NewLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "classroom").Logger(), nil
}
