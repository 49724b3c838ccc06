package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger from the logging section.
// Format "text" writes human-readable lines through zerolog's ConsoleWriter.
func (lc LoggingConfig) NewLogger(out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	if lc.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
