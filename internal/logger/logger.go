// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a timestamped logger.  In development the output is the human
// friendly console format, otherwise one JSON object per line.
func New(env, level string) zerolog.Logger {
	return NewWithWriter(env, level, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env, level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if isDevelopment(env) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "forum").Logger()
}

func isDevelopment(env string) bool {
	switch strings.ToLower(env) {
	case "", "dev", "development", "local":
		return true
	}
	return false
}
