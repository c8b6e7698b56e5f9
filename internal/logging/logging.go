// Package logging installs the process-wide slog logger backed by zerolog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// Options selects the log level and output format.
type Options struct {
	Level  string
	Format string // "console" or "json"
	Output io.Writer
}

// New builds a slog logger writing through zerolog.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var zl zerolog.Logger
	switch strings.ToLower(opts.Format) {
	case "", "console":
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Stamp}).With().Timestamp().Logger()
	case "json":
		zl = zerolog.New(out).With().Timestamp().Logger()
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: level})), nil
}

// Setup builds a logger and makes it the slog default.
func Setup(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a level name onto slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Err returns the attribute used for errors across the codebase.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}
