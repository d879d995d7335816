// Package logging builds the zerolog loggers used by the CLIs and pipeline
// packages.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction. Zero values fall back to the process
// environment (LOG_LEVEL, ENVIRONMENT) and os.Stderr.
type Options struct {
	Level       string
	Environment string
	Out         io.Writer
}

// New creates a component-specific logger configured from the environment.
func New(component string) zerolog.Logger {
	return NewWithOptions(component, Options{})
}

// NewWithOptions creates a component-specific logger.
//
// Output is a human-readable console writer unless Environment is
// "production", in which case JSON lines are written.
func NewWithOptions(component string, opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	env := opts.Environment
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	if env != "production" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLevel maps debug|info|warn|error to a zerolog level. Anything else is
// info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// OrNop returns l, or a disabled logger when l is nil.
func OrNop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// LogStep logs the completion of one pipeline step.
func LogStep(l *zerolog.Logger, step string, rows int, d time.Duration) {
	l.Info().
		Str("step", step).
		Int("rows", rows).
		Dur("duration", d).
		Msg("step completed")
}
