// Package logging sets up the process logger and adapts it to the Printf-style Logger
// interface used by the test framework and the HTTP transport.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Printf(message string, args ...interface{})
}

// Options controls how New builds the process logger.
type Options struct {
	Level   string
	Console bool
	NoColor bool
}

// New creates a zerolog logger writing to out. An unrecognized level is an error; an empty one
// means "info".
func New(out io.Writer, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, NoColor: opts.NoColor, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

type printfAdapter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (a printfAdapter) Printf(message string, args ...interface{}) {
	a.logger.WithLevel(a.level).Msgf(message, args...)
}

// AsPrintf returns a Logger that writes every message to logger at the given level.
func AsPrintf(logger zerolog.Logger, level zerolog.Level) Logger {
	return printfAdapter{logger: logger, level: level}
}
