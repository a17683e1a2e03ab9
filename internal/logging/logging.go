// Package logging builds the zerolog logger shared by the CLI, the HTTP
// transport and the batch assembler.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conf configures the logger.
type Conf struct {
	Level string `yaml:"level"`
	// JSON forces JSON output even on a terminal.
	JSON bool `yaml:"json"`
}

type ctxKey struct{}

// New creates a logger writing to stderr. Stdout is left to command output.
// Output is human readable when stderr is a terminal, JSON otherwise.
func New(conf Conf) (zerolog.Logger, error) {
	return NewWithWriter(writerFor(conf, os.Stderr), conf.Level)
}

func writerFor(conf Conf, f *os.File) io.Writer {
	if !conf.JSON && isTerminal(f) {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	return f
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewWithWriter creates a logger with a custom writer and level name.
// An empty level means info.
func NewWithWriter(w io.Writer, level string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// SetGlobal makes l the package-level logger used by middleware that logs
// through github.com/rs/zerolog/log.
func SetGlobal(l zerolog.Logger) {
	log.Logger = l
}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return log.Logger
}
