// Package logger wraps github.com/rs/zerolog behind Strata's component
// logging convention (every subsystem is constructed with a *Logger
// carrying fixed contextual fields), grounded on cuemby-warren/pkg/log's
// Init/Config shape and replacing docdb/internal/logger's hand-rolled
// fmt.Fprintf-based implementation.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// Config mirrors cuemby-warren/pkg/log.Config.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger is a thin handle around zerolog.Logger with a Component helper
// for deriving per-subsystem child loggers.
type Logger struct {
	z zerolog.Logger
}

func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	var z zerolog.Logger
	if cfg.JSONOutput {
		z = zerolog.New(output).With().Timestamp().Logger()
	} else {
		z = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}).With().Timestamp().Logger()
	}
	z = z.Level(cfg.Level)
	return &Logger{z: z}
}

// Default returns a console logger at Info level, the zero-config path.
func Default() *Logger {
	return New(Config{Level: LevelInfo})
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// Component returns a child logger tagged with a "component" field,
// following the teacher's per-subsystem-logger injection pattern.
func (l *Logger) Component(name string) *Logger {
	return &Logger{z: l.z.With().Str("component", name).Logger()}
}

// With returns a child logger with additional structured fields attached.
func (l *Logger) With(fields map[string]any) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { l.emit(l.z.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { l.emit(l.z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { l.emit(l.z.Warn(), msg, fields) }
func (l *Logger) Error(msg string, err error, fields ...map[string]any) {
	ev := l.z.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.emit(ev, msg, fields)
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []map[string]any) {
	for _, f := range fields {
		for k, v := range f {
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(msg)
}
