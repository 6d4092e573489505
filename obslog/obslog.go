// Package obslog provides the process-wide structured logger.
package obslog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the component/session fields this program needs.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger writing to logFile (append-only) and, when stderr is a
// TTY, a human-readable console writer as well. level is one of
// debug/info/warn/error (case-insensitive); unrecognized values default to
// info.
func New(logFile *os.File, level string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var writers []io.Writer
	if logFile != nil {
		writers = append(writers, logFile)
	}
	if fi, err := os.Stderr.Stat(); err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))

	return &Logger{zl: zl}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a child logger carrying the given component field.
func (l *Logger) With(component string) *Component {
	return &Component{zl: l.zl.With().Str("component", component).Logger()}
}

// Component is a logger scoped to one subsystem (sandbox, llm, agent, ...).
type Component struct {
	zl zerolog.Logger
}

func (c *Component) Debug() *zerolog.Event { return c.zl.Debug() }
func (c *Component) Info() *zerolog.Event  { return c.zl.Info() }
func (c *Component) Warn() *zerolog.Event  { return c.zl.Warn() }
func (c *Component) Error() *zerolog.Event { return c.zl.Error() }

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}
