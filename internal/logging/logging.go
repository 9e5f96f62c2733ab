// Package logging adapts zerolog to the small Logger interface the rest of
// the service depends on.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger provides the minimal logging used across packages.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ZeroLogger implements Logger on top of a zerolog.Logger.
type ZeroLogger struct {
	zl zerolog.Logger
}

// New builds a logger writing JSON lines to w at the given level.
func New(w io.Writer, level string) *ZeroLogger {
	if w == nil {
		w = os.Stdout
	}
	zl := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

func (l *ZeroLogger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *ZeroLogger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Zerolog exposes the underlying logger for structured fields.
func (l *ZeroLogger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// With returns a child logger carrying an extra string field.
func (l *ZeroLogger) With(key, value string) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Str(key, value).Logger()}
}

// Write lets the logger back a standard library *log.Logger, such as
// http.Server.ErrorLog.
func (l *ZeroLogger) Write(p []byte) (int, error) {
	l.zl.Error().Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
