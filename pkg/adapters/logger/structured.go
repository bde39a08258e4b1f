package logger

import (
	"fmt"
	"io"

	"github.com/ideamans/go-l10n"
	"github.com/sirupsen/logrus"

	"github.com/user/frameflow/pkg/ports"
)

// StructuredLogger writes leveled records through logrus. Messages are
// translated and formatted before logging; the component is a field.
type StructuredLogger struct {
	entry *logrus.Entry
	level ports.LogLevel
}

// NewStructured creates a logrus-backed logger. Format is "json" or "text".
func NewStructured(level ports.LogLevel, format string, out io.Writer) *StructuredLogger {
	base := logrus.New()
	base.SetOutput(out)
	switch format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	base.SetLevel(logrusLevel(level))
	return &StructuredLogger{entry: logrus.NewEntry(base), level: level}
}

func logrusLevel(level ports.LogLevel) logrus.Level {
	switch level {
	case ports.LevelDebug:
		return logrus.DebugLevel
	case ports.LevelWarn:
		return logrus.WarnLevel
	case ports.LevelError:
		return logrus.ErrorLevel
	case ports.LevelQuiet:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// Debug logs a debug message.
func (l *StructuredLogger) Debug(msg string, args ...interface{}) {
	if l.level > ports.LevelDebug {
		return
	}
	l.entry.Debug(l10n.F(msg, args...))
}

// Info logs an informational message.
func (l *StructuredLogger) Info(msg string, args ...interface{}) {
	if l.level > ports.LevelInfo {
		return
	}
	l.entry.Info(l10n.F(msg, args...))
}

// Warn logs a warning message.
func (l *StructuredLogger) Warn(msg string, args ...interface{}) {
	if l.level > ports.LevelWarn {
		return
	}
	l.entry.Warn(l10n.F(msg, args...))
}

// Error logs an error message.
func (l *StructuredLogger) Error(msg string, args ...interface{}) {
	if l.level > ports.LevelError {
		return
	}
	l.entry.Error(l10n.F(msg, args...))
}

// WithComponent returns a logger that tags records with component.
func (l *StructuredLogger) WithComponent(component string) ports.Logger {
	return &StructuredLogger{
		entry: l.entry.WithField("component", component),
		level: l.level,
	}
}

// WithField returns a logger adding key as a logrus field.
func (l *StructuredLogger) WithField(key string, value interface{}) ports.Logger {
	return &StructuredLogger{
		entry: l.entry.WithField(key, value),
		level: l.level,
	}
}

// New selects a logger for the given output format: "console", "json" or
// "text". LevelQuiet always yields a no-op logger.
func New(level ports.LogLevel, format string, out io.Writer) (ports.Logger, error) {
	if level == ports.LevelQuiet {
		return NewNoop(), nil
	}
	switch format {
	case "", "console":
		return NewConsole(level), nil
	case "json", "text":
		return NewStructured(level, format, out), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

var (
	_ ports.Logger = (*StructuredLogger)(nil)
	_ ports.Logger = (*ConsoleLogger)(nil)
	_ ports.Logger = (*NoopLogger)(nil)
)
