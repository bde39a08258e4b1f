// Package ports defines interfaces for external dependencies.
package ports

// LogLevel is the severity of a log message.
type LogLevel int

const (
	// LevelDebug covers per-frame and per-load detail inside components.
	LevelDebug LogLevel = iota
	// LevelInfo covers job-level progress: projects loaded, exports finished.
	LevelInfo
	// LevelWarn covers degraded output that keeps rendering, such as a
	// missing asset or a compositor fallback.
	LevelWarn
	// LevelError covers failures that abort a command.
	LevelError
	// LevelQuiet suppresses all output.
	LevelQuiet
)

var levelNames = [...]string{"debug", "info", "warn", "error", "quiet"}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelQuiet {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name. Unknown names yield LevelInfo.
func ParseLogLevel(s string) LogLevel {
	for i, name := range levelNames {
		if name == s {
			return LogLevel(i)
		}
	}
	return LevelInfo
}

// Logger logs translatable messages. msg is both the format string and the
// lexicon key, so callers pass the literal format with its arguments.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger tagging messages with a component name
	// such as "scheduler" or "decode".
	WithComponent(component string) Logger

	// WithField returns a Logger attaching key=value to every message, used
	// for identifiers like export job and asset IDs.
	WithField(key string, value interface{}) Logger
}
