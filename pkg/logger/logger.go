package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/killallgit/agentstream/pkg/config"
	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped logger. Methods take a message followed by
// alternating key/value pairs.
type Logger struct {
	entry *logrus.Entry
}

var (
	mu   sync.RWMutex
	base = newDiscardLogger()
	file *os.File
)

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Init initializes the logger with configuration from global config
func Init() error {
	return InitWithConfig(config.Get().Logging)
}

// InitWithConfig opens the log file described by cfg and makes it the
// destination for every component logger.
func InitWithConfig(cfg config.LoggingConfig) error {
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = "system.log"
	}
	if !filepath.IsAbs(logPath) {
		logPath = config.BuildSettingsPath(filepath.Base(logPath))
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if cfg.Preserve {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(logPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l := logrus.New()
	l.SetOutput(f)
	l.SetLevel(parseLevel(cfg.Level))
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	base = l
	file = f
	return nil
}

// parseLevel converts a string level to a logrus level
func parseLevel(levelStr string) logrus.Level {
	switch levelStr {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// WithComponent returns a logger that tags every entry with the component name
func WithComponent(name string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{entry: base.WithField("component", name)}
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(keyvals))}
}

func (l *Logger) Debug(msg string, keyvals ...any) {
	l.entry.WithFields(fields(keyvals)).Debug(msg)
}

func (l *Logger) Info(msg string, keyvals ...any) {
	l.entry.WithFields(fields(keyvals)).Info(msg)
}

func (l *Logger) Warn(msg string, keyvals ...any) {
	l.entry.WithFields(fields(keyvals)).Warn(msg)
}

func (l *Logger) Error(msg string, keyvals ...any) {
	l.entry.WithFields(fields(keyvals)).Error(msg)
}

// fields turns alternating key/value pairs into logrus fields. A dangling key
// is kept under "!BADKEY" so nothing is dropped silently.
func fields(keyvals []any) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 >= len(keyvals) {
			f["!BADKEY"] = key
			break
		}
		f[key] = keyvals[i+1]
	}
	return f
}

// Package-level convenience functions using the default logger

func Debug(format string, args ...any) {
	current().Debugf(format, args...)
}

func Info(format string, args ...any) {
	current().Infof(format, args...)
}

func Warn(format string, args ...any) {
	current().Warnf(format, args...)
}

func Error(format string, args ...any) {
	current().Errorf(format, args...)
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// SetOutput sets the output writer for the logger (useful for testing)
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetLevel changes the level of the default logger
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(parseLevel(level))
}

// Close closes the log file and resets to a discarding logger
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	base = newDiscardLogger()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}
