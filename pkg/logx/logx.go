// Package logx provides leveled logging for the assessment core.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled, component-tagged log lines.
type Logger struct {
	component string
	logger    *log.Logger
}

var (
	debugMu      sync.RWMutex
	debugEnabled bool
)

//nolint:gochecknoinits // Env var initialization must happen before first log call
func init() {
	v := strings.ToLower(os.Getenv("ADVISOR_DEBUG"))
	debugEnabled = v == "1" || v == "true" || v == "yes"
}

// SetDebug enables or disables debug output at runtime.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled reports whether debug output is active.
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

// NewLogger creates a logger tagged with a component name.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	ts := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] %s: %s", ts, level, l.component, msg)
}

// Debug logs a debug message when debug output is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// WithComponent returns a copy of the logger tagged with a new component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, logger: l.logger}
}

// Component returns the component tag for this logger.
func (l *Logger) Component() string {
	return l.component
}

// Package-level convenience logger for call sites without their own Logger.
//
//nolint:gochecknoglobals // Default logger mirrors the stdlib log package pattern
var defaultLogger = NewLogger("advisor")

// Debugf logs a debug message using the default logger.
func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

// Infof logs an info message using the default logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning message using the default logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs an error message using the default logger and returns it as an error.
func Errorf(format string, args ...any) error {
	defaultLogger.Error(format, args...)
	return fmt.Errorf(format, args...)
}
