// Package logx provides structured, component-scoped logging with environment-driven debug control.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is a component-scoped logger wrapping the standard library logger.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// debugConfig controls debug logging behavior, driven by environment variables.
type debugConfig struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

//nolint:gochecknoglobals // package-level debug toggle, mirrors env-var init pattern
var (
	dbgConfig = &debugConfig{}
	dbgMutex  sync.RWMutex
)

func init() { //nolint:gochecknoinits // environment-driven defaults, read once at process start
	initDebugFromEnv()
}

func initDebugFromEnv() {
	dbgMutex.Lock()
	defer dbgMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		dbgConfig.enabled = true
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		dbgConfig.domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			dbgConfig.domains[strings.TrimSpace(domain)] = true
		}
	}
}

// NewLogger creates a logger scoped to the given component name (e.g. "orchestrator", "memory").
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

// SetDebugEnabled overrides the environment-derived debug toggle (used by tests and the CLI).
func SetDebugEnabled(enabled bool) {
	dbgMutex.Lock()
	defer dbgMutex.Unlock()
	dbgConfig.enabled = enabled
}

// IsDebugEnabled reports whether debug logging is globally enabled.
func IsDebugEnabled() bool {
	dbgMutex.RLock()
	defer dbgMutex.RUnlock()
	return dbgConfig.enabled
}

// IsDebugEnabledForDomain reports whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	dbgMutex.RLock()
	defer dbgMutex.RUnlock()

	if !dbgConfig.enabled {
		return false
	}
	if dbgConfig.domains == nil {
		return true
	}
	return dbgConfig.domains[domain]
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)
}

// Debug logs a message when debug logging is globally enabled.
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

// Component returns the logger's component name.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a copy of the logger scoped to a different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, logger: l.logger}
}

//nolint:gochecknoglobals // package-level default logger for free functions below
var defaultLogger = NewLogger("system")

// Debugf logs a debug message via the package default logger.
func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

// Infof logs an info message via the package default logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning message via the package default logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
