// Package logger provides the package-level logging calls used
// throughout this module (Debugf, Infof, Warnf, Errorf), backed by
// logrus. Callers who want their own sink can call SetLogger with any
// *logrus.Logger; the zero value logs to stderr at Info level, matching
// logrus's own defaults.
package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = logrus.StandardLogger()
)

// SetLogger replaces the backing logrus logger. Safe for concurrent use
// with the package-level logging calls.
func SetLogger(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()

	log = l
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return log
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) { current().Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { current().Infof(format, args...) }

// Warnf logs at warning level.
func Warnf(format string, args ...any) { current().Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...any) { current().Errorf(format, args...) }

// Debug logs a single message at debug level with structured fields.
func Debug(msg string, fields logrus.Fields) {
	current().WithFields(fields).Debug(msg)
}

// Warn logs a single message at warning level with structured fields.
func Warn(msg string, fields logrus.Fields) {
	current().WithFields(fields).Warn(msg)
}

// Error logs a single message at error level with structured fields.
func Error(msg string, fields logrus.Fields) {
	current().WithFields(fields).Error(msg)
}
