// Package logger provides the process-wide leveled logger used for operational
// chatter. Structured machine-readable events go through internal/events
// instead; this logger is for humans reading the service output.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is a log severity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

type leveledLogger struct {
	mu     sync.RWMutex
	level  Level
	outLog *log.Logger
	errLog *log.Logger
}

var std = &leveledLogger{
	level:  LevelInfo,
	outLog: log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	errLog: log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds),
}

// SetGlobalLogLevel reconfigures the global logger's threshold.
func SetGlobalLogLevel(logLevel string) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = ParseLevel(logLevel)
}

// SetOutput redirects both streams. Intended for tests.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.outLog = log.New(w, "", 0)
	std.errLog = log.New(w, "", 0)
}

func (l *leveledLogger) log(lv Level, tag string, msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lv < l.level {
		return
	}
	dst := l.outLog
	if lv >= LevelError {
		dst = l.errLog
	}
	dst.Output(3, tag + " " + strings.TrimRight(msg, "\n"))
}

// Debug logs a debug message using the global logger.
func Debug(args ...interface{}) { std.log(LevelDebug, "DEBUG:", fmt.Sprintln(args...)) }

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	std.log(LevelDebug, "DEBUG:", fmt.Sprintf(format, args...))
}

// Info logs an informational message using the global logger.
func Info(args ...interface{}) { std.log(LevelInfo, "INFO: ", fmt.Sprintln(args...)) }

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	std.log(LevelInfo, "INFO: ", fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func Warn(args ...interface{}) { std.log(LevelWarn, "WARN: ", fmt.Sprintln(args...)) }

// Warnf logs a warning with formatting.
func Warnf(format string, args ...interface{}) {
	std.log(LevelWarn, "WARN: ", fmt.Sprintf(format, args...))
}

// Error logs an error message.
func Error(args ...interface{}) { std.log(LevelError, "ERROR:", fmt.Sprintln(args...)) }

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	std.log(LevelError, "ERROR:", fmt.Sprintf(format, args...))
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	std.log(LevelFatal, "FATAL:", fmt.Sprintln(args...))
	os.Exit(1)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	std.log(LevelFatal, "FATAL:", fmt.Sprintf(format, args...))
	os.Exit(1)
}
