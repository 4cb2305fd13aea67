package system

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes structured log lines to stdout and a daily rotated file
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	logger   zerolog.Logger
	logDir   string
	filename string
	date     string
	level    zerolog.Level
	console  io.Writer
}

// Global logger instance
var globalLogger *Logger

// InitLogger initializes the global logger. level is a zerolog level name
// ("debug", "info", "warn", "error"); unknown names fall back to info.
func InitLogger(logDir, level string) error {
	if logDir == "" {
		logDir = "./logs"
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	globalLogger = &Logger{
		logDir:   logDir,
		filename: "traffic-monitor",
		level:    lvl,
		console:  zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"},
	}

	return globalLogger.rotateIfNeeded()
}

// rotateIfNeeded reopens the log file when the day changes
func (l *Logger) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if l.date == today && l.file != nil {
		return nil
	}

	if l.file != nil {
		l.file.Close()
	}

	logPath := filepath.Join(l.logDir, fmt.Sprintf("%s-%s.log", l.filename, today))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	// JSON lines to the file, human readable lines to stdout
	multi := zerolog.MultiLevelWriter(l.console, file)

	l.file = file
	l.logger = zerolog.New(multi).Level(l.level).With().Timestamp().Logger()
	l.date = today

	return nil
}

// Log writes a log entry
func (l *Logger) Log(level zerolog.Level, format string, args ...interface{}) {
	if l == nil {
		log.Printf("[%s] %s", level.String(), fmt.Sprintf(format, args...))
		return
	}

	_ = l.rotateIfNeeded()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.WithLevel(level).Msgf(format, args...)
}

// Package-level logging functions

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Log(zerolog.DebugLevel, format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Log(zerolog.InfoLevel, format, args...)
	} else {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Log(zerolog.WarnLevel, format, args...)
	} else {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Log(zerolog.ErrorLevel, format, args...)
	} else {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Close closes the logger
func Close() {
	if globalLogger != nil && globalLogger.file != nil {
		globalLogger.file.Close()
	}
}
