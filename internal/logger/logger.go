package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"zonecounter/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger provides leveled logging (debug/info/warning/error) to files and stdout/stderr.
type Logger struct {
	debugLog   *logrus.Logger
	infoLog    *logrus.Logger
	warningLog *logrus.Logger
	errorLog   *logrus.Logger
	logDir     string
}

// levelFiles maps a level name to the file that collects it.
var levelFiles = map[string]string{
	"debug":   "debug.log",
	"info":    "info.log",
	"warning": "warning.log",
	"error":   "error.log",
}

// Levels lists the level names that have a log file.
func Levels() []string {
	levels := make([]string, 0, len(levelFiles))
	for level := range levelFiles {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	return levels
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
	}

	logger.setupLoggers()
	return logger
}

// NewDiscard returns a Logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	return &Logger{
		debugLog:   newLogrus(io.Discard),
		infoLog:    newLogrus(io.Discard),
		warningLog: newLogrus(io.Discard),
		errorLog:   newLogrus(io.Discard),
	}
}

// NewWithWriter sends every level to w.
func NewWithWriter(w io.Writer) *Logger {
	l := newLogrus(w)
	return &Logger{debugLog: l, infoLog: l, warningLog: l, errorLog: l}
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers() {
	debugFile := filepath.Join(l.logDir, levelFiles["debug"])
	infoFile := filepath.Join(l.logDir, levelFiles["info"])
	warningFile := filepath.Join(l.logDir, levelFiles["warning"])
	errorFile := filepath.Join(l.logDir, levelFiles["error"])

	// Debug output is file-only; cycles log too often for the console.
	l.debugLog = newLogrus(l.openLogFile(debugFile))
	infoWriter := io.MultiWriter(os.Stdout, l.openLogFile(infoFile))
	warningWriter := io.MultiWriter(os.Stdout, l.openLogFile(warningFile))
	errorWriter := io.MultiWriter(os.Stderr, l.openLogFile(errorFile))

	l.infoLog = newLogrus(infoWriter)
	l.warningLog = newLogrus(warningWriter)
	l.errorLog = newLogrus(errorWriter)
}

func newLogrus(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Debug writes a formatted debug-level entry to debug.log.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.debugLog.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.infoLog.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.warningLog.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLog.Errorf(format, v...)
}

// WithFields returns a structured entry on the info log.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.infoLog.WithFields(fields)
}

// LogFile returns the path of the file collecting level.
func (l *Logger) LogFile(level string) (string, bool) {
	name, ok := levelFiles[level]
	if !ok {
		return "", false
	}
	return filepath.Join(l.logDir, name), true
}

// CleanLogs truncates the log file of level.
func (l *Logger) CleanLogs(level string) error {
	filePath, ok := l.LogFile(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("%s content has been cleared.", filepath.Base(filePath))
	return nil
}
