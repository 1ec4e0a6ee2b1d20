// Package logger provides the structured logger used across the storefront
// runtime. It wraps logrus so components share one configuration surface.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls log level, format, and destination.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" or "text".
	Format string
	// Output is "stdout", "stderr", or "file".
	Output string
	// FilePrefix is the log file path prefix when Output is "file";
	// the current date and a .log suffix are appended.
	FilePrefix string
}

// Logger is the shared structured logger. It embeds a logrus entry so
// callers can chain WithField/WithError and log at any level.
type Logger struct {
	*logrus.Entry
}

// New creates a logger from the given configuration. Invalid or empty
// settings fall back to info-level text logging on stdout.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	l.SetOutput(resolveOutput(cfg))

	return &Logger{Entry: logrus.NewEntry(l)}
}

// NewDefault creates an info-level text logger tagged with a component name.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	return log.WithComponent(component)
}

// WithComponent returns a logger tagged with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

func resolveOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "storefront"
		}
		path := fmt.Sprintf("%s-%s.log", prefix, time.Now().Format("2006-01-02"))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				return f
			}
		}
		return os.Stdout
	default:
		return os.Stdout
	}
}
