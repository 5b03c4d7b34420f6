// Package logger is the structured logging layer of settler, built on logrus.
//
// Every entry names the component that wrote it. During a mount the global
// logger also carries the run id, so the log of one settlement can be cut out
// of a shared log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used across the settlement packages
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger
}

// Fields are the structured fields of an entry
type Fields map[string]interface{}

// Level is a log level name as accepted on the command line
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Format is the rendering of log entries
type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

// Config selects level, format and destination. Entries go to Writer when
// set, else to File when set, else to stderr.
type Config struct {
	Level            Level
	Format           Format
	File             string
	Writer           io.Writer
	DisableTimestamp bool

	// Warnings, when set, counts the warnings written through the logger
	Warnings *WarningCounter
}

// DefaultConfig logs info and above as text on stderr
func DefaultConfig() *Config {
	return &Config{Level: InfoLevel, Format: TextFormat}
}

// DebugConfig logs everything as text on stderr
func DebugConfig() *Config {
	return &Config{Level: DebugLevel, Format: TextFormat}
}

// Validate checks level and format names
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(string(c.Level)); err != nil || c.Level == "" {
		return fmt.Errorf("invalid log level: %q", c.Level)
	}
	switch c.Format {
	case JSONFormat, TextFormat:
	default:
		return fmt.Errorf("invalid log format: %q", c.Format)
	}
	return nil
}

func (c *Config) writer() (io.Writer, error) {
	if c.Writer != nil {
		return c.Writer, nil
	}
	if c.File == "" {
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func (c *Config) formatter() logrus.Formatter {
	if c.Format == JSONFormat {
		return &logrus.JSONFormatter{DisableTimestamp: c.DisableTimestamp}
	}
	return &logrus.TextFormatter{
		DisableTimestamp: c.DisableTimestamp,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
	}
}

// NewLogger creates a logger from config; nil means DefaultConfig
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	w, err := config.writer()
	if err != nil {
		return nil, fmt.Errorf("failed to set log output: %w", err)
	}

	base := logrus.New()
	level, _ := logrus.ParseLevel(string(config.Level))
	base.SetLevel(level)
	base.SetOutput(w)
	base.SetFormatter(config.formatter())
	if config.Warnings != nil {
		base.AddHook(config.Warnings)
	}

	return &entryLogger{entry: logrus.NewEntry(base)}, nil
}

// entryLogger accumulates fields across With* calls
type entryLogger struct {
	entry *logrus.Entry
}

func (l *entryLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *entryLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *entryLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *entryLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value)}
}

func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) WithError(err error) Logger {
	return &entryLogger{entry: l.entry.WithError(err)}
}

func (l *entryLogger) WithComponent(component string) Logger {
	return l.WithField("component", component)
}

// WarningCounter is a logrus hook counting warnings per component
type WarningCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewWarningCounter creates an empty counter
func NewWarningCounter() *WarningCounter {
	return &WarningCounter{counts: make(map[string]int)}
}

// Levels implements logrus.Hook
func (c *WarningCounter) Levels() []logrus.Level {
	return []logrus.Level{logrus.WarnLevel}
}

// Fire implements logrus.Hook
func (c *WarningCounter) Fire(entry *logrus.Entry) error {
	component, _ := entry.Data["component"].(string)
	c.mu.Lock()
	c.counts[component]++
	c.mu.Unlock()
	return nil
}

// Total returns the number of warnings seen
func (c *WarningCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// ByComponent returns a copy of the per-component counts
func (c *WarningCounter) ByComponent() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

func init() {
	l, err := NewLogger(DefaultConfig())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}
	globalLogger = l
}

// SetGlobalLogger replaces the logger returned by GetGlobalLogger
func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger returns the process-wide logger
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Discard returns a logger that drops every entry
func Discard() Logger {
	l, _ := NewLogger(&Config{Level: ErrorLevel, Format: TextFormat, Writer: io.Discard})
	return l
}

// WithFields returns the global logger with fields attached
func WithFields(fields Fields) Logger {
	return GetGlobalLogger().WithFields(fields)
}

// WithComponent returns the global logger tagged with component
func WithComponent(component string) Logger {
	return GetGlobalLogger().WithComponent(component)
}
