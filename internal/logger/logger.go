package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ju4n97/estimator/internal/env"
)

const (
	defaultLogFile    = "logs/estimator.log"
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 3
	defaultMaxAgeDays = 28
)

type options struct {
	level      slog.Level
	logToFile  bool
	logFile    string
	maxSizeMB  int
	maxBackups int
	console    io.Writer
}

// Option configures the logger built by New.
type Option func(*options)

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithLogToFile enables writing a rotated copy of the log to a file.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the rotated log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		if path != "" {
			o.logFile = path
		}
	}
}

// WithMaxSizeMB sets the size at which the log file is rotated.
func WithMaxSizeMB(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.maxSizeMB = size
		}
	}
}

// WithConsole replaces the console writer (stderr by default).
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// New builds a logger for the given environment. Development gets a
// coloured tint handler, production a JSON handler. With WithLogToFile the
// records are also written as JSON to a lumberjack rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level:      slog.LevelInfo,
		logFile:    defaultLogFile,
		maxSizeMB:  defaultMaxSizeMB,
		maxBackups: defaultMaxBackups,
		console:    os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	var console slog.Handler
	if environment.IsDevelopment() {
		console = tint.NewHandler(o.console, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	} else {
		console = slog.NewJSONHandler(o.console, &slog.HandlerOptions{Level: o.level})
	}

	if !o.logToFile {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     defaultMaxAgeDays,
		Compress:   true,
	}

	return slog.New(newFanout(console, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level})))
}

// ParseLevel parses one of debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
