package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger and owns the log file, if any.
//
// Console output goes to stderr: in stdio mode stdout carries the protocol
// and must never see a log line.
type Logger struct {
	logger zerolog.Logger
	file   *os.File
}

// Config holds logger configuration
type Config struct {
	Level   string // debug, info, warn, error
	File    string // log file path
	Console bool   // enable stderr output
	Pretty  bool   // human-readable console output

	// Console overrides stderr; used by tests.
	ConsoleWriter io.Writer
}

// New creates a new logger and installs it as the global zerolog logger.
//
// The level is applied process-wide with zerolog.SetGlobalLevel so SetLevel
// also reaches child loggers derived before the change.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		var consoleOut io.Writer = os.Stderr
		if cfg.ConsoleWriter != nil {
			consoleOut = cfg.ConsoleWriter
		}
		if cfg.Pretty {
			consoleOut = zerolog.ConsoleWriter{
				Out:        consoleOut,
				TimeFormat: time.RFC3339,
				NoColor:    cfg.ConsoleWriter != nil,
			}
		}
		writers = append(writers, consoleOut)
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(writer).
		With().
		Timestamp().
		Logger()

	zerolog.SetGlobalLevel(level)
	log.Logger = logger

	return &Logger{
		logger: logger,
		file:   file,
	}, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevel changes the log level of every logger in the process.
func (l *Logger) SetLevel(name string) error {
	if name == "" {
		name = zerolog.InfoLevel.String()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Level returns the current log level.
func (l *Logger) Level() zerolog.Level {
	return zerolog.GlobalLevel()
}

// Component returns a child logger tagged with the module name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("module", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Console: true,
		Pretty:  true,
	}
}
