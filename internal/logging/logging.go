// Package logging configures the pipeline's structured logger and an
// optional ticker-driven progress reporter for long-running runs.
//
// It plays the role the original implementation's spdlog-based rotating
// file logger (src/logger/logger.cpp) played: a thin, replaceable
// ambient collaborator every component reaches into rather than
// constructing its own logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Config controls log destination and rotation, mirroring the original's
// inti_logger(path, max_size, max_backups, flush_interval) call.
type Config struct {
	FilePath   string // rotating log file; empty disables file logging
	MaxSizeMB  int    // per-file size cap before rotation
	MaxBackups int    // number of rotated files to retain
	Verbose    bool   // debug-level logging when true
}

// Init configures the package logger. Safe to call once at process
// startup; subsequent calls replace the active logger.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var writer io.Writer
	if cfg.FilePath != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxInt(cfg.MaxSizeMB, 1),
			MaxBackups: maxInt(cfg.MaxBackups, 1),
		}
		writer = zerolog.MultiLevelWriter(console, rotating)
	} else {
		writer = zerolog.MultiLevelWriter(console)
	}

	logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// L returns the active package logger.
func L() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return &logger
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
