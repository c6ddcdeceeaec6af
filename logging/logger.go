// Package logging wraps zerolog with lumberjack-backed rotation, the
// ambient logging stack every engine component logs through. Adapted from
// the teacher's logger package.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are written.
type Config struct {
	// Path is the log file location. Defaults to "./logs/gobyte.log".
	Path string
	// Console additionally writes to stdout when true.
	Console bool
	// Level is the minimum level written; defaults to zerolog.InfoLevel.
	Level zerolog.Level
}

// New builds a zerolog.Logger rotating at 5 MB, keeping 5 backups for 30
// days, matching the teacher's lumberjack settings.
func New(cfg Config) (zerolog.Logger, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join("logs", "gobyte.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return zerolog.Logger{}, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	var out io.Writer = fileWriter
	if cfg.Console {
		out = io.MultiWriter(os.Stdout, fileWriter)
	}

	level := cfg.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
