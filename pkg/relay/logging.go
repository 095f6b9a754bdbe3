// Copyright 2024-2026 Aiku AI

package relay

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the process logger. Console output goes to stderr, JSON
// unless Pretty is set. When File is set, JSON lines are also written to a
// rotating log file; the returned Closer flushes and closes it.
func NewLogger(cfg *LoggingConfig, stderr io.Writer) (zerolog.Logger, io.Closer) {
	var console io.Writer = stderr
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.DateTime}
	}

	out := console
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	log := zerolog.New(out).Level(cfg.ZerologLevel()).With().Timestamp().Logger()
	return log, closer
}
