package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how the global zerolog logger is built.
type Options struct {
	Level       string
	Format      string // "json" or "console"; empty picks console in DEV
	Environment string
	File        string
	Output      io.Writer
}

// Setup replaces the global zerolog logger and returns a closer for the
// rotating file writer, if one was opened.
func Setup(opts Options) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if useConsole(opts) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	writers := []io.Writer{out}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging.Setup mkdir: %w", err)
		}
		fw := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
			LocalTime:  true,
		}
		writers = append(writers, fw)
		closer = fw
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closer, nil
}

func useConsole(opts Options) bool {
	switch strings.ToLower(opts.Format) {
	case "json":
		return false
	case "console", "text":
		return true
	}
	return strings.EqualFold(opts.Environment, "DEV")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
