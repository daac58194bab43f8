package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions configures the process logger
type LogOptions struct {
	Level  string
	Format string
	Writer io.Writer
}

// logOptionsFromEnv reads LOG_LEVEL and LOG_FORMAT
func logOptionsFromEnv() LogOptions {
	return LogOptions{
		Level:  strings.ToLower(os.Getenv("LOG_LEVEL")),
		Format: strings.ToLower(os.Getenv("LOG_FORMAT")),
	}
}

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	With().Timestamp().Logger().Level(zerolog.InfoLevel)

// SetupLogger replaces the process logger. Console output unless format is "json".
func SetupLogger(opt LogOptions) {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = time.RFC3339
	logger = zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(opt.Level))
}

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	if enabled {
		logger = logger.Level(zerolog.DebugLevel)
	}
}

func componentLogger(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.TrimSpace(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
