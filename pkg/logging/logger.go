// Package logging configures the process-wide zerolog logger and hands out
// per-component child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name accepted in configuration.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// levels maps every accepted spelling to its zerolog level.
var levels = map[string]struct {
	name  LogLevel
	level zerolog.Level
}{
	"debug":   {LevelDebug, zerolog.DebugLevel},
	"":        {LevelInfo, zerolog.InfoLevel},
	"info":    {LevelInfo, zerolog.InfoLevel},
	"warn":    {LevelWarn, zerolog.WarnLevel},
	"warning": {LevelWarn, zerolog.WarnLevel},
	"error":   {LevelError, zerolog.ErrorLevel},
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written; unknown names fall back to info.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output receives log lines (default: os.Stderr).
	Output io.Writer

	// Fields are attached to every line, e.g. app_id and run_id.
	Fields map[string]string
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// ParseLevel normalizes a level name. An empty name means info.
func ParseLevel(s string) (LogLevel, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return l.name, nil
}

func zerologLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[strings.ToLower(string(level))]; ok {
		return l.level
	}
	return zerolog.InfoLevel
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	for k, v := range cfg.Fields {
		ctx = ctx.Str(k, v)
	}
	log.Logger = ctx.Logger()

	return log.Logger
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: per-page flow
//   - Page processed (cursor, received, applicable, kept, duplicates)
//   - Cache hit per page key
//   - Final cursor of a run
//
// Info: run milestones
//   - Run started / finished, feed total received
//   - Date window configured
//   - Each batch file written
//
// Warn: recoverable or accounting conditions
//   - Retry attempts, 429 cool-off
//   - Cache errors (request falls through to the feed)
//   - Remaining-to-fetch counter not zero at teardown
//   - Record id kept more than once
//   - File cap reached with records left unwritten
//
// Error: run aborted
//   - Transport failure after retries, protocol violation
//   - Batch file failed schema validation
//   - Secondary sink failure
//
// Context fields:
//   - component: emitting package
//   - run_id, app_id: identify the run (set once through Config.Fields)
//   - cursor: feed cursor of the page
//   - status, error_class: transport failures
//   - file, records: batch file writes
