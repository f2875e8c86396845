// Package logging configures the charmbracelet/log loggers used by the CLI
// and the schedule engine.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a logger instance.
type Options struct {
	Writer    io.Writer
	Level     string
	Component string
	// Console selects human-readable output instead of JSON.
	Console bool
}

// New creates a logger based on Options.
func New(opts Options) (*cblog.Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	logOpts := cblog.Options{
		Level:           level,
		ReportTimestamp: true,
	}
	if !opts.Console {
		logOpts.Formatter = cblog.JSONFormatter
	}
	logger := cblog.NewWithOptions(writer, logOpts)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger, nil
}

// Discard returns a logger that drops every entry.
func Discard() *cblog.Logger {
	return cblog.New(io.Discard)
}
