// Package logging builds the slog logger for each way the binary runs.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Mode selects the handler and destination.
type Mode int

const (
	// ModeCLI logs human-readable text to stderr.
	ModeCLI Mode = iota
	// ModeServer logs JSON to stdout.
	ModeServer
	// ModeStdio logs JSON to stderr; stdout belongs to the protocol.
	ModeStdio
	// ModeTUI logs JSON to a file, or nowhere, while the terminal is taken.
	ModeTUI
)

// New returns a logger and a close func releasing any opened file.
func New(mode Mode, level slog.Level, file string) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: level}
	noop := func() error { return nil }

	switch mode {
	case ModeServer:
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), noop, nil
	case ModeStdio:
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), noop, nil
	case ModeTUI:
		if file == "" {
			return slog.New(slog.NewJSONHandler(io.Discard, opts)), noop, nil
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(f, opts)), f.Close, nil
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), noop, nil
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
