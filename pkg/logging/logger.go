// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for Aleutian services.
//
// The package is a thin layer over the standard library slog package.
// Services log JSON to stderr in deployment; when stderr is a terminal
// the logger switches to the human-readable text handler so local runs
// stay legible.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "agent"})
//	slog.SetDefault(logger)
//	slog.Info("starting chat", "session_id", sessionID)
//
// # Log Levels
//
// Four levels are supported, matching slog conventions:
//
//   - Debug: development troubleshooting, verbose output
//   - Info: normal operations (request start/end, state changes)
//   - Warn: recoverable issues (retry attempts, degraded mode)
//   - Error: operation failures (but the system continues)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure tokens and secrets are not logged:
//
//	// BAD: logs sensitive data
//	slog.Info("auth", "token", authToken)
//
//	// GOOD: log metadata only
//	slog.Info("auth", "token_present", authToken != "")
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity, ordered Debug < Info < Warn < Error.
// Setting a minimum level filters out all logs below that level.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations the system
	// can recover from.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error")
// to a Level. Unrecognized names fall back to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity emitted.
	Level Level

	// Service tags every record with a "service" attribute.
	Service string

	// ForceJSON emits JSON even when stderr is a terminal. Deployments
	// that pipe a pty into a collector set this.
	ForceJSON bool

	// AddSource includes the caller file:line on each record.
	AddSource bool
}

// =============================================================================
// Construction
// =============================================================================

// New builds a slog.Logger per the config.
//
// Description:
//
//	Output goes to stderr. The handler is JSON unless stderr is a
//	terminal and ForceJSON is false, in which case the text handler is
//	used for readability during local development.
//
// Inputs:
//
//	cfg - Logger configuration. The zero value produces an info-level
//	      JSON logger with no service tag.
//
// Outputs:
//
//	*slog.Logger - Ready to use; callers typically slog.SetDefault it.
//
// Thread Safety: The returned logger is safe for concurrent use.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level.toSlogLevel(),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if !cfg.ForceJSON && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With(slog.String("service", cfg.Service))
	}
	return logger
}

// Default returns an info-level logger with no service tag.
func Default() *slog.Logger {
	return New(Config{Level: LevelInfo})
}
