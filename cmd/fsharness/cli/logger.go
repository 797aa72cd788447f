// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// EnvDebug enables debug logging when set to any non-empty value.
const EnvDebug = "FSHARNESS_DEBUG"

// NewCommandLogger creates the operational logger. When stderr is a
// terminal it uses slog.TextHandler; otherwise slog.JSONHandler, so
// CI output stays machine-parseable. The results log is separate and
// never goes through slog.
func NewCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv(EnvDebug) != "" {
		options.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
