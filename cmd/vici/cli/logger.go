// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewCommandLogger creates the diagnostic logger for a command run.
// When w is a terminal, uses slog.TextHandler for human-readable output.
// When w is piped or redirected, uses slog.JSONHandler for
// machine-parseable output.
//
// level is one of debug, info, warn or error.
func NewCommandLogger(w io.Writer, level string) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var handler slog.Handler
	options := &slog.HandlerOptions{Level: logLevel}
	if IsTerminal(w) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler), nil
}
