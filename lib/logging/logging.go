// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process logger for the bridge binaries.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	// Level is the minimum level logged.
	Level slog.Level

	// Format is "auto", "json" or "text". Auto writes text when Output
	// is a terminal and JSON otherwise. Empty means auto.
	Format string

	// Output receives log lines. Nil means os.Stderr.
	Output io.Writer

	// File, when set, receives a JSON copy of every line. The caller
	// closes it with the returned closer.
	File string
}

// New returns a logger and a function that releases the log file, if
// any. The closer is never nil.
func New(options Options) (*slog.Logger, func() error, error) {
	output := options.Output
	if output == nil {
		output = os.Stderr
	}
	handlerOptions := &slog.HandlerOptions{Level: options.Level}

	var handler slog.Handler
	switch options.Format {
	case "", "auto":
		if isTerminal(output) {
			handler = slog.NewTextHandler(output, handlerOptions)
		} else {
			handler = slog.NewJSONHandler(output, handlerOptions)
		}
	case "json":
		handler = slog.NewJSONHandler(output, handlerOptions)
	case "text":
		handler = slog.NewTextHandler(output, handlerOptions)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want auto, json or text)", options.Format)
	}

	closer := func() error { return nil }
	if options.File != "" {
		file, err := os.OpenFile(options.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		handler = fanout{handler, slog.NewJSONHandler(file, handlerOptions)}
		closer = file.Close
	}
	return slog.New(handler), closer, nil
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// fanout sends every record to each handler.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			errs = append(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make(fanout, len(f))
	for index, handler := range f {
		handlers[index] = handler.WithAttrs(attrs)
	}
	return handlers
}

func (f fanout) WithGroup(name string) slog.Handler {
	handlers := make(fanout, len(f))
	for index, handler := range f {
		handlers[index] = handler.WithGroup(name)
	}
	return handlers
}
