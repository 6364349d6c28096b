// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dirwatch reports changes to one directory.
//
// Two sources feed the same callback: kernel change notification
// (inotify on Linux) and a periodic fallback tick. Notification gives
// low latency on local filesystems. The tick covers what notification
// misses: network shares and WSL drive mounts, where changes made by
// the other host never produce a local event.
//
// The callback only says "something may have changed". Callers rescan
// the directory themselves, so dropped, merged or spurious
// notifications are harmless.
package dirwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
)

// Options configures Watch.
type Options struct {
	// Clock drives the fallback tick. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives watcher diagnostics. Nil discards them.
	Logger *slog.Logger

	// FallbackInterval is the period of the fallback tick. Zero
	// disables it, which is only valid while notification works.
	FallbackInterval time.Duration

	// Filter selects which file names trigger the callback on a
	// notification. Nil accepts every name. Fallback ticks always
	// trigger it.
	Filter func(name string) bool

	// DisableNotify skips kernel notification and relies on the
	// fallback tick alone.
	DisableNotify bool
}

// errNotifyUnsupported is returned by startNotifier on platforms
// without a notification backend.
var errNotifyUnsupported = errors.New("directory change notification is not supported on this platform")

// Watch calls onChange from its own goroutine each time the directory
// may have changed, until ctx is done. Calls are serialized. Watch
// blocks and returns nil once ctx is done.
//
// When notification cannot be set up, Watch logs a warning and runs on
// the fallback tick alone; if that is disabled too, it returns an
// error right away.
func Watch(ctx context.Context, directory string, options Options, onChange func()) error {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	filter := options.Filter
	if filter == nil {
		filter = func(string) bool { return true }
	}

	// Capacity one: a pending notification already covers any that
	// arrive before the callback runs.
	notifications := make(chan struct{}, 1)

	notifying := false
	if !options.DisableNotify {
		stop, err := startNotifier(directory, filter, notifications, options.Logger)
		if err != nil {
			if options.FallbackInterval <= 0 {
				return fmt.Errorf("watching %s: %w", directory, err)
			}
			options.Logger.Warn("directory notification unavailable, using periodic scan only",
				"directory", directory,
				"interval", options.FallbackInterval,
				"error", err,
			)
		} else {
			notifying = true
			defer stop()
		}
	}
	if !notifying && options.FallbackInterval <= 0 {
		return fmt.Errorf("watching %s: notification disabled and no fallback interval", directory)
	}

	var ticks <-chan time.Time
	if options.FallbackInterval > 0 {
		ticker := options.Clock.NewTicker(options.FallbackInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	options.Logger.Debug("watching directory",
		"directory", directory,
		"notify", notifying,
		"fallback_interval", options.FallbackInterval,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-notifications:
			onChange()
		case <-ticks:
			onChange()
		}
	}
}
