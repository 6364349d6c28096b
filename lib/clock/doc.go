// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every canvasbridge component.
//
// The protocol is built out of waits: the Responder's debounce timer
// and post-open settle delay, the Requester's poll interval and grace
// wait, the liveness loop, and the watcher's fallback scan ticker. All
// of them go through a [Clock] so that tests can drive them without
// sleeping.
//
// Production code passes [Real]. Tests pass [Fake] and move time
// explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go requester.Call(ctx, ...)   // registers a poll timer
//	fake.WaitForTimers(1)         // wait until it is registered
//	fake.Advance(500 * time.Millisecond)
//
// WaitForTimers closes the window between a goroutine registering a
// timer and the test advancing past it.
package clock
