// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dirwatch

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
	"github.com/bureau-foundation/canvasbridge/lib/testutil"
)

func TestWatch_FallbackTick(t *testing.T) {
	fake := clock.Fake(time.Unix(1767261600, 0))
	ctx, cancel := context.WithCancel(context.Background())

	changes := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := Watch(ctx, t.TempDir(), Options{
			Clock:            fake,
			FallbackInterval: 2 * time.Second,
			DisableNotify:    true,
		}, func() { changes <- struct{}{} })
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)
	testutil.RequireReceive(t, changes, 5*time.Second, "first fallback tick")
	fake.Advance(2 * time.Second)
	testutil.RequireReceive(t, changes, 5*time.Second, "second fallback tick")

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "Watch returning after cancel")
}

func TestWatch_NothingToWatchWith(t *testing.T) {
	err := Watch(context.Background(), t.TempDir(), Options{DisableNotify: true}, func() {})
	if err == nil {
		t.Fatal("Watch with notification disabled and no fallback returned nil")
	}
}
