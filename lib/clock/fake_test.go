// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFake_AfterFiresOnlyWhenCrossed(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(300 * time.Millisecond)

	fake.Advance(299 * time.Millisecond)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Millisecond)
	select {
	case got := <-channel:
		if !got.Equal(epoch.Add(300 * time.Millisecond)) {
			t.Fatalf("After delivered %v", got)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if fake.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d after firing, want 0", fake.PendingCount())
	}
}

func TestFake_AfterFuncOrderAndStop(t *testing.T) {
	fake := Fake(epoch)
	var order []string
	fake.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	fake.AfterFunc(time.Second, func() { order = append(order, "first") })
	stopped := fake.AfterFunc(1500*time.Millisecond, func() { order = append(order, "stopped") })

	if !stopped.Stop() {
		t.Fatal("Stop on a pending timer returned false")
	}
	if stopped.Stop() {
		t.Fatal("second Stop returned true")
	}

	fake.Advance(5 * time.Second)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("callback order = %v", order)
	}
}

func TestFake_ResetReschedules(t *testing.T) {
	fake := Fake(epoch)
	fired := 0
	timer := fake.AfterFunc(time.Second, func() { fired++ })

	fake.Advance(900 * time.Millisecond)
	if !timer.Reset(time.Second) {
		t.Fatal("Reset on a pending timer returned false")
	}
	fake.Advance(900 * time.Millisecond)
	if fired != 0 {
		t.Fatal("timer fired at its original deadline after Reset")
	}
	fake.Advance(100 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	if timer.Reset(time.Second) {
		t.Fatal("Reset on a fired timer returned true")
	}
	fake.Advance(time.Second)
	if fired != 2 {
		t.Fatalf("fired = %d after re-arming, want 2", fired)
	}
}

func TestFake_CallbackRegistersWithinAdvance(t *testing.T) {
	fake := Fake(epoch)
	var firstAt, chainedAt time.Time
	fake.AfterFunc(time.Second, func() {
		firstAt = fake.Now()
		fake.AfterFunc(time.Second, func() { chainedAt = fake.Now() })
	})
	fake.Advance(3 * time.Second)
	if !firstAt.Equal(epoch.Add(time.Second)) {
		t.Errorf("first callback saw %v, want its own deadline %v", firstAt, epoch.Add(time.Second))
	}
	if !chainedAt.Equal(epoch.Add(2 * time.Second)) {
		t.Fatalf("chained callback ran at %v, want %v", chainedAt, epoch.Add(2*time.Second))
	}
	if got := fake.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Fatalf("Now = %v after Advance, want %v", got, epoch.Add(3*time.Second))
	}
}

func TestFake_ChainBeyondTargetWaits(t *testing.T) {
	fake := Fake(epoch)
	chained := false
	fake.AfterFunc(300*time.Millisecond, func() {
		fake.AfterFunc(2*time.Second, func() { chained = true })
	})

	// The chained deadline is 2.3s; an Advance to 2s must not reach it.
	fake.Advance(2 * time.Second)
	if chained {
		t.Fatal("chained callback fired before its deadline")
	}
	fake.Advance(300 * time.Millisecond)
	if !chained {
		t.Fatal("chained callback did not fire at its deadline")
	}
}

func TestFake_ResetAfterStopRegistersOnce(t *testing.T) {
	fake := Fake(epoch)
	timer := fake.AfterFunc(time.Second, func() {})
	timer.Stop()
	timer.Reset(time.Second)
	if got := fake.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d after Stop then Reset, want 1", got)
	}
}

func TestFake_Ticker(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)

	for range 3 {
		fake.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatal("ticker did not tick")
		}
	}

	ticker.Stop()
	fake.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker ticked")
	default:
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		fake.Sleep(time.Minute)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFake_NonPositiveDurations(t *testing.T) {
	fake := Fake(epoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not deliver immediately")
	}

	ran := false
	fake.AfterFunc(-time.Second, func() { ran = true })
	if !ran {
		t.Fatal("AfterFunc with negative duration did not run synchronously")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	fake.NewTicker(0)
}
