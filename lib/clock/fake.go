// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Time only moves when Advance
// is called. Safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance or Sleep on the same clock.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingEvent
	changed *sync.Cond
}

// pendingEvent is one registered After, Sleep, AfterFunc, or ticker.
type pendingEvent struct {
	at time.Time

	// deliver is set for After, Sleep and tickers.
	deliver chan time.Time

	// run is set for AfterFunc.
	run func()

	// period is non-zero for tickers, which are rescheduled instead of
	// retired after firing.
	period time.Duration

	// done is set once a one-shot event fired or any event was stopped.
	done bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced by
// d. A non-positive d delivers immediately and registers nothing.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.registerLocked(&pendingEvent{at: c.now.Add(d), deliver: channel})
	return channel
}

// Sleep blocks until the clock has advanced by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// AfterFunc registers f to run inside the Advance call that crosses
// now+d. A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	c.mu.Lock()
	event := &pendingEvent{at: c.now.Add(d), run: f}
	c.registerLocked(event)
	c.mu.Unlock()

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if event.done {
				return false
			}
			event.done = true
			return true
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := !event.done
			event.at = c.now.Add(d)
			if !wasPending {
				event.done = false
				if !slices.Contains(c.pending, event) {
					c.registerLocked(event)
				}
			}
			return wasPending
		},
	}
}

// NewTicker registers a periodic event. Panics when d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker with non-positive period")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	event := &pendingEvent{at: c.now.Add(d), deliver: channel, period: d}
	c.registerLocked(event)

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			event.done = true
		},
	}
}

// Advance moves the clock forward by d, firing everything that comes
// due on the way, earliest first. Before each event fires the clock
// reads that event's deadline, so an event a callback registers lands
// relative to the callback's time and fires within the same Advance
// when it falls before the target.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		event, firedAt, ok := c.takeNext(target)
		if !ok {
			return
		}
		if event.run != nil {
			event.run()
			continue
		}
		select {
		case event.deliver <- firedAt:
		default:
		}
	}
}

// takeNext finds the earliest live event due at or before target,
// moves the clock to its deadline, and retires it or reschedules it by
// one period. Ties go to the event registered first. With nothing due
// the clock moves to target and ok is false.
func (c *FakeClock) takeNext(target time.Time) (event *pendingEvent, firedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = slices.DeleteFunc(c.pending, func(candidate *pendingEvent) bool { return candidate.done })
	for _, candidate := range c.pending {
		if candidate.at.After(target) {
			continue
		}
		if event == nil || candidate.at.Before(event.at) {
			event = candidate
		}
	}
	if event == nil {
		if target.After(c.now) {
			c.now = target
		}
		return nil, time.Time{}, false
	}

	if event.at.After(c.now) {
		c.now = event.at
	}
	firedAt = c.now
	if event.period > 0 {
		event.at = event.at.Add(event.period)
	} else {
		event.done = true
	}
	return event, firedAt, true
}

// WaitForTimers blocks until at least n events are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of events that have neither fired
// nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) registerLocked(event *pendingEvent) {
	c.pending = append(c.pending, event)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, event := range c.pending {
		if !event.done {
			count++
		}
	}
	return count
}
