// Package clocktest provides a manually advanced clock for driving debounce
// and retry windows deterministically in tests.
package clocktest

import (
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/readerglass/internal/clock"
)

// Clock implements clock.Clock with a frozen current time that only moves
// when Advance is called. Callbacks scheduled via AfterFunc fire during
// Advance, in deadline order, on the calling goroutine.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

// New creates a Clock frozen at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the frozen current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run once the clock has been advanced by at
// least d.
func (c *Clock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{c: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due callbacks in deadline
// order. Callbacks run without the clock lock held, so they may schedule
// further timers; a chained timer also fires if it falls within d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		t := c.nextDueLocked(target)
		if t == nil {
			break
		}
		c.now = t.at
		t.fired = true
		c.mu.Unlock()
		t.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *Clock) nextDueLocked(target time.Time) *timer {
	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].at.Before(c.timers[j].at)
	})
	for _, t := range c.timers {
		if t.fired || t.stopped {
			continue
		}
		if !t.at.After(target) {
			return t
		}
	}
	return nil
}

type timer struct {
	c       *Clock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

// Stop cancels the timer and reports whether it had not yet fired.
func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
