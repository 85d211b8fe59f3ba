// Package system provides a real clock implementation.
package system

import (
	"time"

	"github.com/JakeFAU/readerglass/internal/clock"
)

// Clock implements clock.Clock using the time package.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc schedules fn on the runtime timer heap.
func (Clock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return time.AfterFunc(d, fn)
}
