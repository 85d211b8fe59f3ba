// Package clock abstracts wall time and delayed callbacks so components that
// run debounce windows can be driven deterministically in tests.
package clock

import "time"

// Timer is a handle on a callback scheduled via AfterFunc.
type Timer interface {
	// Stop cancels the pending callback and reports whether the call
	// prevented it from firing.
	Stop() bool
}

// Clock provides the current time and cancellable delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}
