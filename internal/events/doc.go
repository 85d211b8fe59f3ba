// Package events implements the in-process event bus that fans browser
// signals out to the progress tracker, metrics, and UI consumers. Dispatch is
// synchronous and ordered; each event name retains a short replay history so
// consumers started after the fact can still pick up the current state.
// Registrations can be torn down individually, by owner tag, or through a
// cancellation context.
package events
