// Package oplock provides a version-stamped container implementing the
// optimistic concurrency rule used for shared mutable state. Local mutation
// always succeeds and bumps the version; externally supplied snapshots are
// accepted only when their version is not older than the local one. There is
// no merge and no queue: a rejected snapshot is dropped outright.
package oplock

import "sync"

// Snapshot pairs a copy of the wrapped record with the version that stamped
// it.
type Snapshot[T any] struct {
	Data    T
	Version uint64
}

// Versioned wraps an arbitrary record with a monotonically non-decreasing
// version number. It is safe for concurrent use. The zero value holds the
// zero T at version 0.
type Versioned[T any] struct {
	mu      sync.Mutex
	data    T
	version uint64
}

// New constructs a Versioned holding initial at version 0.
func New[T any](initial T) *Versioned[T] {
	return &Versioned[T]{data: initial}
}

// Mutate applies a local update and increments the version by exactly one.
// Local mutation never conflicts; conflicts only surface when reconciling an
// external snapshot via AcceptExternal.
func (v *Versioned[T]) Mutate(apply func(*T)) Snapshot[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	if apply != nil {
		apply(&v.data)
	}
	v.version++
	return Snapshot[T]{Data: v.data, Version: v.version}
}

// AcceptExternal replaces local state iff remote >= the local version. Ties
// are accepted: re-applying the same snapshot is legal and expected. It
// reports whether the snapshot was accepted; a rejected snapshot leaves local
// state untouched.
func (v *Versioned[T]) AcceptExternal(data T, remote uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if remote < v.version {
		return false
	}
	v.data = data
	v.version = remote
	return true
}

// IsStale reports whether local state is behind the remote version.
func (v *Versioned[T]) IsStale(remote uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return remote > v.version
}

// ForceSet overwrites state unconditionally. It is reserved for
// initialization from a trusted source such as the first load from durable
// storage, never for steady-state reconciliation.
func (v *Versioned[T]) ForceSet(data T, version uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data = data
	v.version = version
}

// Snapshot returns the current stamped state.
func (v *Versioned[T]) Snapshot() Snapshot[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot[T]{Data: v.data, Version: v.version}
}

// Version returns the current version.
func (v *Versioned[T]) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}
