// Package settings implements the shared settings store. Multiple open views
// mutate the same flat record concurrently; arbitration is the optimistic
// version rule and nothing else. Externally edited snapshots arrive through
// ApplyExternal and are accepted only when not older than local state; a
// stale snapshot is dropped silently. Accepted external updates are announced
// on the bus so other consumers re-pull.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/oplock"
	"github.com/JakeFAU/readerglass/internal/reader"
)

// VersionKey is the reserved field carrying the optimistic version inside the
// snapshot itself, making every snapshot self-describing.
const VersionKey = "_version"

// allowedKeys whitelists top-level fields. Anything else is a legacy key and
// is stripped on every write to prevent data pollution. The store never
// inspects the semantics of global or sites.
var allowedKeys = map[string]bool{
	VersionKey: true,
	"global":   true,
	"sites":    true,
}

// Snapshot is one flat settings record. Merging is shallow: nested values are
// replaced wholesale, never merged.
type Snapshot map[string]any

// Config wires the store.
type Config struct {
	// Path is the JSON file backing the store. Empty disables persistence.
	Path   string
	Bus    *events.Bus
	Logger *zap.Logger
}

// Store wraps the settings record in an optimistic lock and handles
// persistence plus change announcements. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	lock   *oplock.Versioned[Snapshot]
	bus    *events.Bus
	path   string
	logger *zap.Logger
}

// NewStore constructs a Store holding an empty record at version 0.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		lock:   oplock.New(Snapshot{VersionKey: uint64(0)}),
		bus:    cfg.Bus,
		path:   cfg.Path,
		logger: logger,
	}
}

// Load initializes the store from the backing file. This is the one trusted
// path that may overwrite state unconditionally; it must not be used for
// steady-state reconciliation. A missing file leaves the empty record.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	var data Snapshot
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	version := versionOf(data)
	clean := filterAllowed(data)
	clean[VersionKey] = version

	s.mu.Lock()
	s.lock.ForceSet(clean, version)
	s.mu.Unlock()
	s.logger.Info("settings loaded",
		zap.String("path", s.path),
		zap.Uint64("version", version))
	return nil
}

// Snapshot returns a copy of the current record including VersionKey.
func (s *Store) Snapshot() (Snapshot, uint64) {
	snap := s.lock.Snapshot()
	return cloneTop(snap.Data), snap.Version
}

// Version returns the current local version.
func (s *Store) Version() uint64 {
	return s.lock.Version()
}

// IsStale reports whether the local record is behind a remote version.
func (s *Store) IsStale(remote uint64) bool {
	return s.lock.IsStale(remote)
}

// Mutate applies a partial update on top of the current record: allowed keys
// from partial replace existing values (shallow), legacy keys are stripped,
// and the version advances by exactly one. Local mutation always succeeds.
func (s *Store) Mutate(partial Snapshot) (Snapshot, uint64) {
	s.mu.Lock()
	next := s.lock.Version() + 1
	stamped := s.lock.Mutate(func(d *Snapshot) {
		merged := filterAllowed(*d)
		for k, v := range partial {
			if allowedKeys[k] && k != VersionKey {
				merged[k] = v
			}
		}
		merged[VersionKey] = next
		*d = merged
	})
	s.persistLocked(stamped.Data)
	s.mu.Unlock()
	return cloneTop(stamped.Data), stamped.Version
}

// ApplyExternal reconciles a snapshot pushed from another view. It accepts
// iff remoteVersion is not older than the local version (ties are accepted,
// idempotent re-application is expected) and reports the outcome. Accepted
// snapshots are persisted and announced via the settings-updated event;
// rejected ones leave local state untouched.
func (s *Store) ApplyExternal(data Snapshot, remoteVersion uint64) bool {
	clean := filterAllowed(data)
	clean[VersionKey] = remoteVersion

	s.mu.Lock()
	if !s.lock.AcceptExternal(clean, remoteVersion) {
		s.mu.Unlock()
		s.logger.Debug("dropping stale settings snapshot",
			zap.Uint64("remote_version", remoteVersion),
			zap.Uint64("local_version", s.lock.Version()))
		return false
	}
	s.persistLocked(clean)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(reader.EventSettingsUpdated, reader.SettingsUpdated{Version: remoteVersion})
	}
	return true
}

// persistLocked writes the record to disk. Persistence failures are logged,
// not surfaced: the in-memory record is authoritative for open views.
func (s *Store) persistLocked(data Snapshot) {
	if s.path == "" {
		return
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Warn("encode settings failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn("create settings dir failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		s.logger.Warn("write settings failed", zap.Error(err))
	}
}

func filterAllowed(data Snapshot) Snapshot {
	clean := Snapshot{}
	for k, v := range data {
		if allowedKeys[k] {
			clean[k] = v
		}
	}
	return clean
}

func cloneTop(data Snapshot) Snapshot {
	out := make(Snapshot, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func versionOf(data Snapshot) uint64 {
	switch v := data[VersionKey].(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case uint64:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return uint64(v)
	default:
		return 0
	}
}
