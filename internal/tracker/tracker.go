// Package tracker implements the reading-progress state machine. It consumes
// navigation and paging signals from the bus, maintains the per-book chapter
// estimate cache, and emits a normalized progress percentage. The surface
// itself exposes no reliable progress API, so everything here is inference:
// sparse signals are arbitrated by a three-tier priority window, paging is
// debounced, and chapter size estimates are rescaled whenever observed
// traversal contradicts them.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/clock"
	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
)

// State is the lifecycle phase of the tracker.
type State int

// Tracker states.
const (
	Uninitialized State = iota
	Initializing
	Tracking
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Tracking:
		return "tracking"
	default:
		return "uninitialized"
	}
}

// Priority ranks event significance for the suppression window.
type Priority int

// Priority tiers. Entering the surface outranks a chapter boundary, which
// outranks a single page turn.
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

const (
	// priorityWindow is the span after a processed event during which
	// lower-priority events are dropped. The window resets on every
	// processed event, not on every incoming one.
	priorityWindow = 100 * time.Millisecond
	// directionDebounce coalesces page-turn signals; the last direction
	// observed inside the window is the only one applied.
	directionDebounce = 500 * time.Millisecond
	// directionValidity bounds how long a confirmed direction can inform a
	// later chapter change.
	directionValidity = 10 * time.Second
	// titleRetryDelay and titleRetryLimit bound the re-anchor polling loop
	// after a table-of-contents jump.
	titleRetryDelay = 100 * time.Millisecond
	titleRetryLimit = 10
	// correctionThreshold is the relative deviation beyond which observed
	// traversal rescales every cached chapter estimate.
	correctionThreshold = 0.20
	// correctionCooldown suppresses a second correction fired hard on the
	// heels of another, which otherwise compounds during rapid
	// bidirectional boundary crossing.
	correctionCooldown = 2 * time.Second
)

// Internal event names published by the tracker for observability consumers.
const (
	EventDropped    = "tracker:event-dropped"
	EventCorrection = "tracker:correction-applied"
)

// Dropped is the payload of EventDropped.
type Dropped struct {
	Event string
}

// Correction is the payload of EventCorrection.
type Correction struct {
	BookID string
	Ratio  float64
}

// Config wires the tracker's collaborators.
type Config struct {
	Bus      *events.Bus
	Metadata reader.MetadataClient
	Titles   reader.TitleProvider
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Status is a read-only snapshot of tracker state for API consumers.
type Status struct {
	State        string
	BookID       string
	ChapterIndex int
	ChapterCount int
	TurningPages int
	Progress     int
}

// Tracker owns the chapter cache and progress state for the active book. All
// mutation happens under one mutex; timers fire callbacks that re-acquire it.
type Tracker struct {
	bus    *events.Bus
	meta   reader.MetadataClient
	titles reader.TitleProvider
	clk    clock.Clock
	logger *zap.Logger
	owner  string

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	bookID       string
	chapters     []reader.ChapterEntry
	chapterIndex int
	turningPages int
	progress     int
	initInFlight bool

	lastPriority Priority
	windowEnd    time.Time

	pendingDir   reader.Direction
	dirTimer     clock.Timer
	confirmedDir reader.Direction
	confirmedAt  time.Time

	titleTimer    clock.Timer
	titleAttempts int

	lastCorrection time.Time
}

// New constructs a Tracker. It does not subscribe to the bus until Start.
func New(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		bus:    cfg.Bus,
		meta:   cfg.Metadata,
		titles: cfg.Titles,
		clk:    cfg.Clock,
		logger: logger,
		owner:  "tracker-" + uuid.NewString(),
	}
}

// Start subscribes the tracker to its input events. The supplied context
// bounds the network calls made during initialization.
func (t *Tracker) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.bus.Subscribe(reader.EventRouteChanged, t.onRouteChanged, events.WithOwner(t.owner))
	t.bus.Subscribe(reader.EventChapterChanged, t.onChapterChanged, events.WithOwner(t.owner))
	t.bus.Subscribe(reader.EventPageTurn, t.onPageTurn, events.WithOwner(t.owner))
}

// Close tears the tracker down: pending timers are cancelled, bus
// registrations are released by owner tag, and in-flight fetches are
// abandoned.
func (t *Tracker) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	t.bus.UnsubscribeOwner(t.owner)
	t.mu.Lock()
	t.resetLocked()
	t.mu.Unlock()
}

// Status returns a snapshot of the current progress state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:        t.state.String(),
		BookID:       t.bookID,
		ChapterIndex: t.chapterIndex,
		ChapterCount: len(t.chapters),
		TurningPages: t.turningPages,
		Progress:     t.progress,
	}
}

// admit applies the priority window. Caller holds t.mu.
func (t *Tracker) admit(p Priority) bool {
	now := t.clk.Now()
	if now.Before(t.windowEnd) && p < t.lastPriority {
		return false
	}
	t.lastPriority = p
	t.windowEnd = now.Add(priorityWindow)
	return true
}

// validDirection returns the confirmed direction if it is still inside its
// validity window. Caller holds t.mu.
func (t *Tracker) validDirection() (reader.Direction, bool) {
	if !t.confirmedDir.Valid() {
		return "", false
	}
	if t.clk.Now().Sub(t.confirmedAt) > directionValidity {
		t.confirmedDir = ""
		return "", false
	}
	return t.confirmedDir, true
}

// stopTimersLocked cancels all pending delayed callbacks. Caller holds t.mu.
func (t *Tracker) stopTimersLocked() {
	if t.dirTimer != nil {
		t.dirTimer.Stop()
		t.dirTimer = nil
	}
	if t.titleTimer != nil {
		t.titleTimer.Stop()
		t.titleTimer = nil
	}
	t.pendingDir = ""
	t.confirmedDir = ""
}

// currentEntry returns the cached entry for the active chapter. Caller holds
// t.mu.
func (t *Tracker) currentEntry() (reader.ChapterEntry, bool) {
	if t.chapterIndex < 0 || t.chapterIndex >= len(t.chapters) {
		return reader.ChapterEntry{}, false
	}
	return t.chapters[t.chapterIndex], true
}

type emission struct {
	name    string
	payload any
}

// publishAll delivers queued emissions after t.mu has been released, so bus
// listeners can call back into the tracker without deadlocking.
func (t *Tracker) publishAll(out []emission) {
	for _, e := range out {
		t.bus.Publish(e.name, e.payload)
	}
}

func (t *Tracker) progressEmission() emission {
	return emission{
		name: reader.EventProgressUpdated,
		payload: reader.ProgressUpdated{
			BookID:       t.bookID,
			ChapterIndex: t.chapterIndex,
			Progress:     t.progress,
		},
	}
}
