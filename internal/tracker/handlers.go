package tracker

import (
	"math"

	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
)

// onRouteChanged handles surface entry and exit (HIGH tier).
func (t *Tracker) onRouteChanged(evt events.Event) {
	payload, ok := evt.Payload.(reader.RouteChanged)
	if !ok {
		t.logger.Debug("ignoring malformed route-changed payload")
		return
	}

	t.mu.Lock()
	if !t.admit(PriorityHigh) {
		// HIGH always passes the window; kept for symmetry.
		t.mu.Unlock()
		return
	}
	if !payload.IsReader {
		t.resetLocked()
		t.mu.Unlock()
		return
	}
	if payload.BookID == "" {
		t.logger.Debug("reader route without book id", zap.String("url", payload.URL))
		t.mu.Unlock()
		return
	}
	if t.initInFlight && t.bookID == payload.BookID {
		// Re-entrant initialization for the same book: single in-flight
		// flag, not a queue.
		t.mu.Unlock()
		return
	}
	if t.state == Tracking && t.bookID == payload.BookID {
		t.mu.Unlock()
		return
	}
	t.state = Initializing
	t.bookID = payload.BookID
	t.initInFlight = true
	t.stopTimersLocked()
	t.mu.Unlock()

	go t.initialize(payload.BookID)
}

// initialize performs the two fire-once network calls for a book entry and
// seeds the progress state. Failures abort silently: the state machine drops
// back to Uninitialized and the next qualifying route-changed retries.
func (t *Tracker) initialize(bookID string) {
	metas, err := t.meta.ChapterTable(t.ctx, bookID)
	if err != nil {
		t.abortInit(bookID, "chapter table fetch failed", err)
		return
	}
	pos, err := t.meta.Position(t.ctx, bookID)
	if err != nil {
		t.abortInit(bookID, "position fetch failed", err)
		return
	}
	table := reader.BuildChapterTable(metas)

	var out []emission
	t.mu.Lock()
	if t.bookID != bookID {
		// Surface changed while the fetches were in flight.
		t.mu.Unlock()
		return
	}
	t.initInFlight = false
	if len(table) == 0 {
		t.logger.Warn("empty chapter table", zap.String("book_id", bookID))
		t.state = Uninitialized
		t.mu.Unlock()
		return
	}
	idx := pos.ChapterIndex
	if idx < 0 || idx >= len(table) {
		idx = 0
	}
	entry := table[idx]
	initial := int(math.Floor(pos.ChapterOffset / entry.EstimatedMaxOffset * 100))
	t.chapters = table
	t.chapterIndex = idx
	t.progress = initial
	t.turningPages = int(math.Floor(float64(entry.EstimatedMaxPages) * float64(initial) / 100))
	t.state = Tracking
	out = append(out, t.progressEmission())
	t.mu.Unlock()

	t.logger.Info("tracking started",
		zap.String("book_id", bookID),
		zap.Int("chapters", len(table)),
		zap.Int("chapter_index", idx),
		zap.Int("progress", initial))
	t.publishAll(out)
}

func (t *Tracker) abortInit(bookID, msg string, err error) {
	t.logger.Warn(msg, zap.String("book_id", bookID), zap.Error(err))
	t.mu.Lock()
	if t.bookID == bookID {
		t.initInFlight = false
		t.state = Uninitialized
	}
	t.mu.Unlock()
}

// onPageTurn handles directional paging signals (LOW tier). The direction is
// debounced: only the last one observed inside the window is applied.
func (t *Tracker) onPageTurn(evt events.Event) {
	payload, ok := evt.Payload.(reader.PageTurn)
	if !ok || !payload.Direction.Valid() {
		t.logger.Debug("ignoring malformed page-turn payload")
		return
	}

	t.mu.Lock()
	if t.state != Tracking {
		t.mu.Unlock()
		return
	}
	if !t.admit(PriorityLow) {
		t.mu.Unlock()
		t.bus.Publish(EventDropped, Dropped{Event: reader.EventPageTurn})
		return
	}
	t.pendingDir = payload.Direction
	if t.dirTimer != nil {
		t.dirTimer.Stop()
	}
	t.dirTimer = t.clk.AfterFunc(directionDebounce, t.applyPendingDirection)
	t.mu.Unlock()
}

// applyPendingDirection fires when the 500 ms direction window closes.
func (t *Tracker) applyPendingDirection() {
	var out []emission
	t.mu.Lock()
	dir := t.pendingDir
	t.pendingDir = ""
	t.dirTimer = nil
	if t.state != Tracking || !dir.Valid() {
		t.mu.Unlock()
		return
	}
	if dir == reader.Forward {
		t.turningPages++
	} else {
		t.turningPages--
	}
	if entry, ok := t.currentEntry(); ok && entry.EstimatedMaxPages > 0 {
		// Deliberately unclamped: progress below 0 or above 100 is a
		// valid transient state while backing out of a chapter.
		t.progress = int(math.Round(float64(t.turningPages) / float64(entry.EstimatedMaxPages) * 100))
	}
	// Retained so the next chapter change knows which way we left; cleared
	// only on consumption or after the validity window.
	t.confirmedDir = dir
	t.confirmedAt = t.clk.Now()
	out = append(out, t.progressEmission())
	t.mu.Unlock()
	t.publishAll(out)
}

// onChapterChanged handles chapter boundary crossings (MEDIUM tier).
func (t *Tracker) onChapterChanged(evt events.Event) {
	if _, ok := evt.Payload.(reader.ChapterChanged); !ok {
		t.logger.Debug("ignoring malformed chapter-changed payload")
		return
	}

	var out []emission
	t.mu.Lock()
	if t.state != Tracking {
		t.mu.Unlock()
		return
	}
	if !t.admit(PriorityMedium) {
		t.mu.Unlock()
		t.bus.Publish(EventDropped, Dropped{Event: reader.EventChapterChanged})
		return
	}
	if dir, ok := t.validDirection(); ok {
		out = t.directionalChapterChangeLocked(dir)
		t.confirmedDir = "" // consumed
		t.mu.Unlock()
		t.publishAll(out)
		return
	}
	// Table-of-contents jump: no recent direction, fall back to matching
	// the document title against cached chapter titles.
	t.beginTitleAnchorLocked()
	t.mu.Unlock()
}

// resetLocked returns the tracker to Uninitialized, discarding the per-book
// state. In-flight fetches notice the cleared book id and drop their results.
func (t *Tracker) resetLocked() {
	t.stopTimersLocked()
	t.state = Uninitialized
	t.bookID = ""
	t.chapters = nil
	t.chapterIndex = 0
	t.turningPages = 0
	t.progress = 0
	t.initInFlight = false
	t.titleAttempts = 0
}
