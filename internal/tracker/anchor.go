package tracker

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/reader"
)

// directionalChapterChangeLocked handles a boundary crossing with a known
// direction: correct the estimate of the chapter just left, shift the index,
// and re-seed turningPages. Entering backward means the position is the end
// of the new chapter. Caller holds t.mu.
func (t *Tracker) directionalChapterChangeLocked(dir reader.Direction) []emission {
	old, ok := t.currentEntry()
	if !ok {
		return nil
	}
	var out []emission
	if applied, ratio := t.maybeCorrectLocked(old, dir); applied {
		out = append(out, emission{
			name:    EventCorrection,
			payload: Correction{BookID: t.bookID, Ratio: ratio},
		})
	}

	if dir == reader.Forward {
		t.chapterIndex++
	} else {
		t.chapterIndex--
	}
	if t.chapterIndex < 0 {
		t.chapterIndex = 0
	}
	if t.chapterIndex >= len(t.chapters) {
		t.chapterIndex = len(t.chapters) - 1
	}

	entry, _ := t.currentEntry()
	if dir == reader.Forward {
		t.turningPages = 0
	} else {
		t.turningPages = entry.EstimatedMaxPages
	}
	if entry.EstimatedMaxPages > 0 {
		t.progress = int(math.Round(float64(t.turningPages) / float64(entry.EstimatedMaxPages) * 100))
	} else {
		t.progress = 0
	}
	return append(out, t.progressEmission())
}

// maybeCorrectLocked runs the self-calibrating page-count correction against
// the chapter just left. When the observed traversal deviates more than 20%
// from the estimate, every cached chapter is rescaled proportionally: the
// working assumption is that the page-per-word constant is systematically
// biased for this book, not that individual chapters vary independently.
// Caller holds t.mu.
func (t *Tracker) maybeCorrectLocked(old reader.ChapterEntry, dir reader.Direction) (bool, float64) {
	estimated := old.EstimatedMaxPages
	if estimated < reader.MinCorrectablePages {
		// Too few pages for a statistically meaningful signal.
		return false, 0
	}
	actual := t.turningPages
	if dir == reader.Backward {
		// Backward turningPages may be negative; overshooting past the
		// chapter start implies the chapter was longer than estimated.
		actual = estimated - t.turningPages
	}
	deviation := math.Abs(float64(actual-estimated)) / float64(estimated)
	if deviation <= correctionThreshold {
		return false, 0
	}
	now := t.clk.Now()
	if !t.lastCorrection.IsZero() && now.Sub(t.lastCorrection) < correctionCooldown {
		t.logger.Debug("suppressing correction inside cooldown",
			zap.Float64("deviation", deviation))
		return false, 0
	}
	ratio := float64(actual) / float64(estimated)
	for i := range t.chapters {
		t.chapters[i].EstimatedMaxPages = int(math.Round(float64(t.chapters[i].EstimatedMaxPages) * ratio))
	}
	t.lastCorrection = now
	t.logger.Info("chapter estimates rescaled",
		zap.String("book_id", t.bookID),
		zap.Int("estimated", estimated),
		zap.Int("actual", actual),
		zap.Float64("ratio", ratio))
	return true, ratio
}

// beginTitleAnchorLocked starts the bounded title-match polling used after a
// table-of-contents jump. Caller holds t.mu.
func (t *Tracker) beginTitleAnchorLocked() {
	if t.titles == nil {
		t.logger.Debug("no title provider, chapter change left unanchored")
		return
	}
	t.titleAttempts = 0
	if t.titleTimer != nil {
		t.titleTimer.Stop()
		t.titleTimer = nil
	}
	go t.attemptTitleAnchor()
}

// attemptTitleAnchor matches the current document title against the cached
// chapter titles (substring, first match wins). On failure it retries up to
// titleRetryLimit times, 100 ms apart, then gives up silently: state remains
// unanchored until the next successful signal.
func (t *Tracker) attemptTitleAnchor() {
	title, err := t.titles.DocumentTitle(t.ctx)

	var out []emission
	t.mu.Lock()
	if t.state != Tracking {
		t.mu.Unlock()
		return
	}
	if err == nil && title != "" {
		for i, ch := range t.chapters {
			if ch.Title == "" || !strings.Contains(title, ch.Title) {
				continue
			}
			t.chapterIndex = i
			t.turningPages = 0
			t.progress = 0
			t.titleAttempts = 0
			t.titleTimer = nil
			out = append(out, t.progressEmission())
			t.mu.Unlock()
			t.publishAll(out)
			return
		}
	}
	t.titleAttempts++
	if t.titleAttempts < titleRetryLimit {
		t.titleTimer = t.clk.AfterFunc(titleRetryDelay, t.attemptTitleAnchor)
	} else {
		t.logger.Debug("title anchor gave up",
			zap.String("book_id", t.bookID),
			zap.Int("attempts", t.titleAttempts),
			zap.Error(err))
		t.titleAttempts = 0
		t.titleTimer = nil
	}
	t.mu.Unlock()
}
