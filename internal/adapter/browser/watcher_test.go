package browser

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readerglass/internal/clock/clocktest"
	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
)

type navRecorder struct {
	mu     sync.Mutex
	routes []reader.RouteChanged
	chaps  []reader.ChapterChanged
}

func (r *navRecorder) attach(t *testing.T, bus *events.Bus) {
	t.Helper()
	bus.Subscribe(reader.EventRouteChanged, func(evt events.Event) {
		r.mu.Lock()
		r.routes = append(r.routes, evt.Payload.(reader.RouteChanged))
		r.mu.Unlock()
	})
	bus.Subscribe(reader.EventChapterChanged, func(evt events.Event) {
		r.mu.Lock()
		r.chaps = append(r.chaps, evt.Payload.(reader.ChapterChanged))
		r.mu.Unlock()
	})
}

func newWatcherFixture(t *testing.T) (*Watcher, *navRecorder) {
	t.Helper()
	bus := events.New(clocktest.New(time.Unix(1700000000, 0).UTC()), nil)
	rec := &navRecorder{}
	rec.attach(t, bus)
	return New(Config{Bus: bus}), rec
}

// TestReaderEntryPublishesRoute classifies a reader URL into a route change
// carrying the book id.
func TestReaderEntryPublishesRoute(t *testing.T) {
	t.Parallel()

	w, rec := newWatcherFixture(t)
	w.HandleNavigation("https://weread.qq.com/web/reader/ce032b305a9bc1ce0b0dd2a")

	require.Len(t, rec.routes, 1)
	require.True(t, rec.routes[0].IsReader)
	require.Equal(t, "ce032b305a9bc1ce0b0dd2a", rec.routes[0].BookID)
	require.Equal(t, "/web/reader/ce032b305a9bc1ce0b0dd2a", rec.routes[0].Pathname)
}

// TestChapterMoveWithinBook turns a same-book chapter key change into a
// chapter-changed event instead of a route change.
func TestChapterMoveWithinBook(t *testing.T) {
	t.Parallel()

	w, rec := newWatcherFixture(t)
	w.HandleNavigation("https://weread.qq.com/web/reader/abc123kdef456")
	w.HandleNavigation("https://weread.qq.com/web/reader/abc123kfed999")

	require.Len(t, rec.routes, 1, "only the entry is a route change")
	require.Len(t, rec.chaps, 1)
	require.Equal(t, "/web/reader/abc123kfed999", rec.chaps[0].Pathname)
}

// TestBookSwitchIsRouteChange re-enters tracking when the book id changes.
func TestBookSwitchIsRouteChange(t *testing.T) {
	t.Parallel()

	w, rec := newWatcherFixture(t)
	w.HandleNavigation("https://weread.qq.com/web/reader/abc123")
	w.HandleNavigation("https://weread.qq.com/web/reader/zzz999")

	require.Len(t, rec.routes, 2)
	require.Equal(t, "zzz999", rec.routes[1].BookID)
	require.Empty(t, rec.chaps)
}

// TestLeavingSurfacePublishesExit marks shelf and foreign URLs as non-reader.
func TestLeavingSurfacePublishesExit(t *testing.T) {
	t.Parallel()

	w, rec := newWatcherFixture(t)
	w.HandleNavigation("https://weread.qq.com/web/reader/abc123")
	w.HandleNavigation("https://weread.qq.com/web/shelf")
	w.HandleNavigation("https://example.com/")

	require.Len(t, rec.routes, 3)
	require.False(t, rec.routes[1].IsReader)
	require.Empty(t, rec.routes[1].BookID)
	require.False(t, rec.routes[2].IsReader)
}

// TestReturnToSameChapterIsRoute treats re-entry after an exit as a fresh
// route change even when the chapter key matches the last seen one.
func TestReturnToSameChapterIsRoute(t *testing.T) {
	t.Parallel()

	w, rec := newWatcherFixture(t)
	w.HandleNavigation("https://weread.qq.com/web/reader/abc123kdef456")
	w.HandleNavigation("https://weread.qq.com/web/shelf")
	w.HandleNavigation("https://weread.qq.com/web/reader/abc123kdef456")

	require.Len(t, rec.routes, 3)
	require.Empty(t, rec.chaps)
	require.True(t, rec.routes[2].IsReader)
}

// TestMalformedURLIgnored drops garbage without publishing.
func TestMalformedURLIgnored(t *testing.T) {
	t.Parallel()

	w, rec := newWatcherFixture(t)
	w.HandleNavigation("://not a url")

	require.Empty(t, rec.routes)
	require.Empty(t, rec.chaps)
}
