// Package browser bridges a Chrome instance to the event bus. It watches
// page navigations over the DevTools protocol, classifies them against the
// site table, and publishes route and chapter events. It also serves as the
// document title source for the tracker's re-anchoring fallback.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
	"github.com/JakeFAU/readerglass/internal/sites"
)

// Config controls the browser attachment.
type Config struct {
	// RemoteURL is the DevTools endpoint of a running browser. Empty
	// launches a local headless instance instead.
	RemoteURL string
	UserAgent string
	// NavigationTimeout bounds explicit Navigate calls.
	NavigationTimeout time.Duration

	Bus    *events.Bus
	Sites  []sites.Site
	Logger *zap.Logger
}

// Watcher owns the browser contexts and the navigation listener. It
// implements reader.TitleProvider.
type Watcher struct {
	cfg    Config
	bus    *events.Bus
	table  []sites.Site
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu          sync.Mutex
	lastBookID  string
	lastChapter string
	lastReader  bool
}

// New constructs a Watcher. The browser is not touched until Start.
func New(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	table := cfg.Sites
	if len(table) == 0 {
		table = sites.DefaultTable()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		bus:    cfg.Bus,
		table:  table,
		logger: logger,
	}
}

// Start attaches to the browser and begins forwarding navigations onto the
// bus. ctx bounds the attachment; cancelling it tears the contexts down.
func (w *Watcher) Start(ctx context.Context) error {
	var allocCtx context.Context
	if w.cfg.RemoteURL != "" {
		allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(ctx, w.cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
		)
		if w.cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(w.cfg.UserAgent))
		}
		allocCtx, w.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	w.browserCtx, w.browserCancel = chromedp.NewContext(allocCtx)

	if err := chromedp.Run(w.browserCtx, page.Enable()); err != nil {
		w.Close()
		return fmt.Errorf("chromedp attach: %w", err)
	}

	chromedp.ListenTarget(w.browserCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			// Only the top-level frame carries the surface URL.
			if e.Frame != nil && e.Frame.ParentID == "" {
				w.HandleNavigation(e.Frame.URL)
			}
		case *page.EventNavigatedWithinDocument:
			// Chapter transitions on the reading surface are history API
			// pushes, not full navigations.
			w.HandleNavigation(e.URL)
		}
	})
	return nil
}

// Close tears down the browser contexts.
func (w *Watcher) Close() {
	if w.browserCancel != nil {
		w.browserCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}
}

// Navigate drives the attached browser to rawURL. Used on startup to land on
// the surface's home page.
func (w *Watcher) Navigate(ctx context.Context, rawURL string) error {
	navCtx, cancel := context.WithTimeout(w.browserCtx, w.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

// DocumentTitle returns the current page title.
func (w *Watcher) DocumentTitle(ctx context.Context) (string, error) {
	titleCtx, cancel := context.WithTimeout(w.browserCtx, w.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var title string
	if err := chromedp.Run(titleCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read document title: %w", err)
	}
	return title, nil
}

// HandleNavigation classifies one observed URL and publishes the resulting
// events. Exported for the DevTools listener and for direct injection of
// synthetic navigations.
func (w *Watcher) HandleNavigation(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		w.logger.Debug("unparseable navigation", zap.String("url", rawURL))
		return
	}
	site, isReader, bookID := sites.Classify(w.table, rawURL)

	var chapter string
	if site != nil && isReader {
		chapter = site.ChapterKey(u.Path)
	}

	w.mu.Lock()
	sameBook := isReader && w.lastReader && bookID != "" && bookID == w.lastBookID
	chapterMoved := sameBook && chapter != w.lastChapter
	w.lastReader = isReader
	w.lastBookID = bookID
	w.lastChapter = chapter
	w.mu.Unlock()

	if w.bus == nil {
		return
	}
	if chapterMoved {
		// Same book, different chapter key: a boundary crossing, not a
		// surface change.
		w.bus.Publish(reader.EventChapterChanged, reader.ChapterChanged{
			URL:      rawURL,
			Pathname: u.Path,
		})
		return
	}
	w.bus.Publish(reader.EventRouteChanged, reader.RouteChanged{
		IsReader: isReader,
		URL:      rawURL,
		Pathname: u.Path,
		BookID:   bookID,
	})
}

// forwardCancel propagates cancellation from an outer context into a
// chromedp task context.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
