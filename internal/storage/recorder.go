package storage

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
)

// Recorder checkpoints reading positions as progress updates flow over the
// bus, so the next entry into a book resumes where the last session left off.
// It converts the published percentage back into an offset using the same
// chapter size estimates the tracker derives its percentage from.
type Recorder struct {
	provider Provider
	bus      *events.Bus
	logger   *zap.Logger
	owner    string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tables map[string][]reader.ChapterEntry
}

// NewRecorder constructs a Recorder. It does not subscribe until Start.
func NewRecorder(provider Provider, bus *events.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		provider: provider,
		bus:      bus,
		logger:   logger,
		owner:    "recorder-" + uuid.NewString(),
		tables:   make(map[string][]reader.ChapterEntry),
	}
}

// Start subscribes the recorder to progress updates. ctx bounds the write
// calls made while persisting checkpoints.
func (r *Recorder) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.bus.Subscribe(reader.EventProgressUpdated, r.onProgress, events.WithOwner(r.owner))
}

// Close removes the bus subscriptions and stops in-flight writes.
func (r *Recorder) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.bus.UnsubscribeOwner(r.owner)
}

func (r *Recorder) onProgress(evt events.Event) {
	payload, ok := evt.Payload.(reader.ProgressUpdated)
	if !ok || payload.BookID == "" {
		return
	}

	table, err := r.tableFor(payload.BookID)
	if err != nil {
		r.logger.Debug("skipping checkpoint, no chapter table",
			zap.String("book_id", payload.BookID), zap.Error(err))
		return
	}
	if payload.ChapterIndex < 0 || payload.ChapterIndex >= len(table) {
		return
	}
	entry := table[payload.ChapterIndex]

	// Progress can transiently leave [0, 100] while backing out of a
	// chapter; clamp before converting so the stored offset stays inside
	// the chapter.
	pct := math.Min(math.Max(float64(payload.Progress), 0), 100)
	pos := reader.Position{
		ChapterIndex:  payload.ChapterIndex,
		ChapterOffset: entry.EstimatedMaxOffset * pct / 100,
	}
	if err := r.provider.SavePosition(r.ctx, payload.BookID, pos); err != nil {
		r.logger.Warn("checkpoint write failed",
			zap.String("book_id", payload.BookID), zap.Error(err))
	}
}

// tableFor returns the cached size estimates for a book, fetching the chapter
// metadata once per process lifetime.
func (r *Recorder) tableFor(bookID string) ([]reader.ChapterEntry, error) {
	r.mu.Lock()
	table, ok := r.tables[bookID]
	r.mu.Unlock()
	if ok {
		return table, nil
	}

	metas, err := r.provider.ChapterTable(r.ctx, bookID)
	if err != nil {
		return nil, err
	}
	table = reader.BuildChapterTable(metas)

	r.mu.Lock()
	r.tables[bookID] = table
	r.mu.Unlock()
	return table, nil
}
