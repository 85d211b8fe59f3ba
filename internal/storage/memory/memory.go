// Package memory provides an in-memory storage.Provider used in tests and as
// the default backend when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/readerglass/internal/reader"
)

// Store keeps chapter tables and positions in process memory. Safe for
// concurrent use.
type Store struct {
	mu        sync.RWMutex
	chapters  map[string][]reader.ChapterMeta
	positions map[string]reader.Position
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		chapters:  make(map[string][]reader.ChapterMeta),
		positions: make(map[string]reader.Position),
	}
}

// ChapterTable returns the stored chapter metadata for a book, or
// reader.ErrNotFound when the book is unknown.
func (s *Store) ChapterTable(_ context.Context, bookID string) ([]reader.ChapterMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas, ok := s.chapters[bookID]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", bookID, reader.ErrNotFound)
	}
	out := make([]reader.ChapterMeta, len(metas))
	copy(out, metas)
	return out, nil
}

// Position returns the stored reading position, or the zero Position for a
// book never opened.
func (s *Store) Position(_ context.Context, bookID string) (reader.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[bookID], nil
}

// SaveChapterTable replaces the stored chapter metadata for a book.
func (s *Store) SaveChapterTable(_ context.Context, bookID string, chapters []reader.ChapterMeta) error {
	cp := make([]reader.ChapterMeta, len(chapters))
	copy(cp, chapters)
	s.mu.Lock()
	s.chapters[bookID] = cp
	s.mu.Unlock()
	return nil
}

// SavePosition checkpoints the reading position for a book.
func (s *Store) SavePosition(_ context.Context, bookID string, pos reader.Position) error {
	s.mu.Lock()
	s.positions[bookID] = pos
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}
