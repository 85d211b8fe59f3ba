// Package storage declares the persistence contract for book metadata and
// reading positions, with Postgres and in-memory implementations in
// subpackages.
package storage

import (
	"context"

	"github.com/JakeFAU/readerglass/internal/reader"
)

// Provider is the persistence surface the rest of the system depends on. It
// extends the tracker's read-only metadata contract with the write paths used
// to sync chapter tables and checkpoint positions.
//
// Position returns the zero Position for a book that was never opened; a
// missing row is a fresh start, not an error. ChapterTable returns
// reader.ErrNotFound for an unknown book.
type Provider interface {
	reader.MetadataClient

	// SaveChapterTable replaces the stored chapter metadata for a book.
	SaveChapterTable(ctx context.Context, bookID string, chapters []reader.ChapterMeta) error
	// SavePosition checkpoints the last known reading position for a book.
	SavePosition(ctx context.Context, bookID string, pos reader.Position) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close()
}
