// Package reader defines the shared domain types for the reading surface:
// chapter size estimates, reading positions, the typed event payloads carried
// on the bus, and the collaborator contracts for metadata lookups.
package reader

import (
	"context"
	"errors"
	"math"
)

// ErrNotFound signals that the requested book or position does not exist.
var ErrNotFound = errors.New("reader: not found")

// Direction is the orientation of a page turn.
type Direction string

// Page turn directions.
const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// ChapterMeta is one row of the bulk chapter metadata fetch.
type ChapterMeta struct {
	Index     int
	Title     string
	WordCount int
}

// Position is the last known reading position within a book.
type Position struct {
	ChapterIndex  int
	ChapterOffset float64
}

// Estimation constants translating word counts into scroll offsets and page
// counts. These are deliberately rough: the correction algorithm in the
// tracker rescales per-book when observed traversal deviates from them.
const (
	offsetPerWord  = 1.5
	offsetBase     = 1000.0
	offsetPerPage  = 800.0
	minCorrectable = 6
)

// MinCorrectablePages is the smallest chapter estimate for which the
// correction algorithm considers the traversal signal meaningful.
const MinCorrectablePages = minCorrectable

// ChapterEntry is the cached per-chapter size estimate. EstimatedMaxOffset
// and EstimatedMaxPages are estimates derived from the word count, not ground
// truth; EstimatedMaxPages is mutated in place by the tracker's scale
// correction.
type ChapterEntry struct {
	Index              int
	Title              string
	WordCount          int
	EstimatedMaxOffset float64
	EstimatedMaxPages  int
}

// NewChapterEntry derives the size estimates for one chapter.
func NewChapterEntry(meta ChapterMeta) ChapterEntry {
	offset := float64(meta.WordCount)*offsetPerWord + offsetBase
	return ChapterEntry{
		Index:              meta.Index,
		Title:              meta.Title,
		WordCount:          meta.WordCount,
		EstimatedMaxOffset: offset,
		EstimatedMaxPages:  int(math.Floor(offset / offsetPerPage)),
	}
}

// BuildChapterTable derives entries for a whole book in fetch order.
func BuildChapterTable(metas []ChapterMeta) []ChapterEntry {
	entries := make([]ChapterEntry, 0, len(metas))
	for _, m := range metas {
		entries = append(entries, NewChapterEntry(m))
	}
	return entries
}

// MetadataClient is the collaborator contract for the two network calls the
// tracker performs on book entry. Both are fire-once per book entry; the
// tracker never polls.
type MetadataClient interface {
	// ChapterTable returns the ordered chapter metadata for a book.
	ChapterTable(ctx context.Context, bookID string) ([]ChapterMeta, error)
	// Position returns the last known reading position for a book.
	Position(ctx context.Context, bookID string) (Position, error)
}

// TitleProvider exposes the current document title of the surface. The
// tracker polls it while re-anchoring after a table-of-contents jump.
type TitleProvider interface {
	DocumentTitle(ctx context.Context) (string, error)
}
