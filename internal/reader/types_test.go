package reader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewChapterEntryEstimates checks the offset and page derivations.
func TestNewChapterEntryEstimates(t *testing.T) {
	t.Parallel()

	entry := NewChapterEntry(ChapterMeta{Index: 2, Title: "第三章", WordCount: 4000})
	require.InDelta(t, 7000.0, entry.EstimatedMaxOffset, 1e-9) // 4000*1.5 + 1000
	require.Equal(t, 8, entry.EstimatedMaxPages)               // floor(7000/800)
}

// TestNewChapterEntryEmptyChapter verifies the base offset keeps empty
// chapters at a small but nonzero page estimate.
func TestNewChapterEntryEmptyChapter(t *testing.T) {
	t.Parallel()

	entry := NewChapterEntry(ChapterMeta{Index: 0, Title: "序", WordCount: 0})
	require.InDelta(t, 1000.0, entry.EstimatedMaxOffset, 1e-9)
	require.Equal(t, 1, entry.EstimatedMaxPages)
}

// TestBuildChapterTablePreservesOrder verifies fetch order is kept.
func TestBuildChapterTablePreservesOrder(t *testing.T) {
	t.Parallel()

	table := BuildChapterTable([]ChapterMeta{
		{Index: 0, Title: "a", WordCount: 100},
		{Index: 1, Title: "b", WordCount: 200},
	})
	require.Len(t, table, 2)
	require.Equal(t, "a", table[0].Title)
	require.Equal(t, "b", table[1].Title)
}

// TestDirectionValid covers the direction whitelist.
func TestDirectionValid(t *testing.T) {
	t.Parallel()

	require.True(t, Forward.Valid())
	require.True(t, Backward.Valid())
	require.False(t, Direction("sideways").Valid())
	require.False(t, Direction("").Valid())
}
