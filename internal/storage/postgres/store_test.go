package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readerglass/internal/reader"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestChapterTableReturnsOrderedRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT idx, title, word_count").
		WithArgs("book-1").
		WillReturnRows(pgxmock.NewRows([]string{"idx", "title", "word_count"}).
			AddRow(0, "第一章", 4000).
			AddRow(1, "第二章", 5200))

	metas, err := store.ChapterTable(context.Background(), "book-1")
	require.NoError(t, err)
	require.Equal(t, []reader.ChapterMeta{
		{Index: 0, Title: "第一章", WordCount: 4000},
		{Index: 1, Title: "第二章", WordCount: 5200},
	}, metas)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChapterTableUnknownBook(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT idx, title, word_count").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"idx", "title", "word_count"}))

	_, err := store.ChapterTable(context.Background(), "missing")
	require.ErrorIs(t, err, reader.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionReturnsStoredRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT chapter_index, chapter_offset").
		WithArgs("book-1").
		WillReturnRows(pgxmock.NewRows([]string{"chapter_index", "chapter_offset"}).
			AddRow(3, 3500.0))

	pos, err := store.Position(context.Background(), "book-1")
	require.NoError(t, err)
	require.Equal(t, reader.Position{ChapterIndex: 3, ChapterOffset: 3500.0}, pos)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionMissingRowStartsAtBeginning(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT chapter_index, chapter_offset").
		WithArgs("fresh").
		WillReturnRows(pgxmock.NewRows([]string{"chapter_index", "chapter_offset"}))

	pos, err := store.Position(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, reader.Position{}, pos)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePositionUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO reading_positions").
		WithArgs("book-1", 2, 1600.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SavePosition(context.Background(), "book-1", reader.Position{
		ChapterIndex:  2,
		ChapterOffset: 1600.0,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveChapterTableReplacesRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM book_chapters").
		WithArgs("book-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO book_chapters").
		WithArgs("book-1", 0, "序章", 1200).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO book_chapters").
		WithArgs("book-1", 1, "第一章", 4000).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SaveChapterTable(context.Background(), "book-1", []reader.ChapterMeta{
		{Index: 0, Title: "序章", WordCount: 1200},
		{Index: 1, Title: "第一章", WordCount: 4000},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
