// Package postgres provides the Postgres-backed storage.Provider.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/readerglass/internal/reader"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxIface is the slice of pgxpool.Pool the store uses; pgxmock satisfies it.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists chapter metadata and reading positions in Postgres.
// It assumes the following schema:
//
//	CREATE TABLE book_chapters (
//	    book_id    TEXT NOT NULL,
//	    idx        INT NOT NULL,
//	    title      TEXT NOT NULL,
//	    word_count INT NOT NULL,
//	    PRIMARY KEY (book_id, idx)
//	);
//
//	CREATE TABLE reading_positions (
//	    book_id        TEXT PRIMARY KEY,
//	    chapter_index  INT NOT NULL,
//	    chapter_offset DOUBLE PRECISION NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	pool pgxIface
}

// New creates a Store backed by a fresh connection pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxIface) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ChapterTable returns the ordered chapter metadata for a book, or
// reader.ErrNotFound when the book has no stored chapters.
func (s *Store) ChapterTable(ctx context.Context, bookID string) ([]reader.ChapterMeta, error) {
	query := `
		SELECT idx, title, word_count
		FROM book_chapters
		WHERE book_id = $1
		ORDER BY idx
	`
	rows, err := s.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("query chapter table: %w", err)
	}
	defer rows.Close()

	var metas []reader.ChapterMeta
	for rows.Next() {
		var m reader.ChapterMeta
		if err := rows.Scan(&m.Index, &m.Title, &m.WordCount); err != nil {
			return nil, fmt.Errorf("scan chapter row: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chapter rows: %w", err)
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("book %s: %w", bookID, reader.ErrNotFound)
	}
	return metas, nil
}

// Position returns the last known reading position for a book. A book without
// a stored position starts at the beginning.
func (s *Store) Position(ctx context.Context, bookID string) (reader.Position, error) {
	query := `
		SELECT chapter_index, chapter_offset
		FROM reading_positions
		WHERE book_id = $1
	`
	var pos reader.Position
	err := s.pool.QueryRow(ctx, query, bookID).Scan(&pos.ChapterIndex, &pos.ChapterOffset)
	if errors.Is(err, pgx.ErrNoRows) {
		return reader.Position{}, nil
	}
	if err != nil {
		return reader.Position{}, fmt.Errorf("query position: %w", err)
	}
	return pos, nil
}

// SaveChapterTable replaces the stored chapter metadata for a book.
func (s *Store) SaveChapterTable(ctx context.Context, bookID string, chapters []reader.ChapterMeta) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM book_chapters WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("clear chapter table: %w", err)
	}
	query := `
		INSERT INTO book_chapters (book_id, idx, title, word_count)
		VALUES ($1, $2, $3, $4)
	`
	for _, ch := range chapters {
		if _, err := s.pool.Exec(ctx, query, bookID, ch.Index, ch.Title, ch.WordCount); err != nil {
			return fmt.Errorf("insert chapter %d: %w", ch.Index, err)
		}
	}
	return nil
}

// SavePosition checkpoints the reading position for a book.
func (s *Store) SavePosition(ctx context.Context, bookID string, pos reader.Position) error {
	query := `
		INSERT INTO reading_positions (book_id, chapter_index, chapter_offset, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (book_id) DO UPDATE
		SET chapter_index = EXCLUDED.chapter_index,
		    chapter_offset = EXCLUDED.chapter_offset,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, query, bookID, pos.ChapterIndex, pos.ChapterOffset); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}
