// Package store persists library tracks and user preference documents in SQLite.
package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("already exists")

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS songs (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		artist       TEXT NOT NULL,
		artist_id    TEXT NOT NULL DEFAULT '',
		album        TEXT NOT NULL DEFAULT '',
		thumbnail    TEXT NOT NULL DEFAULT '',
		duration     INTEGER NOT NULL DEFAULT 0,
		preview_url  TEXT NOT NULL DEFAULT '',
		external_url TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL,
		external_id  TEXT NOT NULL DEFAULT '',
		genres       TEXT NOT NULL DEFAULT '[]',
		popularity   INTEGER NOT NULL DEFAULT 0,
		play_count   INTEGER NOT NULL DEFAULT 0,
		explicit     INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_songs_external ON songs(source, external_id) WHERE external_id != ''`,
	`CREATE INDEX IF NOT EXISTS idx_songs_rank ON songs(play_count DESC, popularity DESC)`,
	`CREATE TABLE IF NOT EXISTS song_genres (
		song_id TEXT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
		genre   TEXT NOT NULL,
		PRIMARY KEY (song_id, genre)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_song_genres_genre ON song_genres(genre)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		user_id    TEXT PRIMARY KEY,
		document   TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// Open opens (or creates) the database at path and applies the schema.
// path may be ":memory:".
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to apply schema")
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
