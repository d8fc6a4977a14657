package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"github.com/osa030/19dig/internal/domain/track"
)

// Song is a track persisted in the local library.
type Song struct {
	track.Track
	ExternalID string    `json:"external_id"`
	PlayCount  int       `json:"play_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// SongOrder selects the ordering of genre queries.
type SongOrder int

const (
	// OrderByPlayCount orders by play count, then popularity.
	OrderByPlayCount SongOrder = iota
	// OrderByPopularity orders by popularity, then most recently added.
	OrderByPopularity
)

// GenreQuery selects songs having any of Genres.
type GenreQuery struct {
	Genres  []string
	Exclude map[string]struct{}
	Order   SongOrder
	Limit   int
}

const songColumns = `id, name, artist, artist_id, album, thumbnail, duration, preview_url,
	external_url, source, external_id, genres, popularity, play_count, explicit, created_at`

// InsertSong stores a new song. ErrConflict is returned when (source, external_id) exists.
// Genres are stored lower-cased and deduplicated.
func (s *Store) InsertSong(ctx context.Context, song *Song) error {
	song.Genres = normalizeGenres(song.Genres)
	genres, err := json.Marshal(song.Genres)
	if err != nil {
		return errors.Wrap(err, "failed to encode genres")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `INSERT INTO songs(`+songColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.ID, song.Name, song.Artist, song.ArtistID, song.Album, song.Thumbnail, song.Duration,
		song.PreviewURL, song.ExternalURL, string(song.Source), song.ExternalID, string(genres),
		song.Popularity, song.PlayCount, song.Explicit, song.CreatedAt.UnixNano())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return errors.Wrapf(ErrConflict, "song %s/%s", song.Source, song.ExternalID)
		}
		return errors.Wrap(err, "failed to insert song")
	}

	for _, g := range song.Genres {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO song_genres(song_id, genre) VALUES(?, ?)`, song.ID, g); err != nil {
			return errors.Wrap(err, "failed to insert song genre")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit song")
	}
	return nil
}

// GetSong returns a song by ID.
func (s *Store) GetSong(ctx context.Context, id string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "song %s", id)
	}
	return song, err
}

// FindSongByExternal returns the song imported from source with externalID.
func (s *Store) FindSongByExternal(ctx context.Context, source track.Source, externalID string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE source = ? AND external_id = ?`,
		string(source), externalID)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "song %s/%s", source, externalID)
	}
	return song, err
}

// GetSongs returns the songs with the given IDs in the order of ids. Unknown IDs are skipped.
func (s *Store) GetSongs(ctx context.Context, ids []string) ([]Song, error) {
	if len(ids) == 0 {
		return []Song{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+songColumns+` FROM songs WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query songs")
	}
	found, err := collect(rows, nil, 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Song, len(found))
	for _, song := range found {
		byID[song.ID] = song
	}
	out := make([]Song, 0, len(found))
	for _, id := range ids {
		if song, ok := byID[id]; ok {
			out = append(out, song)
		}
	}
	return out, nil
}

// SearchSongs matches query as a case-insensitive substring of name, artist or album.
func (s *Store) SearchSongs(ctx context.Context, query string, limit int) ([]Song, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+songColumns+` FROM songs
		WHERE lower(name) LIKE ? ESCAPE '\' OR lower(artist) LIKE ? ESCAPE '\' OR lower(album) LIKE ? ESCAPE '\'
		ORDER BY play_count DESC, popularity DESC
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search songs")
	}
	return collect(rows, nil, 0)
}

// SongsByGenres returns songs having any of the query genres, skipping excluded IDs.
func (s *Store) SongsByGenres(ctx context.Context, q GenreQuery) ([]Song, error) {
	genres := normalizeGenres(q.Genres)
	if len(genres) == 0 || q.Limit <= 0 {
		return []Song{}, nil
	}

	order := `s.play_count DESC, s.popularity DESC`
	if q.Order == OrderByPopularity {
		order = `s.popularity DESC, s.created_at DESC`
	}

	args := make([]any, len(genres))
	for i, g := range genres {
		args[i] = g
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+prefixed("s.", songColumns)+` FROM songs s
		WHERE s.id IN (SELECT song_id FROM song_genres WHERE genre IN (`+placeholders(len(genres))+`))
		ORDER BY `+order, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query songs by genre")
	}
	return collect(rows, q.Exclude, q.Limit)
}

// TopSongs returns the most played songs, then the most popular.
func (s *Store) TopSongs(ctx context.Context, limit int) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+songColumns+` FROM songs
		ORDER BY play_count DESC, popularity DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query top songs")
	}
	return collect(rows, nil, 0)
}

// GenreCount is a genre with the number of library songs carrying it.
type GenreCount struct {
	Genre string
	Count int
}

// Genres returns the distinct library genres, most common first.
func (s *Store) Genres(ctx context.Context) ([]GenreCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT genre, COUNT(*) FROM song_genres
		GROUP BY genre ORDER BY COUNT(*) DESC, genre ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query genres")
	}
	defer rows.Close()

	var out []GenreCount
	for rows.Next() {
		var gc GenreCount
		if err := rows.Scan(&gc.Genre, &gc.Count); err != nil {
			return nil, errors.Wrap(err, "failed to scan genre")
		}
		out = append(out, gc)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate genres")
}

// IncrementPlayCount adds one play to the song. Unknown IDs are ignored.
func (s *Store) IncrementPlayCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE songs SET play_count = play_count + 1 WHERE id = ?`, id)
	return errors.Wrap(err, "failed to increment play count")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSong(row scanner) (*Song, error) {
	var (
		song      Song
		source    string
		genres    string
		createdAt int64
	)
	err := row.Scan(&song.ID, &song.Name, &song.Artist, &song.ArtistID, &song.Album, &song.Thumbnail,
		&song.Duration, &song.PreviewURL, &song.ExternalURL, &source, &song.ExternalID, &genres,
		&song.Popularity, &song.PlayCount, &song.Explicit, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan song")
	}
	song.Source = track.Source(source)
	song.CreatedAt = time.Unix(0, createdAt)
	if err := json.Unmarshal([]byte(genres), &song.Genres); err != nil {
		return nil, errors.Wrapf(err, "invalid genres for song %s", song.ID)
	}
	if song.Genres == nil {
		song.Genres = []string{}
	}
	return &song, nil
}

// collect scans rows, skipping excluded IDs and stopping at limit (0 = no limit).
func collect(rows *sql.Rows, exclude map[string]struct{}, limit int) ([]Song, error) {
	defer rows.Close()

	out := []Song{}
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		if _, skip := exclude[song.ID]; skip {
			continue
		}
		out = append(out, *song)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate songs")
}

func normalizeGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
