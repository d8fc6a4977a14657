package store

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, songs ...Song) {
	t.Helper()
	for i := range songs {
		if songs[i].Source == "" {
			songs[i].Source = track.SourceLocal
		}
		if songs[i].CreatedAt.IsZero() {
			songs[i].CreatedAt = time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
		}
		require.NoError(t, s.InsertSong(context.Background(), &songs[i]))
	}
}

func song(id, name, artist string, playCount, popularity int, genres ...string) Song {
	return Song{
		Track:     track.Track{ID: id, Name: name, Artist: artist, Popularity: popularity, Genres: genres},
		PlayCount: playCount,
	}
}

func ids(songs []Song) []string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.ID
	}
	return out
}

func TestInsertAndGetSong(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := Song{
		Track: track.Track{
			ID: "s1", Name: "Song", Artist: "Artist", Album: "Album", Duration: 180,
			Source: track.SourceSpotify, Genres: []string{"Rock", " indie", "rock"}, Popularity: 50, Explicit: true,
		},
		ExternalID: "sp-1",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.InsertSong(ctx, &in))

	got, err := s.GetSong(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Song", got.Name)
	assert.Equal(t, []string{"rock", "indie"}, got.Genres)
	assert.Equal(t, []string{"rock", "indie"}, in.Genres)
	assert.Equal(t, track.SourceSpotify, got.Source)
	assert.True(t, got.Explicit)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))

	byExt, err := s.FindSongByExternal(ctx, track.SourceSpotify, "sp-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", byExt.ID)

	_, err = s.GetSong(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInsertSong_Conflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := Song{Track: track.Track{ID: "a", Name: "A", Artist: "X", Source: track.SourceLastFM}, ExternalID: "ext", CreatedAt: time.Now()}
	b := Song{Track: track.Track{ID: "b", Name: "B", Artist: "Y", Source: track.SourceLastFM}, ExternalID: "ext", CreatedAt: time.Now()}
	require.NoError(t, s.InsertSong(ctx, &a))
	err := s.InsertSong(ctx, &b)
	assert.True(t, errors.Is(err, ErrConflict))

	// Local uploads without external id never conflict.
	c := Song{Track: track.Track{ID: "c", Name: "C", Artist: "Z", Source: track.SourceLocal}, CreatedAt: time.Now()}
	d := Song{Track: track.Track{ID: "d", Name: "D", Artist: "Z", Source: track.SourceLocal}, CreatedAt: time.Now()}
	require.NoError(t, s.InsertSong(ctx, &c))
	require.NoError(t, s.InsertSong(ctx, &d))
}

func TestSearchSongs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		Song{Track: track.Track{ID: "1", Name: "Hello", Artist: "Adele", Album: "25"}},
		Song{Track: track.Track{ID: "2", Name: "Rolling", Artist: "Someone", Album: "Hello World"}},
		Song{Track: track.Track{ID: "3", Name: "Other", Artist: "HELLOWEEN"}},
		Song{Track: track.Track{ID: "4", Name: "100% Pure", Artist: "X"}},
		Song{Track: track.Track{ID: "5", Name: "Nothing", Artist: "Y"}},
	)
	ctx := context.Background()

	got, err := s.SearchSongs(ctx, "hello", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids(got))

	got, err = s.SearchSongs(ctx, "100%", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(got))

	got, err = s.SearchSongs(ctx, "hello", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSongsByGenres(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		song("a", "A", "x", 10, 5, "rock"),
		song("b", "B", "x", 10, 9, "Rock", "pop"),
		song("c", "C", "x", 50, 1, "pop"),
		song("d", "D", "x", 0, 99, "jazz"),
		song("e", "E", "x", 1, 20, "rock"),
	)
	ctx := context.Background()

	t.Run("play count then popularity", func(t *testing.T) {
		got, err := s.SongsByGenres(ctx, GenreQuery{Genres: []string{"ROCK", "pop"}, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a", "e"}, ids(got))
	})

	t.Run("excludes ids and caps", func(t *testing.T) {
		got, err := s.SongsByGenres(ctx, GenreQuery{
			Genres:  []string{"rock", "pop"},
			Exclude: map[string]struct{}{"c": {}},
			Limit:   2,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids(got))
	})

	t.Run("popularity then recency", func(t *testing.T) {
		got, err := s.SongsByGenres(ctx, GenreQuery{Genres: []string{"rock"}, Order: OrderByPopularity, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"e", "b", "a"}, ids(got))
	})

	t.Run("no genres", func(t *testing.T) {
		got, err := s.SongsByGenres(ctx, GenreQuery{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestTopSongsAndPlayCount(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		song("a", "A", "x", 1, 90),
		song("b", "B", "x", 1, 10),
		song("c", "C", "x", 0, 100),
	)
	ctx := context.Background()

	require.NoError(t, s.IncrementPlayCount(ctx, "b"))
	require.NoError(t, s.IncrementPlayCount(ctx, "missing"))

	got, err := s.TopSongs(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(got))
}

func TestGetSongs_PreservesOrder(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, song("a", "A", "x", 0, 0), song("b", "B", "x", 0, 0))

	got, err := s.GetSongs(context.Background(), []string{"b", "missing", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(got))
}

func TestGenres(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		song("a", "A", "x", 0, 0, "rock", "pop"),
		song("b", "B", "x", 0, 0, "Rock"),
	)

	got, err := s.Genres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []GenreCount{{Genre: "rock", Count: 2}, {Genre: "pop", Count: 1}}, got)
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPreferences(ctx, "u1")
	assert.True(t, errors.Is(err, ErrNotFound))

	now := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	p := preference.New("u1", now)
	p.AddGenres([]string{"rock"})
	p.Dislike("s9", now)
	require.NoError(t, s.SavePreferences(ctx, p))

	p.AddGenres([]string{"jazz"})
	require.NoError(t, s.SavePreferences(ctx, p))

	got, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"rock", "jazz"}, got.FavoriteGenres)
	require.Len(t, got.DislikedSongs, 1)
	assert.Equal(t, 600, got.RecommendationSettings.MaxSongLength)
}
