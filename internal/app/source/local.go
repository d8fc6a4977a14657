package source

import (
	"context"
	"strings"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/store"
)

// Library is the local song store.
type Library interface {
	SearchSongs(ctx context.Context, query string, limit int) ([]store.Song, error)
	SongsByGenres(ctx context.Context, q store.GenreQuery) ([]store.Song, error)
	TopSongs(ctx context.Context, limit int) ([]store.Song, error)
	GetSongs(ctx context.Context, ids []string) ([]store.Song, error)
	Genres(ctx context.Context) ([]store.GenreCount, error)
}

// Local serves tracks from the local library.
type Local struct {
	lib Library
}

// NewLocal creates a local source.
func NewLocal(lib Library) *Local {
	return &Local{lib: lib}
}

func (s *Local) Name() track.Source { return track.SourceLocal }

func (s *Local) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	songs, err := s.lib.SearchSongs(ctx, query, limit)
	if err != nil {
		return nil, s.fail("search", err)
	}
	return Tracks(songs), nil
}

func (s *Local) SimilarTracks(context.Context, string, string, int) ([]track.Track, error) {
	return nil, unsupported(track.SourceLocal, "similar_tracks")
}

func (s *Local) SimilarArtists(context.Context, string, int) ([]catalog.ArtistSummary, error) {
	return nil, unsupported(track.SourceLocal, "similar_artists")
}

// TopByTag returns library songs with the genre, most played first.
func (s *Local) TopByTag(ctx context.Context, tag string, limit int) ([]track.Track, error) {
	songs, err := s.lib.SongsByGenres(ctx, store.GenreQuery{
		Genres: []string{tag},
		Order:  store.OrderByPlayCount,
		Limit:  limit,
	})
	if err != nil {
		return nil, s.fail("top_by_tag", err)
	}
	return Tracks(songs), nil
}

func (s *Local) Genres(ctx context.Context, limit int) ([]catalog.GenreTag, error) {
	genres, err := s.lib.Genres(ctx)
	if err != nil {
		return nil, s.fail("genres", err)
	}
	tags := make([]catalog.GenreTag, 0, len(genres))
	for _, g := range genres {
		if limit > 0 && len(tags) >= limit {
			break
		}
		tags = append(tags, catalog.GenreTag{Name: g.Genre, Source: string(track.SourceLocal), Count: g.Count})
	}
	return tags, nil
}

func (s *Local) RecommendationsBySeed(context.Context, catalog.Seeds, int) ([]track.Track, error) {
	return nil, unsupported(track.SourceLocal, "recommendations_by_seed")
}

// Top returns the most played library songs.
func (s *Local) Top(ctx context.Context, limit int) ([]track.Track, error) {
	songs, err := s.lib.TopSongs(ctx, limit)
	if err != nil {
		return nil, s.fail("top", err)
	}
	return Tracks(songs), nil
}

// ByGenres returns library songs matching any genre, see store.GenreQuery.
func (s *Local) ByGenres(ctx context.Context, q store.GenreQuery) ([]track.Track, error) {
	songs, err := s.lib.SongsByGenres(ctx, q)
	if err != nil {
		return nil, s.fail("by_genres", err)
	}
	return Tracks(songs), nil
}

// Songs resolves song IDs in the given order.
func (s *Local) Songs(ctx context.Context, ids []string) ([]store.Song, error) {
	songs, err := s.lib.GetSongs(ctx, ids)
	if err != nil {
		return nil, s.fail("get_songs", err)
	}
	return songs, nil
}

func (s *Local) fail(op string, err error) error {
	return catalog.NewProviderError(string(track.SourceLocal), op, err)
}

// Tracks converts library songs to tracks.
func Tracks(songs []store.Song) []track.Track {
	out := make([]track.Track, 0, len(songs))
	for _, s := range songs {
		t := s.Track
		if t.Source == "" {
			t.Source = track.SourceLocal
		}
		if strings.TrimSpace(t.Artist) == "" {
			t.Artist = "Unknown"
		}
		out = append(out, t)
	}
	return out
}
