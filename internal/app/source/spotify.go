package source

import (
	"context"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
)

// SpotifyAPI is the subset of the Spotify client used by the adapter.
type SpotifyAPI interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	Recommendations(ctx context.Context, seeds catalog.Seeds, limit int) ([]track.Track, error)
	SimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error)
	SimilarArtists(ctx context.Context, artist string, limit int) ([]catalog.ArtistSummary, error)
	GenreSeeds(ctx context.Context) ([]string, error)
}

// Spotify adapts the Spotify client.
type Spotify struct {
	api SpotifyAPI
}

// NewSpotify creates a Spotify source.
func NewSpotify(api SpotifyAPI) *Spotify {
	return &Spotify{api: api}
}

func (s *Spotify) Name() track.Source { return track.SourceSpotify }

func (s *Spotify) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	return s.api.Search(ctx, query, limit)
}

func (s *Spotify) SimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error) {
	return s.api.SimilarTracks(ctx, artist, name, limit)
}

func (s *Spotify) SimilarArtists(ctx context.Context, artist string, limit int) ([]catalog.ArtistSummary, error) {
	return s.api.SimilarArtists(ctx, artist, limit)
}

// TopByTag seeds recommendations with the tag as a genre.
func (s *Spotify) TopByTag(ctx context.Context, tag string, limit int) ([]track.Track, error) {
	return s.api.Recommendations(ctx, catalog.Seeds{Genres: []string{tag}}, limit)
}

func (s *Spotify) Genres(ctx context.Context, limit int) ([]catalog.GenreTag, error) {
	seeds, err := s.api.GenreSeeds(ctx)
	if err != nil {
		return nil, err
	}
	tags := make([]catalog.GenreTag, 0, len(seeds))
	for _, g := range seeds {
		if limit > 0 && len(tags) >= limit {
			break
		}
		tags = append(tags, catalog.GenreTag{Name: g, Source: string(track.SourceSpotify)})
	}
	return tags, nil
}

func (s *Spotify) RecommendationsBySeed(ctx context.Context, seeds catalog.Seeds, limit int) ([]track.Track, error) {
	return s.api.Recommendations(ctx, seeds, limit)
}
