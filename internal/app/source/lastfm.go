package source

import (
	"context"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
)

// LastFMAPI is the subset of the Last.fm client used by the adapter.
type LastFMAPI interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetSimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error)
	GetSimilarArtists(ctx context.Context, artist string, limit int) ([]catalog.ArtistSummary, error)
	GetTopTracksByTag(ctx context.Context, tag string, limit int) ([]track.Track, error)
	GetTopTags(ctx context.Context, limit int) ([]catalog.GenreTag, error)
}

// LastFM adapts the Last.fm client. It has no seed-based recommendation.
type LastFM struct {
	api LastFMAPI
}

// NewLastFM creates a Last.fm source.
func NewLastFM(api LastFMAPI) *LastFM {
	return &LastFM{api: api}
}

func (s *LastFM) Name() track.Source { return track.SourceLastFM }

func (s *LastFM) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	return s.api.SearchTracks(ctx, query, limit)
}

func (s *LastFM) SimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error) {
	return s.api.GetSimilarTracks(ctx, artist, name, limit)
}

func (s *LastFM) SimilarArtists(ctx context.Context, artist string, limit int) ([]catalog.ArtistSummary, error) {
	return s.api.GetSimilarArtists(ctx, artist, limit)
}

func (s *LastFM) TopByTag(ctx context.Context, tag string, limit int) ([]track.Track, error) {
	return s.api.GetTopTracksByTag(ctx, tag, limit)
}

func (s *LastFM) Genres(ctx context.Context, limit int) ([]catalog.GenreTag, error) {
	return s.api.GetTopTags(ctx, limit)
}

func (s *LastFM) RecommendationsBySeed(context.Context, catalog.Seeds, int) ([]track.Track, error) {
	return nil, unsupported(track.SourceLastFM, "recommendations_by_seed")
}
