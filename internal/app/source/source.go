// Package source adapts catalog providers and the local library to one capability set.
package source

import (
	"context"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
)

// Source is the capability set every catalog source implements.
// Operations a source cannot serve return a *catalog.ProviderError wrapping
// catalog.ErrUnsupported. Sources never retry.
type Source interface {
	// Name returns the source tag carried by the tracks it returns.
	Name() track.Source
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	SimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error)
	SimilarArtists(ctx context.Context, artist string, limit int) ([]catalog.ArtistSummary, error)
	TopByTag(ctx context.Context, tag string, limit int) ([]track.Track, error)
	Genres(ctx context.Context, limit int) ([]catalog.GenreTag, error)
	RecommendationsBySeed(ctx context.Context, seeds catalog.Seeds, limit int) ([]track.Track, error)
}

func unsupported(src track.Source, op string) error {
	return catalog.NewProviderError(string(src), op, catalog.ErrUnsupported)
}
