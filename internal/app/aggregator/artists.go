package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/osa030/19dig/internal/app/source"
	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
)

// SimilarArtists returns artists related to artist from one provider, or from both
// providers (B first, it ranks by match) when only is empty. Artists are deduplicated
// by name, case-insensitively.
func (a *Aggregator) SimilarArtists(ctx context.Context, artist string, limit int, only track.Source) []catalog.ArtistSummary {
	var sources []source.Source
	switch only {
	case track.SourceSpotify:
		sources = []source.Source{a.spotify}
	case track.SourceLastFM:
		sources = []source.Source{a.lastfm}
	default:
		sources = []source.Source{a.lastfm, a.spotify}
	}

	results := make([][]catalog.ArtistSummary, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			artists, err := src.SimilarArtists(bctx, artist, limit)
			record("similar_artists", src.Name(), len(artists), err, time.Since(start))
			if err == nil {
				results[i] = artists
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{})
	out := make([]catalog.ArtistSummary, 0, limit)
	for _, artists := range results {
		for _, ar := range artists {
			key := strings.ToLower(ar.Name)
			if _, ok := seen[key]; ok || key == "" {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ar)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
