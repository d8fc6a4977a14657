// Package personalize turns user preferences into per-source request plans.
package personalize

import (
	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
)

// Policy holds the tunable quotas of the aggregation engine.
// Divisors split a limit as ceil(limit/divisor).
type Policy struct {
	SearchSpotifyDivisor int
	SearchLastFMDivisor  int
	SearchLocalDivisor   int

	PersonalizedDivisor int

	GenreSeeds    int
	ArtistSeeds   int
	ArtistDivisor int

	HistoryWindow  int
	SimilarSeeds   int
	SimilarDivisor int
	TagGenres      int
	TagDivisor     int

	HistoryGenreDivisor int

	PopularGenres       []string
	PopularGenreCount   int
	PopularGenreDivisor int
	PopularLocalDivisor int

	GenresCap     int
	LastFMTopTags int
}

// DefaultPolicy returns the standard quotas.
func DefaultPolicy() Policy {
	return Policy{
		SearchSpotifyDivisor: 2,
		SearchLastFMDivisor:  4,
		SearchLocalDivisor:   4,
		PersonalizedDivisor:  3,
		GenreSeeds:           catalog.MaxSeeds,
		ArtistSeeds:          catalog.MaxSeeds,
		ArtistDivisor:        2,
		HistoryWindow:        10,
		SimilarSeeds:         3,
		SimilarDivisor:       3,
		TagGenres:            2,
		TagDivisor:           4,
		HistoryGenreDivisor:  2,
		PopularGenres:        []string{"pop", "rock", "hip-hop", "electronic", "indie"},
		PopularGenreCount:    3,
		PopularGenreDivisor:  3,
		PopularLocalDivisor:  2,
		GenresCap:            100,
		LastFMTopTags:        50,
	}
}

// Share returns ceil(limit/divisor).
func Share(limit, divisor int) int {
	if divisor <= 1 || limit <= 0 {
		return limit
	}
	return (limit + divisor - 1) / divisor
}

// SearchPlan is the per-source limit of a fan-out search.
type SearchPlan struct {
	Spotify int
	LastFM  int
	Local   int
}

// Search returns the per-source limits for a search across all sources.
func (p Policy) Search(limit int) SearchPlan {
	return SearchPlan{
		Spotify: Share(limit, p.SearchSpotifyDivisor),
		LastFM:  Share(limit, p.SearchLastFMDivisor),
		Local:   Share(limit, p.SearchLocalDivisor),
	}
}

// PopularPlan describes the non-personalized fallback.
type PopularPlan struct {
	Genres   []string
	PerGenre int
	Local    int
}

// Popular returns the plan for popular recommendations.
func (p Policy) Popular(limit int) PopularPlan {
	return PopularPlan{
		Genres:   head(p.PopularGenres, p.PopularGenreCount),
		PerGenre: Share(limit, p.PopularGenreDivisor),
		Local:    Share(limit, p.PopularLocalDivisor),
	}
}

// SpotifyPlan seeds provider A.
type SpotifyPlan struct {
	Genres      []string
	GenreLimit  int
	Artists     []string
	ArtistLimit int
}

// LastFMPlan seeds provider B. History holds song IDs, most recent first.
type LastFMPlan struct {
	History      []string
	SimilarSeeds int
	SimilarLimit int
	Tags         []string
	TagLimit     int
}

// LocalPlan queries the local library.
type LocalPlan struct {
	Genres       []string
	GenreLimit   int
	Disliked     map[string]struct{}
	History      map[string]struct{}
	HistoryLimit int
}

// Plan is the per-branch request plan of a personalized recommendation.
type Plan struct {
	Share   int
	Spotify SpotifyPlan
	LastFM  LastFMPlan
	Local   LocalPlan
}

// Personalized builds the branch plans for the user's preferences.
func (p Policy) Personalized(prefs *preference.UserPreferences, limit int) Plan {
	share := Share(limit, p.PersonalizedDivisor)
	return Plan{
		Share: share,
		Spotify: SpotifyPlan{
			Genres:      head(prefs.FavoriteGenres, p.GenreSeeds),
			GenreLimit:  share,
			Artists:     head(prefs.ArtistIDsFrom(string(track.SourceSpotify)), p.ArtistSeeds),
			ArtistLimit: Share(share, p.ArtistDivisor),
		},
		LastFM: LastFMPlan{
			History:      prefs.RecentSongIDs(p.HistoryWindow),
			SimilarSeeds: p.SimilarSeeds,
			SimilarLimit: Share(share, p.SimilarDivisor),
			Tags:         head(prefs.FavoriteGenres, p.TagGenres),
			TagLimit:     Share(share, p.TagDivisor),
		},
		Local: LocalPlan{
			Genres:       prefs.FavoriteGenres,
			GenreLimit:   share,
			Disliked:     prefs.DislikedIDs(),
			History:      prefs.HistoryIDs(),
			HistoryLimit: Share(share, p.HistoryGenreDivisor),
		},
	}
}

func head(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
