// Package aggregator fans requests out to the catalog sources and merges the results.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/osa030/19dig/internal/app/filter"
	"github.com/osa030/19dig/internal/app/personalize"
	"github.com/osa030/19dig/internal/app/source"
	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/metrics"
	"github.com/osa030/19dig/internal/infra/store"
)

// DefaultBranchTimeout bounds every branch of a fan-out.
const DefaultBranchTimeout = 4 * time.Second

// LocalSource is the local library source with its library-only queries.
type LocalSource interface {
	source.Source
	Top(ctx context.Context, limit int) ([]track.Track, error)
	ByGenres(ctx context.Context, q store.GenreQuery) ([]track.Track, error)
	Songs(ctx context.Context, ids []string) ([]store.Song, error)
}

// PreferenceReader loads stored preferences. A missing document is store.ErrNotFound.
type PreferenceReader interface {
	GetPreferences(ctx context.Context, userID string) (*preference.UserPreferences, error)
}

// Config represents aggregator configuration.
type Config struct {
	BranchTimeout time.Duration
	Policy        personalize.Policy
}

// Aggregator merges results from provider A (Spotify), provider B (Last.fm) and the
// local library.
type Aggregator struct {
	spotify source.Source
	lastfm  source.Source
	local   LocalSource
	prefs   PreferenceReader
	chain   *filter.Chain
	policy  personalize.Policy
	timeout time.Duration
}

// New creates an aggregator.
func New(spotify, lastfm source.Source, local LocalSource, prefs PreferenceReader, chain *filter.Chain, cfg Config) *Aggregator {
	timeout := cfg.BranchTimeout
	if timeout <= 0 {
		timeout = DefaultBranchTimeout
	}
	policy := cfg.Policy
	if policy.PersonalizedDivisor == 0 {
		policy = personalize.DefaultPolicy()
	}
	return &Aggregator{
		spotify: spotify,
		lastfm:  lastfm,
		local:   local,
		prefs:   prefs,
		chain:   chain,
		policy:  policy,
		timeout: timeout,
	}
}

// source returns the source serving the tag.
func (a *Aggregator) source(tag track.Source) source.Source {
	switch tag {
	case track.SourceSpotify:
		return a.spotify
	case track.SourceLastFM:
		return a.lastfm
	case track.SourceLocal:
		return a.local
	}
	return nil
}

// SearchAll searches one source at the full limit, or all sources with per-source
// shares when only is empty. Failing sources contribute nothing.
func (a *Aggregator) SearchAll(ctx context.Context, query string, limit int, only track.Source) []track.Track {
	var branches []branch
	if src := a.source(only); src != nil {
		branches = []branch{{source: only, run: searchBranch(src, query, limit)}}
	} else {
		plan := a.policy.Search(limit)
		branches = []branch{
			{source: track.SourceSpotify, run: searchBranch(a.spotify, query, plan.Spotify)},
			{source: track.SourceLastFM, run: searchBranch(a.lastfm, query, plan.LastFM)},
			{source: track.SourceLocal, run: searchBranch(a.local, query, plan.Local)},
		}
	}

	merged, _ := a.fanOut(ctx, "search", branches)
	return a.chain.Run(ctx, merged, nil, limit)
}

func searchBranch(src source.Source, query string, limit int) func(context.Context) ([]track.Track, error) {
	return func(ctx context.Context) ([]track.Track, error) {
		return src.Search(ctx, query, limit)
	}
}

// PersonalizedRecommendations recommends tracks for the user. Users without stored
// preferences, or for whom every branch failed, get popular recommendations.
func (a *Aggregator) PersonalizedRecommendations(ctx context.Context, userID string, limit int) ([]track.Track, error) {
	prefs, err := a.prefs.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return a.PopularRecommendations(ctx, limit), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load preferences")
	}

	plan := a.policy.Personalized(prefs, limit)
	merged, failed := a.fanOut(ctx, "personalized", []branch{
		{source: track.SourceSpotify, run: a.spotifyBranch(plan.Spotify)},
		{source: track.SourceLastFM, run: a.lastfmBranch(plan.LastFM)},
		{source: track.SourceLocal, run: a.localBranch(plan.Local)},
	})
	if failed == 3 {
		zlog.Warn().Str("user", userID).Msg("all recommendation branches failed, falling back to popular")
		return a.PopularRecommendations(ctx, limit), nil
	}
	return a.chain.Run(ctx, merged, prefs, limit), nil
}

// spotifyBranch merges the genre-seeded and artist-seeded recommendations. Sub-call
// failures are skipped; the branch fails only when every sub-call failed.
func (a *Aggregator) spotifyBranch(plan personalize.SpotifyPlan) func(context.Context) ([]track.Track, error) {
	return func(ctx context.Context) ([]track.Track, error) {
		var calls []func(context.Context) ([]track.Track, error)
		if len(plan.Genres) > 0 {
			calls = append(calls, func(ctx context.Context) ([]track.Track, error) {
				return a.spotify.RecommendationsBySeed(ctx, catalog.Seeds{Genres: plan.Genres}, plan.GenreLimit)
			})
		}
		if len(plan.Artists) > 0 {
			calls = append(calls, func(ctx context.Context) ([]track.Track, error) {
				return a.spotify.RecommendationsBySeed(ctx, catalog.Seeds{Artists: plan.Artists}, plan.ArtistLimit)
			})
		}
		return subCalls(ctx, track.SourceSpotify, calls)
	}
}

// lastfmBranch asks for tracks similar to recent plays and top tracks of favorite genres.
func (a *Aggregator) lastfmBranch(plan personalize.LastFMPlan) func(context.Context) ([]track.Track, error) {
	return func(ctx context.Context) ([]track.Track, error) {
		var calls []func(context.Context) ([]track.Track, error)

		if len(plan.History) > 0 {
			songs, err := a.local.Songs(ctx, plan.History)
			if err != nil {
				zlog.Warn().Err(err).Msg("failed to resolve listening history")
			}
			for i, s := range songs {
				if i >= plan.SimilarSeeds {
					break
				}
				artist, name := s.Artist, s.Name
				calls = append(calls, func(ctx context.Context) ([]track.Track, error) {
					return a.lastfm.SimilarTracks(ctx, artist, name, plan.SimilarLimit)
				})
			}
		}
		for _, tag := range plan.Tags {
			calls = append(calls, func(ctx context.Context) ([]track.Track, error) {
				return a.lastfm.TopByTag(ctx, tag, plan.TagLimit)
			})
		}
		return subCalls(ctx, track.SourceLastFM, calls)
	}
}

// subCalls runs calls concurrently and merges their results in call order. Failed
// calls are skipped; the error of the first call is returned only when all failed.
func subCalls(ctx context.Context, src track.Source, calls []func(context.Context) ([]track.Track, error)) ([]track.Track, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([][]track.Track, len(calls))
	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = call(ctx)
		}()
	}
	wg.Wait()

	var out []track.Track
	failed := 0
	for i := range calls {
		if errs[i] != nil {
			failed++
			zlog.Debug().Err(errs[i]).Str("source", string(src)).Msg("sub-call failed")
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == len(calls) {
		return nil, errs[0]
	}
	return out, nil
}

func (a *Aggregator) localBranch(plan personalize.LocalPlan) func(context.Context) ([]track.Track, error) {
	return func(ctx context.Context) ([]track.Track, error) {
		var out []track.Track
		if len(plan.Genres) > 0 {
			tracks, err := a.local.ByGenres(ctx, store.GenreQuery{
				Genres:  plan.Genres,
				Exclude: plan.Disliked,
				Order:   store.OrderByPlayCount,
				Limit:   plan.GenreLimit,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, tracks...)
		}

		if len(plan.History) > 0 {
			ids := make([]string, 0, len(plan.History))
			for id := range plan.History {
				ids = append(ids, id)
			}
			played, err := a.local.Songs(ctx, ids)
			if err != nil {
				return nil, err
			}
			var genres []string
			for _, s := range played {
				genres = append(genres, s.Genres...)
			}
			if len(genres) > 0 {
				exclude := make(map[string]struct{}, len(plan.History)+len(plan.Disliked))
				for id := range plan.History {
					exclude[id] = struct{}{}
				}
				for id := range plan.Disliked {
					exclude[id] = struct{}{}
				}
				tracks, err := a.local.ByGenres(ctx, store.GenreQuery{
					Genres:  genres,
					Exclude: exclude,
					Order:   store.OrderByPopularity,
					Limit:   plan.HistoryLimit,
				})
				if err != nil {
					return nil, err
				}
				out = append(out, tracks...)
			}
		}
		return out, nil
	}
}

// PopularRecommendations mixes provider A tracks for popular genres with the most
// played local tracks.
func (a *Aggregator) PopularRecommendations(ctx context.Context, limit int) []track.Track {
	plan := a.policy.Popular(limit)

	branches := make([]branch, 0, len(plan.Genres)+1)
	for _, genre := range plan.Genres {
		branches = append(branches, branch{
			source: track.SourceSpotify,
			run: func(ctx context.Context) ([]track.Track, error) {
				return a.spotify.RecommendationsBySeed(ctx, catalog.Seeds{Genres: []string{genre}}, plan.PerGenre)
			},
		})
	}
	branches = append(branches, branch{
		source: track.SourceLocal,
		run: func(ctx context.Context) ([]track.Track, error) {
			return a.local.Top(ctx, plan.Local)
		},
	})

	merged, _ := a.fanOut(ctx, "popular", branches)
	return a.chain.Run(ctx, merged, nil, limit)
}

// PopularByGenre returns provider A tracks for the genre, topped up from provider B
// when A returns fewer than limit.
func (a *Aggregator) PopularByGenre(ctx context.Context, genre string, limit int) []track.Track {
	primary, _ := a.fanOut(ctx, "popular_genre", []branch{{
		source: track.SourceSpotify,
		run: func(ctx context.Context) ([]track.Track, error) {
			return a.spotify.TopByTag(ctx, genre, limit)
		},
	}})
	primary = filter.Dedup(primary)
	if len(primary) >= limit {
		return primary[:limit]
	}

	missing := limit - len(primary)
	topUp, _ := a.fanOut(ctx, "popular_genre", []branch{{
		source: track.SourceLastFM,
		run: func(ctx context.Context) ([]track.Track, error) {
			return a.lastfm.TopByTag(ctx, genre, missing)
		},
	}})

	out := filter.Dedup(append(primary, topUp...))
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Genres lists genres from every source, merged case-insensitively with provider A
// first. It returns at most the configured cap and the uncapped unique count.
func (a *Aggregator) Genres(ctx context.Context) ([]catalog.GenreTag, int) {
	sources := []source.Source{a.spotify, a.lastfm, a.local}
	results := make([][]catalog.GenreTag, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			limit := 0
			if src.Name() == track.SourceLastFM {
				limit = a.policy.LastFMTopTags
			}
			tags, err := src.Genres(bctx, limit)
			record("genres", src.Name(), len(tags), err, time.Since(start))
			if err == nil {
				results[i] = tags
			}
		}()
	}
	wg.Wait()

	var merged []catalog.GenreTag
	for _, tags := range results {
		merged = append(merged, tags...)
	}
	return MergeGenres(merged, a.policy.GenresCap)
}

type branch struct {
	source track.Source
	run    func(ctx context.Context) ([]track.Track, error)
}

// fanOut runs branches concurrently, each under its own timeout, and concatenates the
// results in branch order. It returns the number of failed branches.
func (a *Aggregator) fanOut(ctx context.Context, request string, branches []branch) ([]track.Track, int) {
	results := make([][]track.Track, len(branches))
	errs := make([]error, len(branches))

	var wg sync.WaitGroup
	for i, b := range branches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			tracks, err := b.run(bctx)
			record(request, b.source, len(tracks), err, time.Since(start))
			results[i], errs[i] = tracks, err
		}()
	}
	wg.Wait()

	var merged []track.Track
	failed := 0
	for i := range branches {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, results[i]...)
	}
	return merged, failed
}

func record(request string, src track.Source, n int, err error, d time.Duration) {
	outcome := outcomeOf(err)
	metrics.RecordBranch(request, string(src), outcome, d)
	if err != nil && outcome != "unsupported" {
		zlog.Warn().Err(err).
			Str("request", request).
			Str("source", string(src)).
			Str("outcome", outcome).
			Dur("elapsed", d).
			Msg("branch failed")
		return
	}
	zlog.Debug().Str("request", request).Str("source", string(src)).Int("tracks", n).Dur("elapsed", d).Msg("branch done")
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, catalog.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	}
	return "error"
}
