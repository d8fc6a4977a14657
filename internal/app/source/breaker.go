package source

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
)

// BreakerConfig configures the circuit breakers of one source.
type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the breaker settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
	}
}

// Operation names, one breaker each.
const (
	OpSearch                = "search"
	OpSimilarTracks         = "similar_tracks"
	OpSimilarArtists        = "similar_artists"
	OpTopByTag              = "top_by_tag"
	OpGenres                = "genres"
	OpRecommendationsBySeed = "recommendations_by_seed"
)

var operations = []string{OpSearch, OpSimilarTracks, OpSimilarArtists, OpTopByTag, OpGenres, OpRecommendationsBySeed}

// Breaker guards a Source with one circuit breaker per operation, so a failing
// endpoint does not cut off the provider's healthy ones.
// While open, calls to that operation fail fast with gobreaker.ErrOpenState.
type Breaker struct {
	next Source
	cbs  map[string]*gobreaker.CircuitBreaker[any]
}

// WithBreaker wraps src in circuit breakers.
func WithBreaker(src Source, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	b := &Breaker{next: src, cbs: make(map[string]*gobreaker.CircuitBreaker[any], len(operations))}
	for _, op := range operations {
		b.cbs[op] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        string(src.Name()) + "." + op,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					zlog.Warn().Str("breaker", name).Str("from", from.String()).Msg("circuit breaker opened")
					return
				}
				zlog.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
			IsSuccessful: isSuccessful,
		})
	}
	return b
}

// An unsupported operation or a caller giving up says nothing about the provider's health.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, catalog.ErrUnsupported) ||
		errors.Is(err, context.Canceled)
}

// State returns the current state of the breaker guarding op.
func (b *Breaker) State(op string) gobreaker.State {
	cb, ok := b.cbs[op]
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (b *Breaker) Name() track.Source { return b.next.Name() }

func (b *Breaker) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	return guard(b, OpSearch, func() ([]track.Track, error) {
		return b.next.Search(ctx, query, limit)
	})
}

func (b *Breaker) SimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error) {
	return guard(b, OpSimilarTracks, func() ([]track.Track, error) {
		return b.next.SimilarTracks(ctx, artist, name, limit)
	})
}

func (b *Breaker) SimilarArtists(ctx context.Context, artist string, limit int) ([]catalog.ArtistSummary, error) {
	return guard(b, OpSimilarArtists, func() ([]catalog.ArtistSummary, error) {
		return b.next.SimilarArtists(ctx, artist, limit)
	})
}

func (b *Breaker) TopByTag(ctx context.Context, tag string, limit int) ([]track.Track, error) {
	return guard(b, OpTopByTag, func() ([]track.Track, error) {
		return b.next.TopByTag(ctx, tag, limit)
	})
}

func (b *Breaker) Genres(ctx context.Context, limit int) ([]catalog.GenreTag, error) {
	return guard(b, OpGenres, func() ([]catalog.GenreTag, error) {
		return b.next.Genres(ctx, limit)
	})
}

func (b *Breaker) RecommendationsBySeed(ctx context.Context, seeds catalog.Seeds, limit int) ([]track.Track, error) {
	return guard(b, OpRecommendationsBySeed, func() ([]track.Track, error) {
		return b.next.RecommendationsBySeed(ctx, seeds, limit)
	})
}

func guard[T any](b *Breaker, op string, fn func() (T, error)) (T, error) {
	res, err := b.cbs[op].Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, catalog.NewProviderError(string(b.next.Name()), op, err)
		}
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}
