package filter

import (
	"context"
	"math/rand/v2"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
	shuffle func(n int, swap func(i, j int))
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
		shuffle: rand.Shuffle,
	}
}

// NewDefaultChain creates the chain every aggregated result goes through:
// dedup, disliked and duration, followed by the configured optional filters
// (explicit_filter, market_filter) in name order.
func NewDefaultChain(configured map[string]map[string]any) (*Chain, error) {
	c := NewChain()
	c.Add(NewDuplicateTrackFilter())
	c.Add(NewDislikedFilter())
	c.Add(NewDurationLimitFilter())

	names := make([]string, 0, len(configured))
	for name := range configured {
		names = append(names, name)
	}
	sort.Strings(names)

	builtin := make(map[string]Filter, len(c.filters))
	for _, f := range c.filters {
		builtin[f.Name()] = f
	}

	for _, name := range names {
		f, ok := builtin[name]
		if !ok {
			factory, registered := registry[name]
			if !registered {
				return nil, errors.Newf("unknown filter: %s", name)
			}
			f = factory()
		}
		if err := f.ValidateConfig(configured[name]); err != nil {
			return nil, errors.Wrapf(err, "invalid config for filter %s", name)
		}
		if !ok {
			c.Add(f)
		}
		zlog.Info().Msgf("filter enabled: %s", name)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

// Execute runs all applicable filters on one track.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track, fc *Context) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(fc) {
			continue
		}
		result := f.Check(ctx, t, fc)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply filters tracks in order, keeping the first occurrence of each identity key.
// prefs may be nil, in which case preference-dependent filters are skipped.
func (c *Chain) Apply(ctx context.Context, tracks []track.Track, prefs *preference.UserPreferences) []track.Track {
	fc := NewContext(prefs)
	out := make([]track.Track, 0, len(tracks))
	rejected := make(map[string]int)
	for _, t := range tracks {
		result := c.Execute(ctx, t, fc)
		if !result.Accepted {
			rejected[result.Code]++
			continue
		}
		out = append(out, t)
	}
	if len(rejected) > 0 {
		zlog.Debug().Interface("rejected", rejected).Int("kept", len(out)).Msg("filter chain applied")
	}
	return out
}

// Run applies the chain, shuffles the survivors uniformly and truncates to limit.
func (c *Chain) Run(ctx context.Context, tracks []track.Track, prefs *preference.UserPreferences, limit int) []track.Track {
	out := c.Apply(ctx, tracks, prefs)
	c.shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
