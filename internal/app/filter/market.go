package filter

import (
	"context"

	"github.com/osa030/19dig/internal/domain/track"
)

// MarketFilter drops tracks the provider reports as not playable in the configured market.
// It only runs when enabled in config.
type MarketFilter struct{}

// NewMarketFilter creates a new MarketFilter.
func NewMarketFilter() *MarketFilter {
	return &MarketFilter{}
}

func (f *MarketFilter) Name() string {
	return "market_filter"
}

func (f *MarketFilter) Description() string {
	return "Checks if the track is available in the configured market"
}

func (f *MarketFilter) ReturnCodes() []string {
	return []string{"market_restriction"}
}

func (f *MarketFilter) ValidateConfig(map[string]any) error {
	return nil
}

func (f *MarketFilter) AppliesTo(*Context) bool {
	// Market restrictions apply to all tracks regardless of source
	return true
}

func (f *MarketFilter) Check(_ context.Context, t track.Track, _ *Context) Result {
	if !t.IsAvailable() {
		return Reject("market_restriction")
	}
	return Accept()
}

func init() {
	Register("market_filter", func() Filter {
		return NewMarketFilter()
	})
}
