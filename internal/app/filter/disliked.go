package filter

import (
	"context"

	"github.com/osa030/19dig/internal/domain/track"
)

// DislikedFilter drops tracks the user disliked.
type DislikedFilter struct{}

// NewDislikedFilter creates a new disliked filter.
func NewDislikedFilter() *DislikedFilter {
	return &DislikedFilter{}
}

func (f *DislikedFilter) Name() string {
	return "disliked_filter"
}

func (f *DislikedFilter) Description() string {
	return "Drops tracks the user has disliked"
}

func (f *DislikedFilter) ReturnCodes() []string {
	return []string{"disliked"}
}

func (f *DislikedFilter) ValidateConfig(map[string]any) error {
	return nil
}

func (f *DislikedFilter) AppliesTo(fc *Context) bool {
	return fc.Personalized()
}

func (f *DislikedFilter) Check(_ context.Context, t track.Track, fc *Context) Result {
	if _, ok := fc.disliked[t.ID]; ok {
		return Reject("disliked")
	}
	return Accept()
}
