package filter

import (
	"context"

	"github.com/osa030/19dig/internal/domain/track"
)

// DuplicateTrackFilter drops tracks whose identity key was already seen in the run.
// The same song returned by several sources is kept once, at its first position.
// Covers (same name, different artist) are distinct songs.
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Drops repeated tracks with the same name and artist, keeping the first"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (f *DuplicateTrackFilter) ValidateConfig(map[string]any) error {
	return nil
}

func (f *DuplicateTrackFilter) AppliesTo(*Context) bool {
	return true
}

func (f *DuplicateTrackFilter) Check(_ context.Context, t track.Track, fc *Context) Result {
	key := t.IdentityKey()
	if _, ok := fc.seen[key]; ok {
		return Reject("duplicate_track")
	}
	fc.seen[key] = struct{}{}
	return Accept()
}

// Dedup returns tracks with repeated identity keys removed, first occurrence wins.
func Dedup(tracks []track.Track) []track.Track {
	fc := NewContext(nil)
	f := NewDuplicateTrackFilter()
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if f.Check(context.Background(), t, fc).Accepted {
			out = append(out, t)
		}
	}
	return out
}
