package aggregator

import (
	"strings"

	"github.com/osa030/19dig/internal/domain/catalog"
)

// MergeGenres drops case-insensitive duplicates, keeping the first, and caps the
// result at limit entries. total is the number of unique genres before capping.
func MergeGenres(tags []catalog.GenreTag, limit int) (merged []catalog.GenreTag, total int) {
	seen := make(map[string]struct{}, len(tags))
	merged = make([]catalog.GenreTag, 0, len(tags))
	for _, tag := range tags {
		key := strings.ToLower(strings.TrimSpace(tag.Name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, tag)
	}
	total = len(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, total
}
