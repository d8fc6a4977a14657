// Package catalog defines the provider-neutral types exchanged with catalog sources.
package catalog

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrUnsupported is returned when a source does not implement an operation.
var ErrUnsupported = errors.New("operation not supported by source")

// ProviderError describes a failed call to a catalog provider.
type ProviderError struct {
	Provider  string
	Operation string
	Cause     error
}

// NewProviderError wraps cause as a ProviderError.
func NewProviderError(provider, operation string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Cause: cause}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ArtistSummary is a lightweight artist reference.
type ArtistSummary struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name"`
	URL    string   `json:"url,omitempty"`
	Image  string   `json:"image,omitempty"`
	Genres []string `json:"genres,omitempty"`
	Match  float64  `json:"match,omitempty"` // similarity score (0-1) if provided
}

// GenreTag is a genre or tag reported by a source.
type GenreTag struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Count  int    `json:"count,omitempty"`
}

// Seeds holds the inputs for a seed-based recommendation call.
type Seeds struct {
	Genres  []string
	Artists []string
	Tracks  []string
}

// MaxSeeds is the total seed count accepted by seed-based recommendation.
const MaxSeeds = 5

// Empty reports whether no seed is set.
func (s Seeds) Empty() bool {
	return len(s.Genres) == 0 && len(s.Artists) == 0 && len(s.Tracks) == 0
}
