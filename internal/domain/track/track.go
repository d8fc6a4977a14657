// Package track provides the canonical Track record shared by every catalog source.
package track

import "strings"

// Source identifies where a track was obtained.
type Source string

const (
	SourceLocal   Source = "local"
	SourceSpotify Source = "spotify"
	SourceLastFM  Source = "lastfm"
)

// Sources lists every known source in fan-out order.
var Sources = []Source{SourceSpotify, SourceLastFM, SourceLocal}

// ParseSource converts a query value to a Source.
// "" and "all" map to the empty Source meaning no restriction.
func ParseSource(s string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", true
	case string(SourceSpotify):
		return SourceSpotify, true
	case string(SourceLastFM):
		return SourceLastFM, true
	case string(SourceLocal):
		return SourceLocal, true
	}
	return "", false
}

// Track is the normalized song record returned to clients.
// It never carries a provider's native shape.
type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artist      string   `json:"artist"`
	ArtistID    string   `json:"artistId"`
	Album       string   `json:"album"`
	Thumbnail   string   `json:"thumbnail"`
	Duration    int      `json:"duration"` // seconds, 0 if unknown
	PreviewURL  string   `json:"preview_url"`
	ExternalURL string   `json:"external_url"`
	Source      Source   `json:"source"`
	Genres      []string `json:"genres"`
	Popularity  int      `json:"popularity"`
	Explicit    bool     `json:"explicit,omitempty"`
	IsPlayable  *bool    `json:"-"` // Playable in the configured market (nil if unknown)
}

// IdentityKey returns the case-insensitive name+artist key used for deduplication.
func (t *Track) IdentityKey() string {
	return strings.ToLower(t.Name) + "-" + strings.ToLower(t.Artist)
}

// HasDuration reports whether the duration is known.
func (t *Track) HasDuration() bool {
	return t.Duration > 0
}

// HasGenre reports whether the track carries the genre (case-insensitive).
func (t *Track) HasGenre(genre string) bool {
	for _, g := range t.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// IsAvailable reports whether the track can be played in the configured market.
// Tracks without market information are considered available.
func (t *Track) IsAvailable() bool {
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}
	return true
}
