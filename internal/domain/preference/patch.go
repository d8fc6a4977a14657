package preference

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
)

// ErrInvalidUpdate is returned for patches that fail validation.
var ErrInvalidUpdate = errors.New("invalid preferences update")

// Patch is a partial update of the user-editable preference fields.
// Nil fields are left unchanged.
type Patch struct {
	FavoriteGenres         []string                `json:"favorite_genres"`
	FavoriteArtists        []FavoriteArtist        `json:"favorite_artists" validate:"omitempty,dive"`
	RecommendationSettings *RecommendationSettings `json:"recommendation_settings"`
	AudioPreferences       *AudioPreferences       `json:"audio_preferences"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.FavoriteGenres == nil && p.FavoriteArtists == nil &&
		p.RecommendationSettings == nil && p.AudioPreferences == nil
}

// Apply replaces the fields present in the patch.
func (p *UserPreferences) Apply(patch Patch, at time.Time) {
	if patch.FavoriteGenres != nil {
		p.FavoriteGenres = NormalizeGenres(patch.FavoriteGenres)
	}
	if patch.FavoriteArtists != nil {
		p.FavoriteArtists = patch.FavoriteArtists
	}
	if patch.RecommendationSettings != nil {
		p.RecommendationSettings = *patch.RecommendationSettings
		if p.RecommendationSettings.PreferredLanguages == nil {
			p.RecommendationSettings.PreferredLanguages = []string{}
		}
	}
	if patch.AudioPreferences != nil {
		p.AudioPreferences = *patch.AudioPreferences
	}
	p.UpdatedAt = at
}

// UnmarshalJSON fills fields missing from the document with their defaults.
func (s *RecommendationSettings) UnmarshalJSON(b []byte) error {
	type plain RecommendationSettings
	v := plain(DefaultRecommendationSettings())
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = RecommendationSettings(v)
	return nil
}

// UnmarshalJSON fills fields missing from the document with their defaults.
func (a *AudioPreferences) UnmarshalJSON(b []byte) error {
	type plain AudioPreferences
	v := plain(DefaultAudioPreferences())
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = AudioPreferences(v)
	return nil
}
