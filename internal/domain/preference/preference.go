// Package preference provides the per-user UserPreferences document.
package preference

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// MaxHistory is the number of listening-history entries retained per user.
const MaxHistory = 100

// DislikeReasonUser is recorded for explicit dislike actions.
const DislikeReasonUser = "user_dislike"

// DiscoveryMode controls how adventurous recommendations are.
type DiscoveryMode string

const (
	DiscoveryConservative DiscoveryMode = "conservative"
	DiscoveryBalanced     DiscoveryMode = "balanced"
	DiscoveryAdventurous  DiscoveryMode = "adventurous"
)

// FavoriteArtist is an artist the user follows.
type FavoriteArtist struct {
	Name       string `json:"name" validate:"required"`
	ExternalID string `json:"external_id"`
	Source     string `json:"source"`
}

// HistoryEntry is one play event.
type HistoryEntry struct {
	SongID       string    `json:"song_id"`
	PlayedAt     time.Time `json:"played_at"`
	PlayDuration int       `json:"play_duration"`
	Completed    bool      `json:"completed"`
}

// DislikedSong is one dislike event.
type DislikedSong struct {
	SongID     string    `json:"song_id"`
	Reason     string    `json:"reason"`
	DislikedAt time.Time `json:"disliked_at"`
}

// AudioPreferences holds feature ranges.
type AudioPreferences struct {
	EnergyMin       float64 `json:"energy_min" default:"0" validate:"gte=0,lte=1"`
	EnergyMax       float64 `json:"energy_max" default:"1" validate:"gte=0,lte=1,gtefield=EnergyMin"`
	ValenceMin      float64 `json:"valence_min" default:"0" validate:"gte=0,lte=1"`
	ValenceMax      float64 `json:"valence_max" default:"1" validate:"gte=0,lte=1,gtefield=ValenceMin"`
	DanceabilityMin float64 `json:"danceability_min" default:"0" validate:"gte=0,lte=1"`
	DanceabilityMax float64 `json:"danceability_max" default:"1" validate:"gte=0,lte=1,gtefield=DanceabilityMin"`
	TempoMin        float64 `json:"tempo_min" default:"50" validate:"gte=0"`
	TempoMax        float64 `json:"tempo_max" default:"200" validate:"gte=0,gtefield=TempoMin"`
}

// RecommendationSettings holds recommendation toggles.
type RecommendationSettings struct {
	IncludeExplicit    bool          `json:"include_explicit" default:"true"`
	DiscoveryMode      DiscoveryMode `json:"discovery_mode" default:"balanced" validate:"oneof=conservative balanced adventurous"`
	PreferredLanguages []string      `json:"preferred_languages"`
	MinSongLength      int           `json:"min_song_length" default:"30" validate:"gte=0"`
	MaxSongLength      int           `json:"max_song_length" default:"600" validate:"gte=0,gtefield=MinSongLength"`
}

// HourCount is the number of plays that started within an hour of the day.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Stats holds derived listening statistics.
type Stats struct {
	TotalListeningTime int            `json:"total_listening_time"`
	FavoriteTimeOfDay  []HourCount    `json:"favorite_time_of_day"`
	MostPlayedGenre    string         `json:"most_played_genre"`
	AverageSongLength  float64        `json:"average_song_length"`
	GenrePlays         map[string]int `json:"genre_plays,omitempty"`
	MeasuredPlays      int            `json:"measured_plays,omitempty"`
}

// UserPreferences is the single preference document of a user.
type UserPreferences struct {
	UserID                 string                 `json:"user_id"`
	FavoriteGenres         []string               `json:"favorite_genres"`
	FavoriteArtists        []FavoriteArtist       `json:"favorite_artists"`
	ListeningHistory       []HistoryEntry         `json:"listening_history"`
	DislikedSongs          []DislikedSong         `json:"disliked_songs"`
	AudioPreferences       AudioPreferences       `json:"audio_preferences"`
	RecommendationSettings RecommendationSettings `json:"recommendation_settings"`
	Stats                  Stats                  `json:"stats"`
	CreatedAt              time.Time              `json:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

// New creates preferences with default settings.
func New(userID string, now time.Time) *UserPreferences {
	return &UserPreferences{
		UserID:                 userID,
		FavoriteGenres:         []string{},
		FavoriteArtists:        []FavoriteArtist{},
		ListeningHistory:       []HistoryEntry{},
		DislikedSongs:          []DislikedSong{},
		AudioPreferences:       DefaultAudioPreferences(),
		RecommendationSettings: DefaultRecommendationSettings(),
		Stats:                  Stats{FavoriteTimeOfDay: []HourCount{}},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// DefaultAudioPreferences returns the full-range audio preferences.
func DefaultAudioPreferences() AudioPreferences {
	return AudioPreferences{EnergyMax: 1, ValenceMax: 1, DanceabilityMax: 1, TempoMin: 50, TempoMax: 200}
}

// DefaultRecommendationSettings returns the default recommendation settings.
func DefaultRecommendationSettings() RecommendationSettings {
	return RecommendationSettings{
		IncludeExplicit:    true,
		DiscoveryMode:      DiscoveryBalanced,
		PreferredLanguages: []string{},
		MinSongLength:      30,
		MaxSongLength:      600,
	}
}

// RecordPlay appends a play event and updates the derived statistics.
// genres and trackDuration describe the played track; trackDuration 0 means unknown.
func (p *UserPreferences) RecordPlay(entry HistoryEntry, genres []string, trackDuration int) {
	p.ListeningHistory = append(p.ListeningHistory, entry)
	if over := len(p.ListeningHistory) - MaxHistory; over > 0 {
		p.ListeningHistory = slices.Clone(p.ListeningHistory[over:])
	}

	p.AddGenres(genres)

	p.Stats.TotalListeningTime += entry.PlayDuration
	p.incrementHour(entry.PlayedAt.Hour())

	if p.Stats.GenrePlays == nil {
		p.Stats.GenrePlays = make(map[string]int)
	}
	for _, g := range genres {
		p.Stats.GenrePlays[g]++
	}
	p.Stats.MostPlayedGenre = mostPlayed(p.Stats.GenrePlays, p.Stats.MostPlayedGenre)

	if trackDuration > 0 {
		n := float64(p.Stats.MeasuredPlays)
		p.Stats.AverageSongLength = (p.Stats.AverageSongLength*n + float64(trackDuration)) / (n + 1)
		p.Stats.MeasuredPlays++
	}
	p.UpdatedAt = entry.PlayedAt
}

// AddGenres unions genres into the favorite genres, matching entries exactly as stored.
func (p *UserPreferences) AddGenres(genres []string) {
	for _, g := range genres {
		if g == "" || slices.Contains(p.FavoriteGenres, g) {
			continue
		}
		p.FavoriteGenres = append(p.FavoriteGenres, g)
	}
}

// Dislike records a dislike event. The list is neither deduplicated nor capped.
func (p *UserPreferences) Dislike(songID string, at time.Time) {
	p.DislikedSongs = append(p.DislikedSongs, DislikedSong{
		SongID:     songID,
		Reason:     DislikeReasonUser,
		DislikedAt: at,
	})
	p.UpdatedAt = at
}

// DislikedIDs returns the set of disliked song IDs.
func (p *UserPreferences) DislikedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.DislikedSongs))
	for _, d := range p.DislikedSongs {
		ids[d.SongID] = struct{}{}
	}
	return ids
}

// RecentSongIDs returns the distinct song IDs among the last n history entries,
// most recent first.
func (p *UserPreferences) RecentSongIDs(n int) []string {
	ids := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for i := len(p.ListeningHistory) - 1; i >= 0 && i >= len(p.ListeningHistory)-n; i-- {
		id := p.ListeningHistory[i].SongID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// HistoryIDs returns the set of song IDs in the listening history.
func (p *UserPreferences) HistoryIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.ListeningHistory))
	for _, h := range p.ListeningHistory {
		ids[h.SongID] = struct{}{}
	}
	return ids
}

// ArtistIDsFrom returns the external IDs of favorite artists from the given source.
func (p *UserPreferences) ArtistIDsFrom(source string) []string {
	var ids []string
	for _, a := range p.FavoriteArtists {
		if a.Source == source && a.ExternalID != "" {
			ids = append(ids, a.ExternalID)
		}
	}
	return ids
}

// HourCount returns the play count recorded for an hour of the day.
func (p *UserPreferences) HourCount(hour int) int {
	for _, h := range p.Stats.FavoriteTimeOfDay {
		if h.Hour == hour {
			return h.Count
		}
	}
	return 0
}

func (p *UserPreferences) incrementHour(hour int) {
	for i := range p.Stats.FavoriteTimeOfDay {
		if p.Stats.FavoriteTimeOfDay[i].Hour == hour {
			p.Stats.FavoriteTimeOfDay[i].Count++
			return
		}
	}
	p.Stats.FavoriteTimeOfDay = append(p.Stats.FavoriteTimeOfDay, HourCount{Hour: hour, Count: 1})
}

// mostPlayed picks the genre with the highest count. The current value wins ties.
func mostPlayed(counts map[string]int, current string) string {
	names := make([]string, 0, len(counts))
	for g := range counts {
		names = append(names, g)
	}
	sort.Strings(names)

	best, bestCount := current, counts[current]
	for _, g := range names {
		if counts[g] > bestCount {
			best, bestCount = g, counts[g]
		}
	}
	return best
}

// NormalizeGenres lower-cases and deduplicates genres, preserving first-seen order.
func NormalizeGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
