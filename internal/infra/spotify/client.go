// Package spotify provides a client for the Spotify Web API using app credentials.
package spotify

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/cache"
	"github.com/osa030/19dig/internal/infra/metrics"
)

// ProviderName identifies Spotify in errors and metrics.
const ProviderName = "spotify"

const (
	defaultLimit = 20
	maxLimit     = 50
)

// Client is a Spotify API client.
type Client struct {
	client *spotify.Client
	market string
	cache  *cache.Cache
}

// Config represents Spotify client configuration.
type Config struct {
	Market  string
	BaseURL string // overrides the API endpoint, used by tests
	Timeout time.Duration
}

// New creates a new Spotify client authenticated by tokens.
// c may be nil to disable response caching.
func New(cfg Config, tokens oauth2.TokenSource, c *cache.Cache) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("spotify token source is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: tokens,
			Base:   http.DefaultTransport,
		},
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client: spotify.New(httpClient, opts...),
		market: market,
		cache:  c,
	}, nil
}

// Search searches for tracks on Spotify. Search is always live.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	const op = "search"
	if query == "" {
		return nil, c.fail(op, errors.New("search query is required"))
	}

	result, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
		spotify.Limit(clampLimit(limit)),
		spotify.Market(c.market),
	)
	if err != nil {
		return nil, c.fail(op, err)
	}
	c.ok(op)

	if result.Tracks == nil {
		return []track.Track{}, nil
	}
	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, c.convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// Recommendations returns tracks seeded by genres, artists and tracks.
// At most catalog.MaxSeeds seeds are sent, genres first.
func (c *Client) Recommendations(ctx context.Context, seeds catalog.Seeds, limit int) ([]track.Track, error) {
	const op = "recommendations"
	if seeds.Empty() {
		return nil, c.fail(op, errors.New("at least one seed is required"))
	}

	result, err := c.client.GetRecommendations(ctx, toSpotifySeeds(seeds), nil,
		spotify.Limit(clampLimit(limit)),
		spotify.Market(c.market),
	)
	if err != nil {
		return nil, c.fail(op, err)
	}
	c.ok(op)

	tracks := make([]track.Track, 0, len(result.Tracks))
	for i := range result.Tracks {
		tracks = append(tracks, convertSimpleTrack(&result.Tracks[i]))
	}
	return tracks, nil
}

// SimilarTracks finds the track by name and artist, then seeds recommendations with it.
func (c *Client) SimilarTracks(ctx context.Context, artistName, trackName string, limit int) ([]track.Track, error) {
	const op = "similar_tracks"
	if artistName == "" || trackName == "" {
		return nil, c.fail(op, errors.New("track name and artist name are required"))
	}
	limit = clampLimit(limit)

	key := cache.Key("spotify."+op, artistName, trackName, strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]track.Track, error) {
		query := fmt.Sprintf("track:%s artist:%s", trackName, artistName)
		found, err := c.Search(ctx, query, 1)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return []track.Track{}, nil
		}
		return c.Recommendations(ctx, catalog.Seeds{Tracks: []string{found[0].ID}}, limit)
	})
}

// GenreSeeds returns the genres accepted as recommendation seeds.
func (c *Client) GenreSeeds(ctx context.Context) ([]string, error) {
	const op = "genre_seeds"
	return cache.Fetch(ctx, c.cache, op, cache.Key("spotify."+op), func(ctx context.Context) ([]string, error) {
		genres, err := c.client.GetAvailableGenreSeeds(ctx)
		if err != nil {
			return nil, c.fail(op, err)
		}
		c.ok(op)
		return genres, nil
	})
}

// SimilarArtists resolves the artist by name and returns its related artists.
func (c *Client) SimilarArtists(ctx context.Context, artistName string, limit int) ([]catalog.ArtistSummary, error) {
	const op = "related_artists"
	if artistName == "" {
		return nil, c.fail(op, errors.New("artist name is required"))
	}

	key := cache.Key("spotify."+op, artistName)
	artists, err := cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]catalog.ArtistSummary, error) {
		result, err := c.client.Search(ctx, artistName, spotify.SearchTypeArtist, spotify.Limit(1))
		if err != nil {
			return nil, c.fail(op, err)
		}
		if result.Artists == nil || len(result.Artists.Artists) == 0 {
			return []catalog.ArtistSummary{}, nil
		}

		related, err := c.client.GetRelatedArtists(ctx, result.Artists.Artists[0].ID)
		if err != nil {
			return nil, c.fail(op, err)
		}
		c.ok(op)

		out := make([]catalog.ArtistSummary, 0, len(related))
		for _, a := range related {
			out = append(out, convertArtist(a))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(artists) > limit {
		artists = artists[:limit]
	}
	return artists, nil
}

func (c *Client) ok(op string) {
	metrics.ProviderRequests.WithLabelValues(ProviderName, op, "ok").Inc()
}

func (c *Client) fail(op string, err error) error {
	metrics.ProviderRequests.WithLabelValues(ProviderName, op, "error").Inc()
	zlog.Debug().Err(err).Msgf("spotify %s failed", op)
	return catalog.NewProviderError(ProviderName, op, err)
}

// convertTrack converts a Spotify FullTrack to the canonical Track.
func (c *Client) convertTrack(t *spotify.FullTrack) track.Track {
	out := convertSimpleTrack(&t.SimpleTrack)
	out.Album = t.Album.Name
	if len(t.Album.Images) > 0 {
		out.Thumbnail = t.Album.Images[0].URL
	}
	out.Popularity = int(t.Popularity)
	if t.IsPlayable != nil {
		playable := *t.IsPlayable
		out.IsPlayable = &playable
	}
	return out
}

// convertSimpleTrack converts the fields shared by every Spotify track shape.
func convertSimpleTrack(t *spotify.SimpleTrack) track.Track {
	out := track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Duration:    int(math.Round(float64(t.Duration) / 1000)),
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs["spotify"],
		Source:      track.SourceSpotify,
		Genres:      []string{},
		Explicit:    t.Explicit,
	}
	if out.ExternalURL == "" && t.ID != "" {
		out.ExternalURL = TrackURL(string(t.ID))
	}
	if len(t.Artists) > 0 {
		out.Artist = t.Artists[0].Name
		out.ArtistID = string(t.Artists[0].ID)
	}
	return out
}

func convertArtist(a spotify.FullArtist) catalog.ArtistSummary {
	var img string
	if len(a.Images) > 0 {
		img = a.Images[0].URL
	}
	return catalog.ArtistSummary{
		ID:     string(a.ID),
		Name:   a.Name,
		URL:    a.ExternalURLs["spotify"],
		Image:  img,
		Genres: a.Genres,
	}
}

// toSpotifySeeds converts seeds, keeping at most catalog.MaxSeeds in total.
func toSpotifySeeds(s catalog.Seeds) spotify.Seeds {
	remaining := catalog.MaxSeeds
	var out spotify.Seeds
	for _, g := range s.Genres {
		if remaining == 0 {
			break
		}
		out.Genres = append(out.Genres, g)
		remaining--
	}
	for _, a := range s.Artists {
		if remaining == 0 {
			break
		}
		out.Artists = append(out.Artists, spotify.ID(a))
		remaining--
	}
	for _, t := range s.Tracks {
		if remaining == 0 {
			break
		}
		out.Tracks = append(out.Tracks, spotify.ID(NormalizeTrackID(t)))
		remaining--
	}
	return out
}

// TrackURL returns the Spotify URL for a track.
func TrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// NormalizeTrackID extracts the track ID from a Spotify track URL or URI.
func NormalizeTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			return strings.TrimRight(id, "/")
		}
	}

	return input
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
