// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/cache"
	"github.com/osa030/19dig/internal/infra/metrics"
)

// ProviderName identifies Last.fm in errors and metrics.
const ProviderName = "lastfm"

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	defaultLimit   = 20
	maxLimit       = 100
	maxErrorBody   = 512
)

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"` // Tag count/frequency
}

// TrackInfo is the detail returned by track.getInfo.
type TrackInfo struct {
	Name      string   `json:"name"`
	Artist    string   `json:"artist"`
	Album     string   `json:"album,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Duration  int      `json:"duration"` // seconds
	Playcount int      `json:"playcount"`
	Listeners int      `json:"listeners"`
	MBID      string   `json:"mbid,omitempty"`
	URL       string   `json:"url"`
	Tags      []string `json:"tags"`
	Wiki      string   `json:"wiki,omitempty"`
}

// ArtistInfo is the detail returned by artist.getInfo.
type ArtistInfo struct {
	Name      string   `json:"name"`
	MBID      string   `json:"mbid,omitempty"`
	URL       string   `json:"url"`
	Image     string   `json:"image,omitempty"`
	Playcount int      `json:"playcount"`
	Listeners int      `json:"listeners"`
	Tags      []string `json:"tags"`
	Bio       string   `json:"bio,omitempty"`
	Similar   []string `json:"similar"`
}

// New creates a new Last.fm client. c may be nil to disable response caching.
func New(cfg Config, c *cache.Cache) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		cache:      c,
	}, nil
}

// SearchTracks searches tracks by name. Search is always live.
// Reference: https://www.last.fm/api/show/track.search
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error) {
	const op = "track.search"
	if query == "" {
		return nil, c.fail(op, errors.New("search query is required"))
	}

	params := url.Values{}
	params.Set("track", query)
	params.Set("limit", strconv.Itoa(clampLimit(limit)))

	var response searchResponse
	if err := c.get(ctx, op, params, &response); err != nil {
		return nil, err
	}
	return convertTracks(response.Results.TrackMatches.Track, nil), nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, artistName, trackName string, limit int) ([]track.Track, error) {
	const op = "track.getSimilar"
	if trackName == "" || artistName == "" {
		return nil, c.fail(op, errors.New("track name and artist name are required"))
	}
	limit = clampLimit(limit)

	key := cache.Key(op, artistName, trackName, strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]track.Track, error) {
		params := url.Values{}
		params.Set("artist", artistName)
		params.Set("track", trackName)
		params.Set("limit", strconv.Itoa(limit))
		params.Set("autocorrect", "1")

		var response similarTracksResponse
		if err := c.get(ctx, op, params, &response); err != nil {
			return nil, err
		}
		return convertTracks(response.SimilarTracks.Track, nil), nil
	})
}

// GetSimilarArtists retrieves artists similar to the given one.
// Reference: https://www.last.fm/api/show/artist.getSimilar
func (c *Client) GetSimilarArtists(ctx context.Context, artistName string, limit int) ([]catalog.ArtistSummary, error) {
	const op = "artist.getSimilar"
	if artistName == "" {
		return nil, c.fail(op, errors.New("artist name is required"))
	}
	limit = clampLimit(limit)

	key := cache.Key(op, artistName, strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]catalog.ArtistSummary, error) {
		params := url.Values{}
		params.Set("artist", artistName)
		params.Set("limit", strconv.Itoa(limit))
		params.Set("autocorrect", "1")

		var response similarArtistsResponse
		if err := c.get(ctx, op, params, &response); err != nil {
			return nil, err
		}

		artists := make([]catalog.ArtistSummary, 0, len(response.SimilarArtists.Artist))
		for _, a := range response.SimilarArtists.Artist {
			if a.Name == "" {
				continue
			}
			artists = append(artists, catalog.ArtistSummary{
				ID:    a.MBID,
				Name:  a.Name,
				URL:   a.URL,
				Image: pickImage(a.Image, 2),
				Match: float64(a.Match),
			})
		}
		return artists, nil
	})
}

// GetTopTracksByTag retrieves top tracks for a tag. Returned tracks carry the tag as genre.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracksByTag(ctx context.Context, tagName string, limit int) ([]track.Track, error) {
	const op = "tag.getTopTracks"
	if tagName == "" {
		return nil, c.fail(op, errors.New("tag name is required"))
	}
	limit = clampLimit(limit)

	key := cache.Key(op, tagName, strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]track.Track, error) {
		params := url.Values{}
		params.Set("tag", tagName)
		params.Set("limit", strconv.Itoa(limit))

		var response topTracksResponse
		if err := c.get(ctx, op, params, &response); err != nil {
			return nil, err
		}
		return convertTracks(response.Tracks.Track, []string{strings.ToLower(tagName)}), nil
	})
}

// GetTopTags retrieves the globally most used tags.
// Reference: https://www.last.fm/api/show/tag.getTopTags
func (c *Client) GetTopTags(ctx context.Context, limit int) ([]catalog.GenreTag, error) {
	const op = "tag.getTopTags"
	if limit <= 0 {
		limit = 50
	}

	key := cache.Key(op, strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]catalog.GenreTag, error) {
		var response topTagsResponse
		if err := c.get(ctx, op, url.Values{}, &response); err != nil {
			return nil, err
		}

		tags := make([]catalog.GenreTag, 0, len(response.TopTags.Tag))
		for i, t := range response.TopTags.Tag {
			if i >= limit {
				break
			}
			tags = append(tags, catalog.GenreTag{
				Name:   t.Name,
				Source: ProviderName,
				Count:  int(t.Count),
			})
		}
		return tags, nil
	})
}

// GetTrackTags retrieves the top tags of a single track.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTrackTags(ctx context.Context, artistName, trackName string, limit int) ([]Tag, error) {
	const op = "track.getTopTags"
	if trackName == "" || artistName == "" {
		return nil, c.fail(op, errors.New("track name and artist name are required"))
	}
	if limit <= 0 {
		limit = 10
	}

	key := cache.Key(op, artistName, trackName)
	tags, err := cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) ([]Tag, error) {
		params := url.Values{}
		params.Set("artist", artistName)
		params.Set("track", trackName)
		params.Set("autocorrect", "1")

		var response topTagsResponse
		if err := c.get(ctx, op, params, &response); err != nil {
			return nil, err
		}

		tags := make([]Tag, 0, len(response.TopTags.Tag))
		for _, t := range response.TopTags.Tag {
			tags = append(tags, Tag{Name: t.Name, Count: int(t.Count)})
		}
		return tags, nil
	})
	if err != nil {
		return nil, err
	}
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

// GetTrackInfo retrieves track details. Returns nil when Last.fm has no such track.
// Reference: https://www.last.fm/api/show/track.getInfo
func (c *Client) GetTrackInfo(ctx context.Context, artistName, trackName string) (*TrackInfo, error) {
	const op = "track.getInfo"
	if trackName == "" || artistName == "" {
		return nil, c.fail(op, errors.New("track name and artist name are required"))
	}

	key := cache.Key(op, artistName, trackName)
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) (*TrackInfo, error) {
		params := url.Values{}
		params.Set("artist", artistName)
		params.Set("track", trackName)
		params.Set("autocorrect", "1")

		var response trackInfoResponse
		if err := c.get(ctx, op, params, &response); err != nil {
			return nil, err
		}
		t := response.Track
		if t == nil {
			return nil, nil
		}

		info := &TrackInfo{
			Name:      t.Name,
			Artist:    t.Artist.Name,
			Duration:  int(t.Duration) / 1000,
			Playcount: int(t.Playcount),
			Listeners: int(t.Listeners),
			MBID:      t.MBID,
			URL:       t.URL,
			Tags:      tagNames(t.TopTags.Tag),
		}
		if info.Artist == "" {
			info.Artist = artistName
		}
		if t.Album != nil {
			info.Album = t.Album.Title
			info.Thumbnail = pickImage(t.Album.Image, 2)
		}
		if t.Wiki != nil {
			info.Wiki = t.Wiki.Summary
		}
		return info, nil
	})
}

// GetArtistInfo retrieves artist details. Returns nil when Last.fm has no such artist.
// Reference: https://www.last.fm/api/show/artist.getInfo
func (c *Client) GetArtistInfo(ctx context.Context, artistName string) (*ArtistInfo, error) {
	const op = "artist.getInfo"
	if artistName == "" {
		return nil, c.fail(op, errors.New("artist name is required"))
	}

	key := cache.Key(op, artistName)
	return cache.Fetch(ctx, c.cache, op, key, func(ctx context.Context) (*ArtistInfo, error) {
		params := url.Values{}
		params.Set("artist", artistName)
		params.Set("autocorrect", "1")

		var response artistInfoResponse
		if err := c.get(ctx, op, params, &response); err != nil {
			return nil, err
		}
		a := response.Artist
		if a == nil {
			return nil, nil
		}

		similar := make([]string, 0, 5)
		for _, s := range a.Similar.Artist {
			if len(similar) == 5 {
				break
			}
			similar = append(similar, s.Name)
		}

		return &ArtistInfo{
			Name:      a.Name,
			MBID:      a.MBID,
			URL:       a.URL,
			Image:     pickImage(a.Image, 3),
			Playcount: int(a.Stats.Playcount),
			Listeners: int(a.Stats.Listeners),
			Tags:      tagNames(a.Tags.Tag),
			Bio:       a.Bio.Summary,
			Similar:   similar,
		}, nil
	})
}

// get performs a rate-limited API call and decodes the response into out.
// Every failure is returned as a *catalog.ProviderError.
func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.fail(method, errors.Wrap(err, "rate limiter"))
	}

	params.Set("method", method)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return c.fail(method, errors.Wrap(err, "failed to create request"))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(ProviderName, method, "transport_error").Inc()
		return c.fail(method, errors.Wrap(err, "failed to send request"))
	}
	defer resp.Body.Close()
	metrics.ProviderRequests.WithLabelValues(ProviderName, method, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(method, errors.Wrap(err, "failed to read response body"))
	}

	// Check for Last.fm API errors
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return c.fail(method, errors.Newf("last.fm API error %d: %s", apiErr.Code, apiErr.Message))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(method, errors.Newf("unexpected status %d: %s", resp.StatusCode, truncate(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(method, errors.Wrap(err, "failed to parse response"))
	}
	return nil
}

func (c *Client) fail(method string, err error) error {
	zlog.Debug().Err(err).Msgf("last.fm %s failed", method)
	return catalog.NewProviderError(ProviderName, method, err)
}

func convertTracks(items []trackPayload, genres []string) []track.Track {
	tracks := make([]track.Track, 0, len(items))
	for _, t := range items {
		if t.Name == "" || t.Artist.Name == "" {
			continue
		}
		tracks = append(tracks, convertTrack(t, genres))
	}
	return tracks
}

// convertTrack converts a Last.fm track payload to the canonical Track.
func convertTrack(t trackPayload, genres []string) track.Track {
	id := t.MBID
	if id == "" {
		id = t.URL
	}
	if id == "" {
		id = fmt.Sprintf("%s:%s", t.Artist.Name, t.Name)
	}
	g := make([]string, len(genres))
	copy(g, genres)

	return track.Track{
		ID:          id,
		Name:        t.Name,
		Artist:      t.Artist.Name,
		ArtistID:    t.Artist.MBID,
		Thumbnail:   pickImage(t.Image, 2),
		Duration:    int(t.Duration),
		ExternalURL: t.URL,
		Source:      track.SourceLastFM,
		Genres:      g,
	}
}

func tagNames(tags []tagPayload) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
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

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
