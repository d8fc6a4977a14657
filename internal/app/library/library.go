// Package library imports provider tracks into the local song library.
package library

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/lastfm"
	"github.com/osa030/19dig/internal/infra/spotify"
	"github.com/osa030/19dig/internal/infra/store"
)

// PlaceholderThumbnail is stored for songs imported without artwork.
const PlaceholderThumbnail = "https://via.placeholder.com/300x300?text=No+Image"

const maxEnrichedTags = 5

// Store persists library songs.
type Store interface {
	InsertSong(ctx context.Context, song *store.Song) error
	FindSongByExternal(ctx context.Context, source track.Source, externalID string) (*store.Song, error)
}

// TagLookup returns community tags for a track.
type TagLookup interface {
	GetTrackTags(ctx context.Context, artist, name string, limit int) ([]lastfm.Tag, error)
}

// AddSongRequest describes a provider track to import.
type AddSongRequest struct {
	ExternalID  string   `json:"external_id" validate:"required"`
	Source      string   `json:"source" validate:"required,oneof=spotify lastfm local"`
	Name        string   `json:"name" validate:"required"`
	Artist      string   `json:"artist" validate:"required"`
	Album       string   `json:"album"`
	Thumbnail   string   `json:"thumbnail"`
	Duration    int      `json:"duration" validate:"gte=0"`
	PreviewURL  string   `json:"preview_url"`
	ExternalURL string   `json:"external_url"`
	Genres      []string `json:"genres"`
}

// Library adds songs to the local store.
type Library struct {
	store Store
	tags  TagLookup
	now   func() time.Time
}

// New creates a library. tags may be nil to disable genre enrichment.
func New(s Store, tags TagLookup) *Library {
	return &Library{store: s, tags: tags, now: time.Now}
}

// AddSong imports a song unless (source, external_id) already exists.
// created reports whether a new song was stored.
func (l *Library) AddSong(ctx context.Context, req AddSongRequest) (song *store.Song, created bool, err error) {
	src, ok := track.ParseSource(req.Source)
	if !ok || src == "" {
		return nil, false, errors.Newf("unknown source: %s", req.Source)
	}
	externalID := strings.TrimSpace(req.ExternalID)
	if src == track.SourceSpotify {
		externalID = spotify.NormalizeTrackID(externalID)
	}

	existing, err := l.store.FindSongByExternal(ctx, src, externalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, errors.Wrap(err, "failed to look up song")
	}

	song = &store.Song{
		Track: track.Track{
			ID:          uuid.NewString(),
			Name:        req.Name,
			Artist:      req.Artist,
			Album:       req.Album,
			Thumbnail:   req.Thumbnail,
			Duration:    req.Duration,
			PreviewURL:  req.PreviewURL,
			ExternalURL: req.ExternalURL,
			Source:      src,
			Genres:      req.Genres,
		},
		ExternalID: externalID,
		CreatedAt:  l.now(),
	}
	if song.Thumbnail == "" {
		song.Thumbnail = PlaceholderThumbnail
	}
	if song.ExternalURL == "" && src == track.SourceSpotify {
		song.ExternalURL = spotify.TrackURL(externalID)
	}
	if len(song.Genres) == 0 {
		song.Genres = l.enrich(ctx, req.Artist, req.Name)
	}

	err = l.store.InsertSong(ctx, song)
	if errors.Is(err, store.ErrConflict) {
		// added concurrently
		existing, err := l.store.FindSongByExternal(ctx, src, externalID)
		if err != nil {
			return nil, false, errors.Wrap(err, "failed to look up song")
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to add song")
	}

	zlog.Info().Str("id", song.ID).Str("source", string(src)).Str("external_id", externalID).Msg("song added")
	return song, true, nil
}

// enrich looks up genres for songs imported without any. Failures leave the song untagged.
func (l *Library) enrich(ctx context.Context, artist, name string) []string {
	if l.tags == nil {
		return []string{}
	}
	tags, err := l.tags.GetTrackTags(ctx, artist, name, maxEnrichedTags)
	if err != nil {
		zlog.Debug().Err(err).Str("artist", artist).Str("track", name).Msg("tag lookup failed")
		return []string{}
	}
	genres := make([]string, 0, len(tags))
	for _, t := range tags {
		genres = append(genres, strings.ToLower(t.Name))
	}
	return genres
}
