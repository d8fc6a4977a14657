// Package interaction records listening events into the per-user preference document.
package interaction

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/infra/metrics"
	"github.com/osa030/19dig/internal/infra/store"
)

// Action is a user interaction with a song.
type Action string

const (
	ActionPlay    Action = "play"
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionPlay, ActionLike, ActionDislike:
		return a, true
	}
	return "", false
}

// Store persists preferences and resolves songs.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (*preference.UserPreferences, error)
	SavePreferences(ctx context.Context, p *preference.UserPreferences) error
	GetSong(ctx context.Context, id string) (*store.Song, error)
	IncrementPlayCount(ctx context.Context, id string) error
}

// Service updates user preferences from interactions and edits.
// Writes for one user are serialized within the process.
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
	locks    *keyedMutex
}

// New creates a new interaction service.
func New(s Store) *Service {
	return &Service{
		store:    s,
		validate: validator.New(),
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
}

// Play appends a play event and updates the listening statistics.
func (s *Service) Play(ctx context.Context, userID, songID string, playDuration int, completed bool) error {
	if playDuration < 0 {
		return errors.Wrap(preference.ErrInvalidUpdate, "play_duration must not be negative")
	}
	return s.update(ctx, userID, ActionPlay, func(p *preference.UserPreferences, now time.Time) error {
		song, err := s.song(ctx, songID)
		if err != nil {
			return err
		}
		var (
			genres   []string
			duration int
		)
		if song != nil {
			genres, duration = song.Genres, song.Duration
		}
		p.RecordPlay(preference.HistoryEntry{
			SongID:       songID,
			PlayedAt:     now,
			PlayDuration: playDuration,
			Completed:    completed,
		}, genres, duration)

		if song != nil {
			if err := s.store.IncrementPlayCount(ctx, songID); err != nil {
				zlog.Warn().Err(err).Str("song", songID).Msg("failed to increment play count")
			}
		}
		return nil
	})
}

// Like unions the song's genres into the favorite genres.
func (s *Service) Like(ctx context.Context, userID, songID string) error {
	return s.update(ctx, userID, ActionLike, func(p *preference.UserPreferences, now time.Time) error {
		song, err := s.song(ctx, songID)
		if err != nil {
			return err
		}
		if song != nil {
			p.AddGenres(song.Genres)
		}
		p.UpdatedAt = now
		return nil
	})
}

// Dislike records a dislike for the song.
func (s *Service) Dislike(ctx context.Context, userID, songID string) error {
	return s.update(ctx, userID, ActionDislike, func(p *preference.UserPreferences, now time.Time) error {
		p.Dislike(songID, now)
		return nil
	})
}

// Record dispatches an interaction by action.
func (s *Service) Record(ctx context.Context, userID, songID string, action Action, playDuration int, completed bool) error {
	switch action {
	case ActionPlay:
		return s.Play(ctx, userID, songID, playDuration, completed)
	case ActionLike:
		return s.Like(ctx, userID, songID)
	case ActionDislike:
		return s.Dislike(ctx, userID, songID)
	}
	return errors.Wrapf(preference.ErrInvalidUpdate, "invalid action: %s", action)
}

// Get returns the user's preferences, creating and persisting defaults on first access.
func (s *Service) Get(ctx context.Context, userID string) (*preference.UserPreferences, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	p, created, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.store.SavePreferences(ctx, p); err != nil {
			return nil, errors.Wrap(err, "failed to save preferences")
		}
	}
	return p, nil
}

// Update replaces the editable fields present in the patch.
func (s *Service) Update(ctx context.Context, userID string, patch preference.Patch) (*preference.UserPreferences, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, errors.Wrapf(preference.ErrInvalidUpdate, "validation failed: %v", err)
	}

	var out *preference.UserPreferences
	err := s.update(ctx, userID, "update", func(p *preference.UserPreferences, now time.Time) error {
		p.Apply(patch, now)
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) update(ctx context.Context, userID string, action Action, apply func(*preference.UserPreferences, time.Time) error) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	p, _, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := apply(p, s.now()); err != nil {
		return err
	}
	if err := s.store.SavePreferences(ctx, p); err != nil {
		return errors.Wrap(err, "failed to save preferences")
	}

	metrics.InteractionsTotal.WithLabelValues(string(action)).Inc()
	zlog.Debug().Str("user", userID).Str("action", string(action)).Msg("preferences updated")
	return nil
}

func (s *Service) load(ctx context.Context, userID string) (*preference.UserPreferences, bool, error) {
	p, err := s.store.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return preference.New(userID, s.now()), true, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to load preferences")
	}
	return p, false, nil
}

// song resolves a song, returning nil for unknown IDs.
func (s *Service) song(ctx context.Context, songID string) (*store.Song, error) {
	song, err := s.store.GetSong(ctx, songID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load song")
	}
	return song, nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
