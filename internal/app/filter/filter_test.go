package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
)

func tr(id, name, artist string, duration int) track.Track {
	return track.Track{ID: id, Name: name, Artist: artist, Duration: duration}
}

func ids(tracks []track.Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.ID)
	}
	return out
}

func noShuffle(c *Chain) *Chain {
	c.shuffle = func(int, func(i, j int)) {}
	return c
}

func TestDedup(t *testing.T) {
	tracks := []track.Track{
		tr("a1", "Song", "Artist", 0),
		tr("b1", "song", "ARTIST", 0),
		tr("c1", "Song", "Other Artist", 0),
		tr("d1", "Song", "", 0),
		tr("e1", "SONG", "", 0),
	}

	out := Dedup(tracks)

	assert.Equal(t, []string{"a1", "c1", "d1"}, ids(out))
	keys := make(map[string]struct{})
	for _, tk := range out {
		_, dup := keys[tk.IdentityKey()]
		assert.False(t, dup, "identity key %q repeated", tk.IdentityKey())
		keys[tk.IdentityKey()] = struct{}{}
	}
}

func TestDurationLimitFilter_Check(t *testing.T) {
	prefs := preference.New("u1", time.Now())
	prefs.RecommendationSettings.MinSongLength = 60
	prefs.RecommendationSettings.MaxSongLength = 300

	tests := []struct {
		name         string
		duration     int
		shouldReject bool
	}{
		{name: "Within limits", duration: 200},
		{name: "Exact min", duration: 60},
		{name: "Exact max", duration: 300},
		{name: "Too short", duration: 59, shouldReject: true},
		{name: "Too long", duration: 301, shouldReject: true},
		{name: "Unknown duration", duration: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			fc := NewContext(prefs)
			require.True(t, f.AppliesTo(fc))

			result := f.Check(context.Background(), tr("x", "n", "a", tt.duration), fc)
			if tt.shouldReject {
				assert.False(t, result.Accepted)
				assert.Equal(t, "duration_limit_exceeded", result.Code)
			} else {
				assert.True(t, result.Accepted)
			}
		})
	}
}

func TestDurationLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{name: "empty", settings: map[string]any{}},
		{name: "valid range", settings: map[string]any{"min_seconds": 30, "max_seconds": 900}},
		{name: "min greater than max", settings: map[string]any{"min_seconds": 600, "max_seconds": 60}, wantErr: true},
		{name: "negative", settings: map[string]any{"min_seconds": -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDurationLimitFilter().ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationLimitFilter_SkippedWithoutPreferences(t *testing.T) {
	f := NewDurationLimitFilter()
	assert.False(t, f.AppliesTo(NewContext(nil)))

	require.NoError(t, f.ValidateConfig(map[string]any{"max_seconds": 600}))
	fc := NewContext(nil)
	assert.True(t, f.AppliesTo(fc))
	assert.False(t, f.Check(context.Background(), tr("x", "n", "a", 601), fc).Accepted)
}

func TestExplicitFilter(t *testing.T) {
	clean := preference.New("u1", time.Now())
	clean.RecommendationSettings.IncludeExplicit = false
	open := preference.New("u2", time.Now())

	explicit := track.Track{ID: "e", Name: "n", Artist: "a", Explicit: true}

	t.Run("user mode follows the setting", func(t *testing.T) {
		f := GetRegistered()["explicit_filter"]()
		require.NoError(t, f.ValidateConfig(nil))

		assert.True(t, f.AppliesTo(NewContext(clean)))
		assert.False(t, f.AppliesTo(NewContext(open)))
		assert.False(t, f.AppliesTo(NewContext(nil)))
		assert.Equal(t, Reject("explicit_content"), f.Check(context.Background(), explicit, NewContext(clean)))
	})

	t.Run("always mode", func(t *testing.T) {
		f := &ExplicitFilter{}
		require.NoError(t, f.ValidateConfig(map[string]any{"mode": "always"}))
		assert.True(t, f.AppliesTo(NewContext(nil)))
	})

	t.Run("invalid mode", func(t *testing.T) {
		f := &ExplicitFilter{}
		assert.Error(t, f.ValidateConfig(map[string]any{"mode": "sometimes"}))
	})
}

func TestMarketFilter(t *testing.T) {
	playable, blocked := true, false
	f := NewMarketFilter()
	fc := NewContext(nil)

	assert.True(t, f.Check(context.Background(), track.Track{IsPlayable: &playable}, fc).Accepted)
	assert.True(t, f.Check(context.Background(), track.Track{}, fc).Accepted)
	assert.Equal(t, Reject("market_restriction"), f.Check(context.Background(), track.Track{IsPlayable: &blocked}, fc))
}

func TestNewDefaultChain(t *testing.T) {
	t.Run("built-in order", func(t *testing.T) {
		c, err := NewDefaultChain(nil)
		require.NoError(t, err)

		var names []string
		for _, f := range c.Filters() {
			names = append(names, f.Name())
		}
		assert.Equal(t, []string{"duplicate_track_filter", "disliked_filter", "duration_limit_filter"}, names)
	})

	t.Run("optional filter appended", func(t *testing.T) {
		c, err := NewDefaultChain(map[string]map[string]any{"explicit_filter": {}})
		require.NoError(t, err)
		assert.Len(t, c.Filters(), 4)
		assert.Equal(t, "explicit_filter", c.Filters()[3].Name())
	})

	t.Run("market filter only when configured", func(t *testing.T) {
		blocked := false
		tracks := []track.Track{{ID: "m", Name: "n", Artist: "a", Duration: 200, IsPlayable: &blocked}}

		c, err := NewDefaultChain(nil)
		require.NoError(t, err)
		assert.Len(t, c.Apply(context.Background(), tracks, nil), 1)

		c, err = NewDefaultChain(map[string]map[string]any{"market_filter": {}, "explicit_filter": {}})
		require.NoError(t, err)
		var names []string
		for _, f := range c.Filters() {
			names = append(names, f.Name())
		}
		assert.Equal(t, []string{"duplicate_track_filter", "disliked_filter", "duration_limit_filter", "explicit_filter", "market_filter"}, names)
		assert.Empty(t, c.Apply(context.Background(), tracks, nil))
	})

	t.Run("built-in reconfigured in place", func(t *testing.T) {
		c, err := NewDefaultChain(map[string]map[string]any{"duration_limit_filter": {"max_seconds": 900}})
		require.NoError(t, err)
		assert.Len(t, c.Filters(), 3)
	})

	t.Run("unknown filter", func(t *testing.T) {
		_, err := NewDefaultChain(map[string]map[string]any{"nope": {}})
		assert.Error(t, err)
	})
}

func TestChain_Run(t *testing.T) {
	prefs := preference.New("u1", time.Now())
	prefs.Dislike("bad", time.Now())

	tracks := []track.Track{
		tr("1", "One", "A", 200),
		tr("bad", "Bad", "A", 200),
		tr("2", "one", "a", 200),
		tr("3", "Short", "A", 10),
		tr("4", "Unknown", "A", 0),
		tr("5", "Five", "B", 200),
	}

	t.Run("with preferences", func(t *testing.T) {
		c, err := NewDefaultChain(nil)
		require.NoError(t, err)
		out := noShuffle(c).Run(context.Background(), tracks, prefs, 10)
		assert.Equal(t, []string{"1", "4", "5"}, ids(out))
	})

	t.Run("without preferences", func(t *testing.T) {
		c, err := NewDefaultChain(nil)
		require.NoError(t, err)
		out := noShuffle(c).Run(context.Background(), tracks, nil, 10)
		assert.Equal(t, []string{"1", "bad", "3", "4", "5"}, ids(out))
	})

	t.Run("truncates", func(t *testing.T) {
		c, err := NewDefaultChain(nil)
		require.NoError(t, err)
		out := c.Run(context.Background(), tracks, nil, 2)
		assert.Len(t, out, 2)
	})

	t.Run("shuffle keeps the same set", func(t *testing.T) {
		c, err := NewDefaultChain(nil)
		require.NoError(t, err)
		out := c.Run(context.Background(), tracks, nil, 10)
		assert.ElementsMatch(t, []string{"1", "bad", "3", "4", "5"}, ids(out))
	})
}
