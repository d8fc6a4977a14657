package aggregator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19dig/internal/app/filter"
	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/store"
)

var errProvider = errors.New("provider unavailable")

// fakeSource returns tracks named "<source>-<op>-<n>" and records the calls made.
type fakeSource struct {
	name    track.Source
	fail    map[string]error
	delay   time.Duration
	tags    []catalog.GenreTag
	artists []catalog.ArtistSummary
	fixed   []track.Track

	mu    sync.Mutex
	calls []string
}

func newFake(name track.Source) *fakeSource {
	return &fakeSource{name: name, fail: map[string]error{}}
}

func (f *fakeSource) call(ctx context.Context, op string, limit int) ([]track.Track, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", op, limit))
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[op]; err != nil {
		return nil, err
	}
	if f.fixed != nil {
		return f.fixed, nil
	}
	out := make([]track.Track, 0, limit)
	for i := range limit {
		name := fmt.Sprintf("%s-%s-%d", f.name, op, i)
		out = append(out, track.Track{ID: name, Name: name, Artist: "artist", Source: f.name, Duration: 200})
	}
	return out, nil
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSource) Name() track.Source { return f.name }

func (f *fakeSource) Search(ctx context.Context, _ string, limit int) ([]track.Track, error) {
	return f.call(ctx, "search", limit)
}

func (f *fakeSource) SimilarTracks(ctx context.Context, artist, name string, limit int) ([]track.Track, error) {
	return f.call(ctx, "similar["+name+"]", limit)
}

func (f *fakeSource) SimilarArtists(context.Context, string, int) ([]catalog.ArtistSummary, error) {
	if err := f.fail["artists"]; err != nil {
		return nil, err
	}
	return f.artists, nil
}

func (f *fakeSource) TopByTag(ctx context.Context, tag string, limit int) ([]track.Track, error) {
	return f.call(ctx, "tag["+tag+"]", limit)
}

func (f *fakeSource) Genres(context.Context, int) ([]catalog.GenreTag, error) {
	if err := f.fail["genres"]; err != nil {
		return nil, err
	}
	return f.tags, nil
}

func (f *fakeSource) RecommendationsBySeed(ctx context.Context, seeds catalog.Seeds, limit int) ([]track.Track, error) {
	op := fmt.Sprintf("seed%v%v", seeds.Genres, seeds.Artists)
	return f.call(ctx, op, limit)
}

type fakeLocal struct {
	*fakeSource
	songs   map[string]store.Song
	queries []store.GenreQuery
}

func newLocal() *fakeLocal {
	return &fakeLocal{fakeSource: newFake(track.SourceLocal), songs: map[string]store.Song{}}
}

func (f *fakeLocal) Top(ctx context.Context, limit int) ([]track.Track, error) {
	return f.call(ctx, "top", limit)
}

func (f *fakeLocal) ByGenres(ctx context.Context, q store.GenreQuery) ([]track.Track, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.call(ctx, fmt.Sprintf("genres%v", q.Genres), q.Limit)
}

func (f *fakeLocal) Songs(_ context.Context, ids []string) ([]store.Song, error) {
	var out []store.Song
	for _, id := range ids {
		if s, ok := f.songs[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type prefReader map[string]*preference.UserPreferences

func (r prefReader) GetPreferences(_ context.Context, userID string) (*preference.UserPreferences, error) {
	p, ok := r[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func newAggregator(t *testing.T, a, b *fakeSource, local *fakeLocal, prefs prefReader) *Aggregator {
	t.Helper()
	chain, err := filter.NewDefaultChain(nil)
	require.NoError(t, err)
	return New(a, b, local, prefs, chain, Config{BranchTimeout: 200 * time.Millisecond})
}

func countBySource(tracks []track.Track) map[track.Source]int {
	out := map[track.Source]int{}
	for _, t := range tracks {
		out[t.Source]++
	}
	return out
}

func TestSearchAll(t *testing.T) {
	t.Run("fans out with shares", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		agg := newAggregator(t, a, b, local, nil)

		out := agg.SearchAll(context.Background(), "love", 20, "")

		assert.Equal(t, []string{"search:10"}, a.Calls())
		assert.Equal(t, []string{"search:5"}, b.Calls())
		assert.Equal(t, []string{"search:5"}, local.Calls())
		assert.Len(t, out, 20)
	})

	t.Run("provider A failing", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		a.fail["search"] = catalog.NewProviderError("spotify", "search", errProvider)
		agg := newAggregator(t, a, b, local, nil)

		out := agg.SearchAll(context.Background(), "love", 20, "")

		assert.Len(t, out, 10)
		counts := countBySource(out)
		assert.Equal(t, 0, counts[track.SourceSpotify])
		assert.Equal(t, 5, counts[track.SourceLastFM])
		assert.Equal(t, 5, counts[track.SourceLocal])
	})

	t.Run("all failing", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		a.fail["search"] = errProvider
		b.fail["search"] = errProvider
		local.fail["search"] = errProvider
		agg := newAggregator(t, a, b, local, nil)

		out := agg.SearchAll(context.Background(), "love", 20, "")
		assert.Empty(t, out)
	})

	t.Run("single source", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		agg := newAggregator(t, a, b, local, nil)

		out := agg.SearchAll(context.Background(), "love", 8, track.SourceLastFM)

		assert.Empty(t, a.Calls())
		assert.Equal(t, []string{"search:8"}, b.Calls())
		assert.Empty(t, local.Calls())
		assert.Len(t, out, 8)
	})

	t.Run("slow branch times out", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		a.delay = 5 * time.Second
		agg := newAggregator(t, a, b, local, nil)

		start := time.Now()
		out := agg.SearchAll(context.Background(), "love", 20, "")

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, 0, countBySource(out)[track.SourceSpotify])
		assert.Len(t, out, 10)
	})
}

func TestSearchAll_Dedup(t *testing.T) {
	a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
	a.fixed = []track.Track{{ID: "a1", Name: "Song", Artist: "Band", Source: track.SourceSpotify}}
	b.fixed = []track.Track{
		{ID: "b1", Name: "SONG", Artist: "band", Source: track.SourceLastFM},
		{ID: "b2", Name: "Song", Artist: "Cover Band", Source: track.SourceLastFM},
	}
	local.fixed = []track.Track{{ID: "l1", Name: "song", Artist: "Band", Source: track.SourceLocal}}
	agg := newAggregator(t, a, b, local, nil)

	out := agg.SearchAll(context.Background(), "song", 20, "")

	var got []string
	for _, tk := range out {
		got = append(got, tk.ID)
	}
	assert.ElementsMatch(t, []string{"a1", "b2"}, got)
}

func TestPersonalizedRecommendations(t *testing.T) {
	now := time.Now()

	t.Run("no preferences equals popular", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		agg := newAggregator(t, a, b, local, prefReader{})

		out, err := agg.PersonalizedRecommendations(context.Background(), "nobody", 20)
		require.NoError(t, err)

		assert.Len(t, out, 20)
		assert.ElementsMatch(t, []string{"seed[pop][]:7", "seed[rock][]:7", "seed[hip-hop][]:7"}, a.Calls())
		assert.Equal(t, []string{"top:10"}, local.Calls())
		assert.Empty(t, b.Calls())
	})

	t.Run("plans every branch", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		local.songs["s1"] = store.Song{Track: track.Track{ID: "s1", Name: "First", Artist: "X", Genres: []string{"jazz"}}}
		local.songs["s2"] = store.Song{Track: track.Track{ID: "s2", Name: "Second", Artist: "Y", Genres: []string{"soul"}}}

		prefs := preference.New("u1", now)
		prefs.FavoriteGenres = []string{"rock", "pop", "blues"}
		prefs.FavoriteArtists = []preference.FavoriteArtist{{Name: "A", ExternalID: "art1", Source: "spotify"}}
		prefs.ListeningHistory = []preference.HistoryEntry{
			{SongID: "s1", PlayedAt: now.Add(-time.Hour)},
			{SongID: "s2", PlayedAt: now},
		}
		prefs.Dislike("spotify-seed[rock pop blues][]-0", now)
		agg := newAggregator(t, a, b, local, prefReader{"u1": prefs})

		out, err := agg.PersonalizedRecommendations(context.Background(), "u1", 20)
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"seed[rock pop blues][]:7", "seed[][art1]:4"}, a.Calls())
		assert.ElementsMatch(t, []string{"similar[Second]:3", "similar[First]:3", "tag[rock]:2", "tag[pop]:2"}, b.Calls())
		require.Len(t, local.queries, 2)
		assert.Equal(t, store.OrderByPlayCount, local.queries[0].Order)
		assert.Equal(t, 7, local.queries[0].Limit)
		assert.Equal(t, store.OrderByPopularity, local.queries[1].Order)
		assert.Equal(t, 4, local.queries[1].Limit)
		assert.Contains(t, local.queries[1].Exclude, "s1")
		assert.Contains(t, local.queries[1].Exclude, "s2")

		assert.LessOrEqual(t, len(out), 20)
		for _, tk := range out {
			assert.NotEqual(t, "spotify-seed[rock pop blues][]-0", tk.ID)
		}
	})

	t.Run("all branches failing falls back to popular", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		a.fail["seed[rock][]"] = errProvider
		b.fail["tag[rock]"] = errProvider
		local.fail["genres[rock]"] = errProvider

		prefs := preference.New("u1", now)
		prefs.FavoriteGenres = []string{"rock"}
		agg := newAggregator(t, a, b, local, prefReader{"u1": prefs})

		out, err := agg.PersonalizedRecommendations(context.Background(), "u1", 20)
		require.NoError(t, err)

		assert.Contains(t, a.Calls(), "seed[pop][]:7")
		assert.Contains(t, local.Calls(), "top:10")
		assert.NotEmpty(t, out)
	})

	t.Run("one sub-call of B failing keeps the rest", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		b.fail["tag[rock]"] = errProvider

		prefs := preference.New("u1", now)
		prefs.FavoriteGenres = []string{"rock", "pop"}
		agg := newAggregator(t, a, b, local, prefReader{"u1": prefs})

		out, err := agg.PersonalizedRecommendations(context.Background(), "u1", 20)
		require.NoError(t, err)
		assert.Positive(t, countBySource(out)[track.SourceLastFM])
	})

	t.Run("artist seeds failing keeps genre seeds of A", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		a.fail["seed[][bad]"] = errProvider

		prefs := preference.New("u1", now)
		prefs.FavoriteGenres = []string{"rock"}
		prefs.FavoriteArtists = []preference.FavoriteArtist{{Name: "Gone", ExternalID: "bad", Source: "spotify"}}
		agg := newAggregator(t, a, b, local, prefReader{"u1": prefs})

		out, err := agg.PersonalizedRecommendations(context.Background(), "u1", 30)
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"seed[rock][]:10", "seed[][bad]:5"}, a.Calls())
		assert.Equal(t, 10, countBySource(out)[track.SourceSpotify])
	})

	t.Run("replayed history seeds distinct tracks", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		for _, id := range []string{"x", "y", "z"} {
			local.songs[id] = store.Song{Track: track.Track{ID: id, Name: "N" + id, Artist: "A" + id}}
		}

		prefs := preference.New("u1", now)
		for i, id := range []string{"z", "y", "x", "x", "x"} {
			prefs.ListeningHistory = append(prefs.ListeningHistory, preference.HistoryEntry{
				SongID:   id,
				PlayedAt: now.Add(time.Duration(i) * time.Minute),
			})
		}
		agg := newAggregator(t, a, b, local, prefReader{"u1": prefs})

		_, err := agg.PersonalizedRecommendations(context.Background(), "u1", 30)
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"similar[Nx]:4", "similar[Ny]:4", "similar[Nz]:4"}, b.Calls())
	})
}

func TestPopularRecommendations(t *testing.T) {
	a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
	agg := newAggregator(t, a, b, local, nil)

	out := agg.PopularRecommendations(context.Background(), 20)

	assert.ElementsMatch(t, []string{"seed[pop][]:7", "seed[rock][]:7", "seed[hip-hop][]:7"}, a.Calls())
	assert.Equal(t, []string{"top:10"}, local.Calls())
	assert.Len(t, out, 20)
}

func TestPopularByGenre(t *testing.T) {
	t.Run("enough from A", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		agg := newAggregator(t, a, b, local, nil)

		out := agg.PopularByGenre(context.Background(), "jazz", 10)
		assert.Len(t, out, 10)
		assert.Empty(t, b.Calls())
	})

	t.Run("topped up from B", func(t *testing.T) {
		a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
		a.fail["tag[jazz]"] = errProvider
		agg := newAggregator(t, a, b, local, nil)

		out := agg.PopularByGenre(context.Background(), "jazz", 10)
		assert.Len(t, out, 10)
		assert.Equal(t, []string{"tag[jazz]:10"}, b.Calls())
	})
}

func TestGenres(t *testing.T) {
	a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
	a.tags = []catalog.GenreTag{{Name: "rock", Source: "spotify"}, {Name: "jazz", Source: "spotify"}}
	b.tags = []catalog.GenreTag{{Name: "Rock", Source: "lastfm", Count: 10}, {Name: "seen live", Source: "lastfm", Count: 3}}
	local.tags = []catalog.GenreTag{{Name: "JAZZ", Source: "local", Count: 1}, {Name: "city pop", Source: "local", Count: 1}}
	agg := newAggregator(t, a, b, local, nil)

	genres, total := agg.Genres(context.Background())

	assert.Equal(t, 4, total)
	assert.Equal(t, []catalog.GenreTag{
		{Name: "rock", Source: "spotify"},
		{Name: "jazz", Source: "spotify"},
		{Name: "seen live", Source: "lastfm", Count: 3},
		{Name: "city pop", Source: "local", Count: 1},
	}, genres)
}

func TestGenres_SourceFailing(t *testing.T) {
	a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
	a.fail["genres"] = errProvider
	b.tags = []catalog.GenreTag{{Name: "rock", Source: "lastfm"}}
	agg := newAggregator(t, a, b, local, nil)

	genres, total := agg.Genres(context.Background())
	assert.Equal(t, 1, total)
	assert.Equal(t, "rock", genres[0].Name)
}

func TestMergeGenres(t *testing.T) {
	var tags []catalog.GenreTag
	for i := range 150 {
		tags = append(tags, catalog.GenreTag{Name: fmt.Sprintf("g%d", i)})
	}
	tags = append(tags, catalog.GenreTag{Name: "G1"}, catalog.GenreTag{Name: " "})

	merged, total := MergeGenres(tags, 100)
	assert.Len(t, merged, 100)
	assert.Equal(t, 150, total)
	assert.Equal(t, "g0", merged[0].Name)
}

func TestSimilarArtists(t *testing.T) {
	a, b, local := newFake(track.SourceSpotify), newFake(track.SourceLastFM), newLocal()
	a.artists = []catalog.ArtistSummary{{Name: "Daft Punk", ID: "sp1"}, {Name: "Justice", ID: "sp2"}}
	b.artists = []catalog.ArtistSummary{{Name: "justice", Match: 0.9}, {Name: "Cassius", Match: 0.7}}
	agg := newAggregator(t, a, b, local, nil)

	t.Run("both providers", func(t *testing.T) {
		out := agg.SimilarArtists(context.Background(), "Air", 10, "")
		var names []string
		for _, ar := range out {
			names = append(names, ar.Name)
		}
		assert.Equal(t, []string{"justice", "Cassius", "Daft Punk"}, names)
	})

	t.Run("limit", func(t *testing.T) {
		assert.Len(t, agg.SimilarArtists(context.Background(), "Air", 1, ""), 1)
	})

	t.Run("single provider failing", func(t *testing.T) {
		a.fail["artists"] = errProvider
		defer delete(a.fail, "artists")
		assert.Empty(t, agg.SimilarArtists(context.Background(), "Air", 10, track.SourceSpotify))
	})
}
