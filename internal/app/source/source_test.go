package source

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/store"
)

type fakeLibrary struct {
	songs   []store.Song
	genres  []store.GenreCount
	lastQ   store.GenreQuery
	failure error
}

func (f *fakeLibrary) SearchSongs(_ context.Context, _ string, _ int) ([]store.Song, error) {
	return f.songs, f.failure
}

func (f *fakeLibrary) SongsByGenres(_ context.Context, q store.GenreQuery) ([]store.Song, error) {
	f.lastQ = q
	return f.songs, f.failure
}

func (f *fakeLibrary) TopSongs(_ context.Context, _ int) ([]store.Song, error) {
	return f.songs, f.failure
}

func (f *fakeLibrary) GetSongs(_ context.Context, _ []string) ([]store.Song, error) {
	return f.songs, f.failure
}

func (f *fakeLibrary) Genres(_ context.Context) ([]store.GenreCount, error) {
	return f.genres, f.failure
}

func TestLocal_Unsupported(t *testing.T) {
	local := NewLocal(&fakeLibrary{})
	ctx := context.Background()

	_, err := local.SimilarTracks(ctx, "a", "b", 10)
	assert.ErrorIs(t, err, catalog.ErrUnsupported)
	_, err = local.SimilarArtists(ctx, "a", 10)
	assert.ErrorIs(t, err, catalog.ErrUnsupported)
	_, err = local.RecommendationsBySeed(ctx, catalog.Seeds{Genres: []string{"rock"}}, 10)
	assert.ErrorIs(t, err, catalog.ErrUnsupported)
}

func TestLocal_TopByTag(t *testing.T) {
	lib := &fakeLibrary{songs: []store.Song{
		{Track: track.Track{ID: "1", Name: "Song", Genres: []string{"rock"}}},
	}}
	local := NewLocal(lib)

	tracks, err := local.TopByTag(context.Background(), "rock", 5)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, track.SourceLocal, tracks[0].Source)
	assert.Equal(t, "Unknown", tracks[0].Artist)
	assert.Equal(t, []string{"rock"}, lib.lastQ.Genres)
	assert.Equal(t, store.OrderByPlayCount, lib.lastQ.Order)
	assert.Equal(t, 5, lib.lastQ.Limit)
}

func TestLocal_Genres(t *testing.T) {
	local := NewLocal(&fakeLibrary{genres: []store.GenreCount{
		{Genre: "rock", Count: 3},
		{Genre: "jazz", Count: 1},
	}})

	tags, err := local.Genres(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []catalog.GenreTag{{Name: "rock", Source: "local", Count: 3}}, tags)
}

func TestLocal_StoreFailure(t *testing.T) {
	local := NewLocal(&fakeLibrary{failure: errors.New("disk I/O error")})

	_, err := local.Search(context.Background(), "x", 10)
	var perr *catalog.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "local", perr.Provider)
	assert.Equal(t, "search", perr.Operation)
}

type fakeLastFM struct{}

func (fakeLastFM) SearchTracks(context.Context, string, int) ([]track.Track, error) {
	return []track.Track{{ID: "x", Source: track.SourceLastFM}}, nil
}

func (fakeLastFM) GetSimilarTracks(context.Context, string, string, int) ([]track.Track, error) {
	return nil, nil
}

func (fakeLastFM) GetSimilarArtists(context.Context, string, int) ([]catalog.ArtistSummary, error) {
	return nil, nil
}

func (fakeLastFM) GetTopTracksByTag(context.Context, string, int) ([]track.Track, error) {
	return nil, nil
}

func (fakeLastFM) GetTopTags(context.Context, int) ([]catalog.GenreTag, error) {
	return nil, nil
}

func TestLastFM_RecommendationsBySeedUnsupported(t *testing.T) {
	src := NewLastFM(fakeLastFM{})
	assert.Equal(t, track.SourceLastFM, src.Name())

	_, err := src.RecommendationsBySeed(context.Background(), catalog.Seeds{Genres: []string{"rock"}}, 10)
	assert.ErrorIs(t, err, catalog.ErrUnsupported)
}

type fakeSpotify struct {
	seeds catalog.Seeds
}

func (f *fakeSpotify) Search(context.Context, string, int) ([]track.Track, error) { return nil, nil }

func (f *fakeSpotify) Recommendations(_ context.Context, seeds catalog.Seeds, _ int) ([]track.Track, error) {
	f.seeds = seeds
	return []track.Track{{ID: "s1", Source: track.SourceSpotify}}, nil
}

func (f *fakeSpotify) SimilarTracks(context.Context, string, string, int) ([]track.Track, error) {
	return nil, nil
}

func (f *fakeSpotify) SimilarArtists(context.Context, string, int) ([]catalog.ArtistSummary, error) {
	return nil, nil
}

func (f *fakeSpotify) GenreSeeds(context.Context) ([]string, error) {
	return []string{"acoustic", "ambient", "blues"}, nil
}

func TestSpotify_TopByTagSeedsGenre(t *testing.T) {
	api := &fakeSpotify{}
	src := NewSpotify(api)

	tracks, err := src.TopByTag(context.Background(), "rock", 10)
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
	assert.Equal(t, []string{"rock"}, api.seeds.Genres)

	tags, err := src.Genres(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []catalog.GenreTag{
		{Name: "acoustic", Source: "spotify"},
		{Name: "ambient", Source: "spotify"},
	}, tags)
}

type flakySource struct {
	Local
	calls    int
	err      error
	recCalls int
	recErr   error
}

func (f *flakySource) Name() track.Source { return track.SourceSpotify }

func (f *flakySource) Search(context.Context, string, int) ([]track.Track, error) {
	f.calls++
	return nil, f.err
}

func (f *flakySource) RecommendationsBySeed(context.Context, catalog.Seeds, int) ([]track.Track, error) {
	f.recCalls++
	return []track.Track{{ID: "r"}}, f.recErr
}

func TestBreaker(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 2, MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute}

	t.Run("opens after consecutive failures", func(t *testing.T) {
		src := &flakySource{err: errors.New("503")}
		b := WithBreaker(src, cfg)

		for range 2 {
			_, err := b.Search(context.Background(), "q", 1)
			require.Error(t, err)
		}
		assert.Equal(t, gobreaker.StateOpen, b.State(OpSearch))

		_, err := b.Search(context.Background(), "q", 1)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		var perr *catalog.ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "spotify", perr.Provider)
		assert.Equal(t, 2, src.calls)
	})

	t.Run("unsupported does not trip", func(t *testing.T) {
		src := &flakySource{err: catalog.NewProviderError("spotify", "search", catalog.ErrUnsupported)}
		b := WithBreaker(src, cfg)

		for range 5 {
			_, err := b.Search(context.Background(), "q", 1)
			require.ErrorIs(t, err, catalog.ErrUnsupported)
		}
		assert.Equal(t, gobreaker.StateClosed, b.State(OpSearch))
		assert.Equal(t, 5, src.calls)
	})

	t.Run("operations trip independently", func(t *testing.T) {
		src := &flakySource{recErr: errors.New("429")}
		b := WithBreaker(src, cfg)
		ctx := context.Background()

		for range 3 {
			_, err := b.RecommendationsBySeed(ctx, catalog.Seeds{Genres: []string{"rock"}}, 5)
			require.Error(t, err)
		}
		assert.Equal(t, gobreaker.StateOpen, b.State(OpRecommendationsBySeed))
		assert.Equal(t, 2, src.recCalls)

		_, err := b.Search(ctx, "q", 1)
		require.NoError(t, err)
		assert.Equal(t, gobreaker.StateClosed, b.State(OpSearch))
		assert.Equal(t, 1, src.calls)
	})

	t.Run("passes results through", func(t *testing.T) {
		b := WithBreaker(NewLastFM(fakeLastFM{}), cfg)

		tracks, err := b.Search(context.Background(), "q", 1)
		require.NoError(t, err)
		assert.Equal(t, []track.Track{{ID: "x", Source: track.SourceLastFM}}, tracks)
		assert.Equal(t, track.SourceLastFM, b.Name())
	})
}
