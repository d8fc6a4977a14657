// Package rest exposes the discovery service over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19dig/internal/app/interaction"
	"github.com/osa030/19dig/internal/app/library"
	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
	"github.com/osa030/19dig/internal/infra/lastfm"
	"github.com/osa030/19dig/internal/infra/metrics"
	"github.com/osa030/19dig/internal/infra/store"
)

// Discovery aggregates tracks across providers.
type Discovery interface {
	SearchAll(ctx context.Context, query string, limit int, only track.Source) []track.Track
	PersonalizedRecommendations(ctx context.Context, userID string, limit int) ([]track.Track, error)
	PopularRecommendations(ctx context.Context, limit int) []track.Track
	PopularByGenre(ctx context.Context, genre string, limit int) []track.Track
	Genres(ctx context.Context) ([]catalog.GenreTag, int)
	SimilarArtists(ctx context.Context, artist string, limit int, only track.Source) []catalog.ArtistSummary
}

// Interactions records user interactions and manages preferences.
type Interactions interface {
	Record(ctx context.Context, userID, songID string, action interaction.Action, playDuration int, completed bool) error
	Get(ctx context.Context, userID string) (*preference.UserPreferences, error)
	Update(ctx context.Context, userID string, patch preference.Patch) (*preference.UserPreferences, error)
}

// Library imports provider tracks into the local store.
type Library interface {
	AddSong(ctx context.Context, req library.AddSongRequest) (*store.Song, bool, error)
}

// Info looks up Last.fm track and artist details. Nil results mean not found.
type Info interface {
	GetTrackInfo(ctx context.Context, artist, name string) (*lastfm.TrackInfo, error)
	GetArtistInfo(ctx context.Context, artist string) (*lastfm.ArtistInfo, error)
}

// Pinger reports the health of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	RateLimit   int // requests per minute per IP, 0 disables
	Auth        *Authenticator
}

// Handler serves the discovery API.
type Handler struct {
	discovery    Discovery
	interactions Interactions
	library      Library
	info         Info
	health       Pinger
	validate     *validator.Validate
}

// NewHandler creates a handler. info and health may be nil.
func NewHandler(d Discovery, i Interactions, l Library, info Info, health Pinger) *Handler {
	return &Handler{
		discovery:    d,
		interactions: i,
		library:      l,
		info:         info,
		health:       health,
		validate:     validator.New(),
	}
}

// NewRouter builds the HTTP routes. Every /api/v1/discover route requires a bearer token.
func NewRouter(h *Handler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(opts.CORSOrigins))

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/discover", func(r chi.Router) {
		r.Use(rateLimitMiddleware(opts.RateLimit))
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware)
		}

		r.Get("/search", h.search)
		r.Get("/recommendations", h.recommendations)
		r.Get("/popular", h.popular)
		r.Get("/genres", h.genres)
		r.Get("/similar-artists", h.similarArtists)
		r.Get("/track-info", h.trackInfo)
		r.Get("/artist-info", h.artistInfo)
		r.Post("/add-song", h.addSong)
		r.Post("/track-interaction", h.trackInteraction)
		r.Get("/preferences", h.getPreferences)
		r.Put("/preferences", h.updatePreferences)
	})

	return r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func rateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// requestLogger records metrics and a debug log line for every request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, elapsed)
		zlog.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
