package rest

import (
	"net/http"
	"strings"

	"github.com/osa030/19dig/internal/domain/catalog"
	"github.com/osa030/19dig/internal/domain/track"
)

func nonNil(tracks []track.Track) []track.Track {
	if tracks == nil {
		return []track.Track{}
	}
	return tracks
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Search query is required", nil)
		return
	}
	only, ok := track.ParseSource(r.URL.Query().Get("source"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid source", nil)
		return
	}
	sourceName := string(only)
	if only == "" {
		sourceName = "all"
	}

	tracks := nonNil(h.discovery.SearchAll(r.Context(), q, parseLimit(r), only))
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   tracks,
		"total":  len(tracks),
		"query":  q,
		"source": sourceName,
	})
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.discovery.PersonalizedRecommendations(r.Context(), UserID(r.Context()), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get recommendations", err)
		return
	}
	tracks = nonNil(tracks)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":         tracks,
		"total":        len(tracks),
		"personalized": true,
	})
}

func (h *Handler) popular(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	genre := strings.TrimSpace(r.URL.Query().Get("genre"))

	var tracks []track.Track
	if genre == "" {
		genre = "all"
		tracks = h.discovery.PopularRecommendations(r.Context(), limit)
	} else {
		tracks = h.discovery.PopularByGenre(r.Context(), genre, limit)
	}
	tracks = nonNil(tracks)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  tracks,
		"total": len(tracks),
		"genre": genre,
	})
}

func (h *Handler) genres(w http.ResponseWriter, r *http.Request) {
	genres, total := h.discovery.Genres(r.Context())
	if genres == nil {
		genres = []catalog.GenreTag{}
	}
	writeJSON(w, http.StatusOK, struct {
		Data  []catalog.GenreTag `json:"data"`
		Total int                `json:"total"`
	}{genres, total})
}

func (h *Handler) similarArtists(w http.ResponseWriter, r *http.Request) {
	artist := strings.TrimSpace(r.URL.Query().Get("artist"))
	if artist == "" {
		writeError(w, http.StatusBadRequest, "Artist is required", nil)
		return
	}
	only, ok := track.ParseSource(r.URL.Query().Get("source"))
	if !ok || only == track.SourceLocal {
		writeError(w, http.StatusBadRequest, "Invalid source", nil)
		return
	}

	artists := h.discovery.SimilarArtists(r.Context(), artist, parseLimit(r), only)
	if artists == nil {
		artists = []catalog.ArtistSummary{}
	}
	writeJSON(w, http.StatusOK, struct {
		Data   []catalog.ArtistSummary `json:"data"`
		Total  int                     `json:"total"`
		Artist string                  `json:"artist"`
	}{artists, len(artists), artist})
}

func (h *Handler) trackInfo(w http.ResponseWriter, r *http.Request) {
	if h.info == nil {
		writeError(w, http.StatusNotImplemented, "Track info is not available", nil)
		return
	}
	artist := strings.TrimSpace(r.URL.Query().Get("artist"))
	name := strings.TrimSpace(r.URL.Query().Get("track"))
	if artist == "" || name == "" {
		writeError(w, http.StatusBadRequest, "Artist and track are required", nil)
		return
	}

	info, err := h.info.GetTrackInfo(r.Context(), artist, name)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to get track info", err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "Track not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": info})
}

func (h *Handler) artistInfo(w http.ResponseWriter, r *http.Request) {
	if h.info == nil {
		writeError(w, http.StatusNotImplemented, "Artist info is not available", nil)
		return
	}
	artist := strings.TrimSpace(r.URL.Query().Get("artist"))
	if artist == "" {
		writeError(w, http.StatusBadRequest, "Artist is required", nil)
		return
	}

	info, err := h.info.GetArtistInfo(r.Context(), artist)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to get artist info", err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "Artist not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": info})
}
