package rest

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

// errorResponse is the body of every error response.
type errorResponse struct {
	Err     string `json:"err"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := errorResponse{Err: msg}
	if err != nil {
		body.Details = err.Error()
		if status >= http.StatusInternalServerError {
			zlog.Error().Err(err).Int("status", status).Msg(msg)
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "failed to read body")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "invalid JSON body")
	}
	return nil
}

// parseLimit reads the limit query parameter, defaulting to 20 and clamped to [1, 100].
func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return defaultLimit
	}
	return min(max(limit, 1), maxLimit)
}
