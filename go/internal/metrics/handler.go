package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Handler serves the metrics surface.
type Handler struct {
	registry *Registry
}

func NewHandler(r *Registry) *Handler {
	return &Handler{registry: r}
}

// RegisterRoutes mounts the JSON, Prometheus and reset endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /metrics", h.HandlePrometheus)
	mux.HandleFunc("GET /api/metrics", h.HandleJSON)
	mux.HandleFunc("POST /api/metrics/reset", h.HandleReset)
}

// HandleJSON handles GET /api/metrics
func (h *Handler) HandleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"counters": h.registry.Counters(),
	}); err != nil {
		log.Error().Err(err).Msg("failed to encode metrics snapshot")
	}
}

// HandlePrometheus handles GET /metrics
func (h *Handler) HandlePrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.registry.WritePrometheus(w); err != nil {
		log.Error().Err(err).Msg("failed to write metrics exposition")
	}
}

// HandleReset handles POST /api/metrics/reset. The token is read from a
// bearer Authorization header or X-Metrics-Token.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reset(TokenFromRequest(r)); err != nil {
		if errors.Is(err, ErrResetUnauthorized) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("rejected metrics reset")
			http.Error(w, "invalid reset token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("metrics reset")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"reset":true}`))
}

// TokenFromRequest extracts the caller-supplied reset token.
func TokenFromRequest(r *http.Request) string {
	return TokenFromHeader(r.Header)
}

// TokenFromHeader reads a bearer token or the X-Metrics-Token header.
func TokenFromHeader(h http.Header) string {
	if auth := h.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return h.Get("X-Metrics-Token")
}
