package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for quiz sessions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	auth              *Authenticator
}

func NewWebSocketHandler(cm *ConnectionManager, auth *Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		auth:              auth,
	}
}

// HandleSessionConnection handles GET /ws/session. The session itself is
// chosen later by a join_session message.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	id, err := h.auth.Identify(r)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected websocket token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, id); err != nil {
		// The upgrader has already replied to the client.
		log.Error().
			Err(err).
			Str("user_id", id.UserID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
