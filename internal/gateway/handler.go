package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sharetimer/sharetimer/internal/timer"
)

// Handler exposes the HTTP surface: websocket upgrades, timer creation and
// the monitoring stats endpoint.
type Handler struct {
	connectionManager *ConnectionManager
	timers            *timer.Service
}

func NewHandler(cm *ConnectionManager, timers *timer.Service) *Handler {
	return &Handler{
		connectionManager: cm,
		timers:            timers,
	}
}

// HandleWebSocket upgrades the request to a websocket session. Room
// membership is negotiated afterwards over join messages, so reconnecting
// clients can re-join their last known room on the fresh connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// HandleCreateTimer creates a fresh zero-state timer and returns its id.
func (h *Handler) HandleCreateTimer(w http.ResponseWriter, r *http.Request) {
	id := h.timers.Create()
	writeJSON(w, map[string]string{"timerId": id})
}

// HandleStats returns a read-only aggregate snapshot of all timers.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.timers.Stats())
}

// RegisterRoutes registers the gateway routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
	mux.HandleFunc("/create-timer", h.HandleCreateTimer)
	mux.HandleFunc("/api/stats", h.HandleStats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
