package gateway

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/auth"
	"github.com/mcdev12/draftclock/go/internal/httputil"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for draft connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleDraftConnection handles WebSocket connections for a specific draft
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	draftIDStr := r.URL.Query().Get("draft_id")
	if draftIDStr == "" {
		httputil.WriteError(w, fmt.Errorf("%w: draft_id is required", models.ErrInvalidArgument))
		return
	}

	draftID, err := uuid.Parse(draftIDStr)
	if err != nil {
		httputil.WriteError(w, fmt.Errorf("%w: invalid draft_id format", models.ErrInvalidArgument))
		return
	}

	// Viewing is read-only. Browsers cannot set headers on a WebSocket handshake,
	// so the query parameter is only a label for logs.
	userID := r.URL.Query().Get("user_id")
	if u, err := auth.UserFromContext(r.Context()); err == nil {
		userID = u.ID.String()
	}
	if userID == "" {
		userID = "anonymous"
	}

	// The upgrader has already answered the request when this fails.
	if err := h.connectionManager.UpgradeConnection(w, r, userID, draftID); err != nil {
		log.Error().
			Err(err).
			Str("draft_id", draftID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/draft", h.HandleDraftConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
