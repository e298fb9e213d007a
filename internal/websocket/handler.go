package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/robertramos07281021/centralize-coordinator/internal/auth"
	"github.com/robertramos07281021/centralize-coordinator/internal/config"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the CORS middleware in front
		return true
	},
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub    *Hub
	config *config.Config
	logger zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		config: cfg,
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// ServeHTTP handles WebSocket upgrade requests. The connection is bound to
// the authenticated agent; unauthenticated requests are rejected before
// the upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || claims.AgentID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.config, claims.AgentID, h.logger)

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	client.Start()
}
