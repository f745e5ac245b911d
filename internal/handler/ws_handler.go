package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"blogpulse/internal/notify"
	"blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
)

// WebsocketHandler subscribes browsers to live post counters
type WebsocketHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWebsocketHandler creates a handler accepting the given origins
func NewWebsocketHandler(hub *notify.Hub, allowedOrigins []string, logger *logger.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		hub:      hub,
		upgrader: notify.Upgrader(allowedOrigins),
		logger:   logger.Component("ws_handler"),
	}
}

// SubscribePost handles GET /ws/posts/{postId}
func (h *WebsocketHandler) SubscribePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")
	if postID == "" {
		sendError(w, r, h.logger, errors.NewValidationError("postId is required", nil))
		return
	}

	// Upgrade answers failed handshakes itself
	if err := h.hub.Serve(h.upgrader, w, r, postID); err != nil {
		h.logger.WithError(err).WithField("post_id", postID).Debug("Websocket subscription failed")
	}
}
