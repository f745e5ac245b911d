package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blogpulse/internal/domain"
	"blogpulse/internal/service"
	"blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/tracker"
)

// ViewHandler counts post views and reads
type ViewHandler struct {
	views  service.ViewCounterService
	logger *logger.Logger
}

// NewViewHandler creates a new view handler
func NewViewHandler(views service.ViewCounterService, logger *logger.Logger) *ViewHandler {
	return &ViewHandler{
		views:  views,
		logger: logger.Component("view_handler"),
	}
}

// viewRequest is the optional body of a view/read signal
type viewRequest struct {
	ClientID string `json:"client_id"`
}

// RecordView handles POST /api/posts/{postId}/view
func (h *ViewHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, domain.ViewKindView)
}

// RecordRead handles POST /api/posts/{postId}/read
func (h *ViewHandler) RecordRead(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, domain.ViewKindRead)
}

func (h *ViewHandler) record(w http.ResponseWriter, r *http.Request, kind domain.ViewKind) {
	postID := chi.URLParam(r, "postId")
	if postID == "" {
		sendError(w, r, h.logger, errors.NewValidationError("postId is required", nil))
		return
	}

	outcome, err := h.views.RecordView(r.Context(), kind, postID, clientID(r), requestMeta(r))
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, h.logger, outcome)
}

// clientID reads the client identifier from the body, falling back to the
// tracker cookie. The body is optional and a malformed one is ignored.
func clientID(r *http.Request) string {
	if r.Body != nil {
		var req viewRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err == nil && req.ClientID != "" {
			return req.ClientID
		}
	}
	if c, err := r.Cookie(tracker.ClientIDCookie); err == nil {
		return c.Value
	}
	return ""
}
