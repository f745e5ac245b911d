package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blogpulse/internal/domain"
	"blogpulse/internal/middleware"
	"blogpulse/internal/service"
	"blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
)

// maxTrackBody bounds one ingestion request body
const maxTrackBody = 1 << 20

// AnalyticsHandler serves ingestion and the read-side aggregations
type AnalyticsHandler struct {
	ingest    service.IngestService
	analytics service.AnalyticsService
	logger    *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(ingest service.IngestService, analytics service.AnalyticsService, logger *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		ingest:    ingest,
		analytics: analytics,
		logger:    logger.Component("analytics_handler"),
	}
}

// TrackResponse reports how many events were queued
type TrackResponse struct {
	Queued int `json:"queued"`
}

// Track handles POST /api/analytics/track
func (h *AnalyticsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var event domain.AnalyticsEvent
	body := http.MaxBytesReader(w, r.Body, maxTrackBody)
	if err := json.NewDecoder(body).Decode(&event); err != nil {
		metrics.IngestRejected.WithLabelValues("decode").Inc()
		sendError(w, r, h.logger, errors.NewValidationError("Invalid JSON body", nil))
		return
	}

	h.track(w, r, []domain.AnalyticsEvent{event})
}

// TrackBatch handles POST /api/analytics/track/batch
func (h *AnalyticsHandler) TrackBatch(w http.ResponseWriter, r *http.Request) {
	events, err := decodeBatch(http.MaxBytesReader(w, r.Body, maxTrackBody))
	if err != nil {
		metrics.IngestRejected.WithLabelValues("decode").Inc()
		sendError(w, r, h.logger, err)
		return
	}

	h.track(w, r, events)
}

func (h *AnalyticsHandler) track(w http.ResponseWriter, r *http.Request, events []domain.AnalyticsEvent) {
	queued, err := h.ingest.Track(r.Context(), events, requestMeta(r))
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, h.logger, TrackResponse{Queued: queued})
}

// decodeBatch accepts {"events":[...]}, a bare array, or a single event
// object, and returns the events in the order they were sent
func decodeBatch(r io.Reader) ([]domain.AnalyticsEvent, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewValidationError("Request body too large or unreadable", nil)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.NewValidationError("Request body is empty", nil)
	}

	switch raw[0] {
	case '[':
		var events []domain.AnalyticsEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, errors.NewValidationError("Invalid JSON body", nil)
		}
		return events, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, errors.NewValidationError("Invalid JSON body", nil)
		}
		if list, ok := probe["events"]; ok {
			var events []domain.AnalyticsEvent
			if err := json.Unmarshal(list, &events); err != nil {
				return nil, errors.NewValidationError("events must be an array of events", nil)
			}
			return events, nil
		}
		var event domain.AnalyticsEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, errors.NewValidationError("Invalid JSON body", nil)
		}
		return []domain.AnalyticsEvent{event}, nil
	default:
		return nil, errors.NewValidationError("Invalid JSON body", nil)
	}
}

// sessionUserID returns the caller's user ID; the routes using it sit
// behind Auth
func sessionUserID(r *http.Request) (string, error) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || session.UserID == "" {
		return "", errors.NewAuthenticationError("User not authenticated")
	}
	return session.UserID, nil
}

// GetProfileOverview handles GET /api/analytics/profile/overview
func (h *AnalyticsHandler) GetProfileOverview(w http.ResponseWriter, r *http.Request) {
	userID, err := sessionUserID(r)
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}

	stats, err := h.analytics.GetAuthorStats(r.Context(), userID)
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, h.logger, stats)
}

// GetDashboard handles GET /api/analytics/dashboard
func (h *AnalyticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := sessionUserID(r)
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}

	stats, err := h.analytics.GetAuthorDashboardStats(r.Context(), userID)
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, h.logger, stats)
}

// GetPostAnalytics handles GET /api/analytics/post/{postId}
func (h *AnalyticsHandler) GetPostAnalytics(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")
	if postID == "" {
		sendError(w, r, h.logger, errors.NewValidationError("postId is required", nil))
		return
	}
	sendSuccess(w, h.logger, h.analytics.GetPostAnalytics(r.Context(), postID))
}

// GetPostGeo handles GET /api/analytics/post/{postId}/geo
func (h *AnalyticsHandler) GetPostGeo(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")
	if postID == "" {
		sendError(w, r, h.logger, errors.NewValidationError("postId is required", nil))
		return
	}
	sendSuccess(w, h.logger, h.analytics.GetPostGeo(r.Context(), postID))
}

// GetPlatform handles GET /api/analytics/platform
func (h *AnalyticsHandler) GetPlatform(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, h.logger, h.analytics.GetPlatformAnalytics(r.Context()))
}

// GetTrending handles GET /api/analytics/trending?limit=N
func (h *AnalyticsHandler) GetTrending(w http.ResponseWriter, r *http.Request) {
	posts, err := h.analytics.GetTrendingPosts(r.Context(), intQuery(r, "limit"))
	if err != nil {
		sendError(w, r, h.logger, err)
		return
	}
	sendSuccess(w, h.logger, posts)
}

// GetModeration handles GET /api/analytics/moderation?days=N
func (h *AnalyticsHandler) GetModeration(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, h.logger, h.analytics.GetModerationAnalytics(r.Context(), intQuery(r, "days")))
}

// GetModerators handles GET /api/analytics/moderators?days=N
func (h *AnalyticsHandler) GetModerators(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, h.logger, h.analytics.GetModeratorActivity(r.Context(), intQuery(r, "days")))
}

// GetQueueHealth handles GET /api/analytics/queue/health. An unhealthy
// queue answers 503 with the same body.
func (h *AnalyticsHandler) GetQueueHealth(w http.ResponseWriter, r *http.Request) {
	health := h.analytics.GetQueueHealth(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, h.logger, status, SuccessResponse{Success: health.Healthy, Data: health})
}
