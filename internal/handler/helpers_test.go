package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"blogpulse/internal/domain"
	"blogpulse/internal/middleware"
)

// MockAnalyticsService mocks service.AnalyticsService
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) GetPostAnalytics(ctx context.Context, postID string) domain.PostAnalytics {
	return m.Called(ctx, postID).Get(0).(domain.PostAnalytics)
}

func (m *MockAnalyticsService) GetAuthorStats(ctx context.Context, authorID string) (*domain.AuthorStats, error) {
	args := m.Called(ctx, authorID)
	stats, _ := args.Get(0).(*domain.AuthorStats)
	return stats, args.Error(1)
}

func (m *MockAnalyticsService) GetAuthorDashboardStats(ctx context.Context, authorID string) (*domain.DashboardStats, error) {
	args := m.Called(ctx, authorID)
	stats, _ := args.Get(0).(*domain.DashboardStats)
	return stats, args.Error(1)
}

func (m *MockAnalyticsService) GetPlatformAnalytics(ctx context.Context) domain.PlatformAnalytics {
	return m.Called(ctx).Get(0).(domain.PlatformAnalytics)
}

func (m *MockAnalyticsService) GetTrendingPosts(ctx context.Context, limit int) ([]domain.TrendingPost, error) {
	args := m.Called(ctx, limit)
	posts, _ := args.Get(0).([]domain.TrendingPost)
	return posts, args.Error(1)
}

func (m *MockAnalyticsService) GetModerationAnalytics(ctx context.Context, days int) []domain.ModerationDay {
	return m.Called(ctx, days).Get(0).([]domain.ModerationDay)
}

func (m *MockAnalyticsService) GetModeratorActivity(ctx context.Context, days int) []domain.ModeratorActivity {
	return m.Called(ctx, days).Get(0).([]domain.ModeratorActivity)
}

func (m *MockAnalyticsService) GetPostGeo(ctx context.Context, postID string) []domain.GeoCount {
	return m.Called(ctx, postID).Get(0).([]domain.GeoCount)
}

func (m *MockAnalyticsService) GetQueueHealth(ctx context.Context) domain.QueueHealth {
	return m.Called(ctx).Get(0).(domain.QueueHealth)
}

// withSession injects a verified session the way middleware.Auth does
func withSession(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.SessionContextKey, &domain.Session{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// envelope is the decoded response body of any endpoint
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type    string                 `json:"type"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
