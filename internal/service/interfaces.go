package service

import (
	"context"
	"time"

	"blogpulse/internal/domain"
	"blogpulse/pkg/queue"
)

// JobProcessEvent is the queue job name carrying one AnalyticsEvent
const JobProcessEvent = "process-event"

// IngestService defines the ingestion boundary
type IngestService interface {
	// Track validates, enriches and enqueues events. It returns the number
	// of enqueued jobs.
	Track(ctx context.Context, events []domain.AnalyticsEvent, meta domain.RequestMeta) (int, error)
}

// AnalyticsService defines the read-side aggregations. Analytics-store
// failures never surface from these methods.
type AnalyticsService interface {
	// GetPostAnalytics counts the events of one post
	GetPostAnalytics(ctx context.Context, postID string) domain.PostAnalytics

	// GetAuthorStats merges relational totals with analytics-store numbers
	GetAuthorStats(ctx context.Context, authorID string) (*domain.AuthorStats, error)

	// GetAuthorDashboardStats adds a 7-day trend and top posts to the author stats
	GetAuthorDashboardStats(ctx context.Context, authorID string) (*domain.DashboardStats, error)

	// GetPlatformAnalytics summarizes platform-wide activity
	GetPlatformAnalytics(ctx context.Context) domain.PlatformAnalytics

	// GetTrendingPosts ranks posts over the last 24 hours
	GetTrendingPosts(ctx context.Context, limit int) ([]domain.TrendingPost, error)

	// GetModerationAnalytics counts approvals and rejections per day
	GetModerationAnalytics(ctx context.Context, days int) []domain.ModerationDay

	// GetModeratorActivity counts approvals and rejections per moderator
	GetModeratorActivity(ctx context.Context, days int) []domain.ModeratorActivity

	// GetPostGeo ranks the location buckets of a post
	GetPostGeo(ctx context.Context, postID string) []domain.GeoCount

	// GetQueueHealth snapshots the ingestion queue
	GetQueueHealth(ctx context.Context) domain.QueueHealth
}

// ViewCounterService defines deduplicated view/read counting
type ViewCounterService interface {
	// RecordView counts the first signal per actor and window and returns
	// the post either way
	RecordView(ctx context.Context, kind domain.ViewKind, postID, clientID string, meta domain.RequestMeta) (*domain.ViewOutcome, error)
}

// ActivityService defines the fast active-user counter
type ActivityService interface {
	// RecordActive adds the actor to today's active set
	RecordActive(ctx context.Context, actorID string) error

	// CountToday returns the number of distinct actors today
	CountToday(ctx context.Context) (int64, error)
}

// AuthService verifies session tokens
type AuthService interface {
	// VerifySession returns the session carried by a valid token, or an
	// authentication AppError
	VerifySession(ctx context.Context, token string) (*domain.Session, error)
}

// Notifier receives counter changes for live subscribers
type Notifier interface {
	NotifyCounter(change domain.CounterChange)
}

// EventQueue is the enqueue side of the durable queue
type EventQueue interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
	EnqueueBatch(ctx context.Context, name string, payloads []any) ([]string, error)
}

// QueueInspector exposes queue depths for health reporting
type QueueInspector interface {
	Name() string
	Stats(ctx context.Context) (queue.Stats, error)
	Ping(ctx context.Context) error
}

// Services aggregates all service interfaces
type Services struct {
	Auth      AuthService
	Ingest    IngestService
	Analytics AnalyticsService
	Views     ViewCounterService
	Activity  ActivityService
	Processor *EventProcessor
}

// startOfDay truncates t to UTC midnight
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
