package repository

import (
	"blogpulse/internal/domain"
	"context"
	"time"
)

// PostRepository defines the relational operations the analytics core needs
// on posts
type PostRepository interface {
	// GetByID retrieves a post, or a not-found AppError
	GetByID(ctx context.Context, id string) (*domain.PostSummary, error)

	// GetByIDs retrieves posts in the order of ids, skipping unknown ones
	GetByIDs(ctx context.Context, ids []string) ([]domain.PostSummary, error)

	// ListAuthorPostIDs returns every post ID of an author
	ListAuthorPostIDs(ctx context.Context, authorID string) ([]string, error)

	// TopByViews returns the author's most viewed posts
	TopByViews(ctx context.Context, authorID string, limit int) ([]domain.PostSummary, error)

	// AuthorTotals returns lifetime counter sums and the comment count
	AuthorTotals(ctx context.Context, authorID string) (domain.AuthorTotals, error)

	// ListPopular orders published posts by views desc, created_at desc
	ListPopular(ctx context.Context, limit int) ([]domain.PostSummary, error)

	// IncrementCounter atomically adds one to a counter column and returns
	// the new value
	IncrementCounter(ctx context.Context, postID string, counter domain.PostCounter) (int64, error)
}

// EventWriter appends rows to the analytics store
type EventWriter interface {
	InsertEvent(ctx context.Context, row domain.EventRow) error
	InsertRawView(ctx context.Context, view domain.RawView) error
}

// EventReader runs aggregate queries against the analytics store
type EventReader interface {
	// PostCounts counts the events of one post
	PostCounts(ctx context.Context, postID string) (domain.PostEventCounts, error)

	// PostsCounts counts the events of a set of posts
	PostsCounts(ctx context.Context, postIDs []string) (domain.PostEventCounts, error)

	// DailyViews groups views and reads of a set of posts by UTC date
	DailyViews(ctx context.Context, postIDs []string, since time.Time) ([]domain.DailyCount, error)

	// ActiveUsers counts distinct actors since the given time
	ActiveUsers(ctx context.Context, since time.Time) (int64, error)

	// TodayCounts counts moderation and engagement events since the given time
	TodayCounts(ctx context.Context, since time.Time) (domain.TodayCounts, error)

	// Trending ranks posts by weighted engagement since the given time
	Trending(ctx context.Context, since time.Time, limit int) ([]domain.TrendingPost, error)

	// ModerationByDay groups approvals and rejections by date
	ModerationByDay(ctx context.Context, since time.Time) ([]domain.ModerationDay, error)

	// ModeratorActivity groups approvals and rejections by acting user
	ModeratorActivity(ctx context.Context, since time.Time) ([]domain.ModeratorActivity, error)

	// PostGeo ranks the location buckets of one post's events
	PostGeo(ctx context.Context, postID string, limit int) ([]domain.GeoCount, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Post   PostRepository
	Writer EventWriter
	Reader EventReader
}
