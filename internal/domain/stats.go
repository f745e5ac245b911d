package domain

import "time"

// PostAnalytics is the event-log breakdown for one post
type PostAnalytics struct {
	PostID         string  `json:"post_id"`
	Views          int64   `json:"views"`
	UniqueViews    int64   `json:"unique_views"`
	Reads          int64   `json:"reads"`
	Likes          int64   `json:"likes"`
	Comments       int64   `json:"comments"`
	Shares         int64   `json:"shares"`
	EngagementRate float64 `json:"engagement_rate"`
}

// PostEventCounts is the raw OLAP count set for a post or a group of posts
type PostEventCounts struct {
	Views         int64
	UniqueViews   int64
	UniqueViewers int64
	Reads         int64
	Likes         int64
	Comments      int64
	Shares        int64
}

// AuthorTotals are the lifetime relational sums for an author
type AuthorTotals struct {
	Posts    int64
	Views    int64
	Reads    int64
	Likes    int64
	Dislikes int64
	Comments int64
}

// AuthorStats merges relational lifetime totals with analytics-store
// windowed numbers
type AuthorStats struct {
	TotalPosts     int64 `json:"total_posts"`
	TotalViews     int64 `json:"total_views"`
	TotalLikes     int64 `json:"total_likes"`
	TotalDislikes  int64 `json:"total_dislikes"`
	TotalComments  int64 `json:"total_comments"`
	UniqueViewers  int64 `json:"unique_viewers"`
	Views          int64 `json:"views"`
	Reads          int64 `json:"reads"`
	Likes          int64 `json:"likes"`
	Comments       int64 `json:"comments"`
	Shares         int64 `json:"shares"`
	CompletionRate int64 `json:"completion_rate"`
	EngagementRate int64 `json:"engagement_rate"`
	AnalyticsReady bool  `json:"analytics_available"`
}

// TrendPoint is one calendar day of the dashboard trend
type TrendPoint struct {
	Date      string `json:"date"`
	Views     int64  `json:"views"`
	Reads     int64  `json:"reads"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// DailyCount is an analytics-store row keyed by ISO date
type DailyCount struct {
	Date  string
	Views int64
	Reads int64
}

// DashboardStats is the author dashboard payload
type DashboardStats struct {
	Stats    AuthorStats   `json:"stats"`
	Trend    []TrendPoint  `json:"trend"`
	TopPosts []PostSummary `json:"top_posts"`
}

// PlatformAnalytics summarizes activity across the whole platform
type PlatformAnalytics struct {
	ActiveUsersToday   int64     `json:"active_users_today"`
	ActiveUsers7Days   int64     `json:"active_users_7d"`
	ActiveUsers30Days  int64     `json:"active_users_30d"`
	PostsCreatedToday  int64     `json:"posts_created_today"`
	PostsApprovedToday int64     `json:"posts_approved_today"`
	PostsRejectedToday int64     `json:"posts_rejected_today"`
	EngagementToday    int64     `json:"engagement_today"`
	GeneratedAt        time.Time `json:"generated_at"`
	Degraded           bool      `json:"degraded"` // some numbers are fallback zeros
}

// TodayCounts is the single-query breakdown of today's events
type TodayCounts struct {
	PostsCreated  int64
	PostsApproved int64
	PostsRejected int64
	Engagement    int64
}

// TrendingSource tells which store produced a trending ranking
type TrendingSource string

const (
	TrendingFromAnalytics  TrendingSource = "analytics"
	TrendingFromRelational TrendingSource = "relational"
)

// TrendingPost is one entry of the trending ranking
type TrendingPost struct {
	PostID   string         `json:"post_id"`
	Title    string         `json:"title,omitempty"`
	Slug     string         `json:"slug,omitempty"`
	Score    int64          `json:"score"`
	Likes    int64          `json:"likes"`
	Comments int64          `json:"comments"`
	Shares   int64          `json:"shares"`
	Views    int64          `json:"views"`
	Source   TrendingSource `json:"source"`
}

// ModerationDay counts moderation outcomes for one date
type ModerationDay struct {
	Date     string `json:"date"`
	Approved int64  `json:"approved"`
	Rejected int64  `json:"rejected"`
}

// ModeratorActivity counts the actions of one moderator
type ModeratorActivity struct {
	ModeratorID string `json:"moderator_id"`
	Approved    int64  `json:"approved"`
	Rejected    int64  `json:"rejected"`
	Total       int64  `json:"total"`
}

// GeoCount is the number of events from one location bucket
type GeoCount struct {
	LocationID int32 `json:"location_id"`
	Count      int64 `json:"count"`
}

// QueueHealth is a depth snapshot of the ingestion queue
type QueueHealth struct {
	Name         string    `json:"name"`
	Healthy      bool      `json:"healthy"`
	Waiting      int64     `json:"waiting"`
	Active       int64     `json:"active"`
	Delayed      int64     `json:"delayed"`
	DeadLettered int64     `json:"dead_lettered"`
	Processed    int64     `json:"processed"`
	Failed       int64     `json:"failed_total"`
	Error        string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}
