package repository

import (
	"context"
	"fmt"
	"time"

	"blogpulse/internal/domain"
	"blogpulse/pkg/database"
	"blogpulse/pkg/metrics"
)

// Table names in the analytics store
const (
	TableEvents   = "analytics_events"
	TableRawViews = "raw_views"
)

// actorExpr is the distinct-actor identity: the user when known, else the
// client
const actorExpr = `if(user_id = toUUID('00000000-0000-0000-0000-000000000000'), client_id, toString(user_id))`

// ClickHouseEventRepository writes and aggregates the event log
type ClickHouseEventRepository struct {
	db *database.ClickHouseDB
}

func NewEventRepository(db *database.ClickHouseDB) *ClickHouseEventRepository {
	return &ClickHouseEventRepository{db: db}
}

// InsertEvent appends one row to the general event log
func (r *ClickHouseEventRepository) InsertEvent(ctx context.Context, row domain.EventRow) error {
	batch, err := r.db.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event, client_id, user_id, post_id, post_status, location_id,
			device, duration, metadata, created_at
		)
	`)
	if err != nil {
		metrics.StoreWrites.WithLabelValues(TableEvents, "error").Inc()
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}

	if err := batch.Append(
		row.Event,
		row.ClientID,
		row.UserID,
		row.PostID,
		row.PostStatus,
		row.LocationID,
		row.Device,
		row.Duration,
		row.Metadata,
		row.CreatedAt,
	); err != nil {
		_ = batch.Abort()
		metrics.StoreWrites.WithLabelValues(TableEvents, "error").Inc()
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := batch.Send(); err != nil {
		metrics.StoreWrites.WithLabelValues(TableEvents, "error").Inc()
		return fmt.Errorf("failed to insert event: %w", err)
	}
	metrics.StoreWrites.WithLabelValues(TableEvents, "ok").Inc()
	return nil
}

// InsertRawView appends one row to the raw-view log
func (r *ClickHouseEventRepository) InsertRawView(ctx context.Context, view domain.RawView) error {
	batch, err := r.db.Conn.PrepareBatch(ctx, `
		INSERT INTO raw_views (
			event_time, post_id, user_id, client_id, device, duration,
			ip, referrer, metadata
		)
	`)
	if err != nil {
		metrics.StoreWrites.WithLabelValues(TableRawViews, "error").Inc()
		return fmt.Errorf("failed to prepare raw view insert: %w", err)
	}

	if err := batch.Append(
		view.EventTime,
		view.PostID,
		view.UserID,
		view.ClientID,
		view.Device,
		view.Duration,
		view.IP,
		view.Referrer,
		view.Metadata,
	); err != nil {
		_ = batch.Abort()
		metrics.StoreWrites.WithLabelValues(TableRawViews, "error").Inc()
		return fmt.Errorf("failed to append raw view: %w", err)
	}

	if err := batch.Send(); err != nil {
		metrics.StoreWrites.WithLabelValues(TableRawViews, "error").Inc()
		return fmt.Errorf("failed to insert raw view: %w", err)
	}
	metrics.StoreWrites.WithLabelValues(TableRawViews, "ok").Inc()
	return nil
}

const countsSelect = `
	SELECT
		countIf(event = 'post_view'),
		uniqExactIf(client_id, event = 'post_view'),
		uniqExactIf(` + actorExpr + `, event = 'post_view'),
		countIf(event = 'post_read'),
		countIf(event = 'like'),
		countIf(event = 'comment'),
		countIf(event = 'share')
	FROM analytics_events
`

func (r *ClickHouseEventRepository) scanCounts(ctx context.Context, query string, args ...interface{}) (domain.PostEventCounts, error) {
	var views, uniqueViews, uniqueViewers, reads, likes, comments, shares uint64
	err := r.db.Conn.QueryRow(ctx, query, args...).Scan(
		&views, &uniqueViews, &uniqueViewers, &reads, &likes, &comments, &shares,
	)
	if err != nil {
		return domain.PostEventCounts{}, err
	}
	return domain.PostEventCounts{
		Views:         int64(views),
		UniqueViews:   int64(uniqueViews),
		UniqueViewers: int64(uniqueViewers),
		Reads:         int64(reads),
		Likes:         int64(likes),
		Comments:      int64(comments),
		Shares:        int64(shares),
	}, nil
}

// PostCounts counts the events of one post
func (r *ClickHouseEventRepository) PostCounts(ctx context.Context, postID string) (domain.PostEventCounts, error) {
	defer metrics.ObserveQuery("post_counts", time.Now())

	counts, err := r.scanCounts(ctx, countsSelect+` WHERE post_id = ?`, postID)
	if err != nil {
		return domain.PostEventCounts{}, fmt.Errorf("failed to query post counts: %w", err)
	}
	return counts, nil
}

// PostsCounts counts the events of a set of posts
func (r *ClickHouseEventRepository) PostsCounts(ctx context.Context, postIDs []string) (domain.PostEventCounts, error) {
	if len(postIDs) == 0 {
		return domain.PostEventCounts{}, nil
	}
	defer metrics.ObserveQuery("posts_counts", time.Now())

	counts, err := r.scanCounts(ctx,
		countsSelect+` WHERE post_id IS NOT NULL AND has(?, assumeNotNull(post_id))`, postIDs)
	if err != nil {
		return domain.PostEventCounts{}, fmt.Errorf("failed to query author counts: %w", err)
	}
	return counts, nil
}

// DailyViews groups views and reads by UTC date, oldest first
func (r *ClickHouseEventRepository) DailyViews(ctx context.Context, postIDs []string, since time.Time) ([]domain.DailyCount, error) {
	if len(postIDs) == 0 {
		return []domain.DailyCount{}, nil
	}
	defer metrics.ObserveQuery("daily_views", time.Now())

	query := `
		SELECT
			toString(toDate(created_at)) AS day,
			countIf(event = 'post_view') AS views,
			countIf(event = 'post_read') AS reads
		FROM analytics_events
		WHERE post_id IS NOT NULL
			AND has(?, assumeNotNull(post_id))
			AND created_at >= ?
			AND event IN ('post_view', 'post_read')
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := r.db.Conn.Query(ctx, query, postIDs, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily views: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DailyCount, 0, 7)
	for rows.Next() {
		var (
			day          string
			views, reads uint64
		)
		if err := rows.Scan(&day, &views, &reads); err != nil {
			return nil, fmt.Errorf("failed to scan daily views: %w", err)
		}
		out = append(out, domain.DailyCount{Date: day, Views: int64(views), Reads: int64(reads)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during daily views query: %w", err)
	}
	return out, nil
}

// ActiveUsers counts distinct actors since the given time
func (r *ClickHouseEventRepository) ActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	defer metrics.ObserveQuery("active_users", time.Now())

	var n uint64
	query := `SELECT uniqExact(` + actorExpr + `) FROM analytics_events WHERE created_at >= ?`
	if err := r.db.Conn.QueryRow(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to query active users: %w", err)
	}
	return int64(n), nil
}

// TodayCounts counts moderation outcomes and engagement in one pass
func (r *ClickHouseEventRepository) TodayCounts(ctx context.Context, since time.Time) (domain.TodayCounts, error) {
	defer metrics.ObserveQuery("today_counts", time.Now())

	query := `
		SELECT
			countIf(event = 'post_created'),
			countIf(event = 'post_approved'),
			countIf(event = 'post_rejected'),
			countIf(event IN ('like', 'comment', 'share', 'save'))
		FROM analytics_events
		WHERE created_at >= ?
	`

	var created, approved, rejected, engagement uint64
	if err := r.db.Conn.QueryRow(ctx, query, since).Scan(&created, &approved, &rejected, &engagement); err != nil {
		return domain.TodayCounts{}, fmt.Errorf("failed to query today counts: %w", err)
	}
	return domain.TodayCounts{
		PostsCreated:  int64(created),
		PostsApproved: int64(approved),
		PostsRejected: int64(rejected),
		Engagement:    int64(engagement),
	}, nil
}

// Trending ranks posts by likes*3 + comments*5 + shares*10, ties by post ID
func (r *ClickHouseEventRepository) Trending(ctx context.Context, since time.Time, limit int) ([]domain.TrendingPost, error) {
	defer metrics.ObserveQuery("trending", time.Now())

	query := `
		SELECT
			assumeNotNull(post_id) AS pid,
			countIf(event = 'like') AS likes,
			countIf(event = 'comment') AS comments,
			countIf(event = 'share') AS shares,
			countIf(event = 'post_view') AS views,
			likes * 3 + comments * 5 + shares * 10 AS score
		FROM analytics_events
		WHERE created_at >= ?
			AND post_id IS NOT NULL
			AND event IN ('like', 'comment', 'share', 'post_view')
		GROUP BY pid
		HAVING score > 0
		ORDER BY score DESC, pid ASC
		LIMIT ?
	`

	rows, err := r.db.Conn.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending posts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TrendingPost, 0, limit)
	for rows.Next() {
		var (
			pid                                  string
			likes, comments, shares, views, score uint64
		)
		if err := rows.Scan(&pid, &likes, &comments, &shares, &views, &score); err != nil {
			return nil, fmt.Errorf("failed to scan trending post: %w", err)
		}
		out = append(out, domain.TrendingPost{
			PostID:   pid,
			Score:    int64(score),
			Likes:    int64(likes),
			Comments: int64(comments),
			Shares:   int64(shares),
			Views:    int64(views),
			Source:   domain.TrendingFromAnalytics,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during trending query: %w", err)
	}
	return out, nil
}

// ModerationByDay groups approvals and rejections by date
func (r *ClickHouseEventRepository) ModerationByDay(ctx context.Context, since time.Time) ([]domain.ModerationDay, error) {
	defer metrics.ObserveQuery("moderation_by_day", time.Now())

	query := `
		SELECT
			toString(toDate(created_at)) AS day,
			countIf(event = 'post_approved') AS approved,
			countIf(event = 'post_rejected') AS rejected
		FROM analytics_events
		WHERE created_at >= ?
			AND event IN ('post_approved', 'post_rejected')
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := r.db.Conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderation analytics: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ModerationDay, 0)
	for rows.Next() {
		var (
			day                string
			approved, rejected uint64
		)
		if err := rows.Scan(&day, &approved, &rejected); err != nil {
			return nil, fmt.Errorf("failed to scan moderation day: %w", err)
		}
		out = append(out, domain.ModerationDay{Date: day, Approved: int64(approved), Rejected: int64(rejected)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during moderation query: %w", err)
	}
	return out, nil
}

// ModeratorActivity groups approvals and rejections by acting user
func (r *ClickHouseEventRepository) ModeratorActivity(ctx context.Context, since time.Time) ([]domain.ModeratorActivity, error) {
	defer metrics.ObserveQuery("moderator_activity", time.Now())

	query := `
		SELECT
			toString(user_id) AS moderator,
			countIf(event = 'post_approved') AS approved,
			countIf(event = 'post_rejected') AS rejected,
			count() AS total
		FROM analytics_events
		WHERE created_at >= ?
			AND event IN ('post_approved', 'post_rejected')
		GROUP BY moderator
		ORDER BY total DESC, moderator ASC
	`

	rows, err := r.db.Conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderator activity: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ModeratorActivity, 0)
	for rows.Next() {
		var (
			moderator                 string
			approved, rejected, total uint64
		)
		if err := rows.Scan(&moderator, &approved, &rejected, &total); err != nil {
			return nil, fmt.Errorf("failed to scan moderator activity: %w", err)
		}
		out = append(out, domain.ModeratorActivity{
			ModeratorID: moderator,
			Approved:    int64(approved),
			Rejected:    int64(rejected),
			Total:       int64(total),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during moderator query: %w", err)
	}
	return out, nil
}

// PostGeo ranks location buckets of one post
func (r *ClickHouseEventRepository) PostGeo(ctx context.Context, postID string, limit int) ([]domain.GeoCount, error) {
	defer metrics.ObserveQuery("post_geo", time.Now())

	query := `
		SELECT
			assumeNotNull(location_id) AS loc,
			count() AS c
		FROM analytics_events
		WHERE post_id = ?
			AND location_id IS NOT NULL
		GROUP BY loc
		ORDER BY c DESC, loc ASC
		LIMIT ?
	`

	rows, err := r.db.Conn.Query(ctx, query, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query post geo: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GeoCount, 0, limit)
	for rows.Next() {
		var (
			loc int32
			c   uint64
		)
		if err := rows.Scan(&loc, &c); err != nil {
			return nil, fmt.Errorf("failed to scan geo row: %w", err)
		}
		out = append(out, domain.GeoCount{LocationID: loc, Count: int64(c)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during geo query: %w", err)
	}
	return out, nil
}
