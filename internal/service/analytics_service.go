package service

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"blogpulse/internal/domain"
	"blogpulse/internal/repository"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
)

const (
	TrendDays         = 7
	TopPostsLimit     = 5
	GeoLimit          = 20
	TrendingWindow    = 24 * time.Hour
	DefaultTrending   = 20
	MaxTrending       = 100
	DefaultWindowDays = 7
	MaxWindowDays     = 90
)

// trendWeights spreads lifetime totals over the trend days, oldest first, in
// percent. They sum to 100.
var trendWeights = [TrendDays]int64{5, 10, 15, 10, 15, 20, 25}

// analyticsService reconciles relational totals with analytics-store
// aggregates. Relational data wins for lifetime totals, the analytics store
// for windowed and dimensional numbers.
type analyticsService struct {
	posts    repository.PostRepository
	events   repository.EventReader
	activity ActivityService
	queue    QueueInspector
	logger   *logger.Logger
	now      func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(posts repository.PostRepository, events repository.EventReader, activity ActivityService, queue QueueInspector, logger *logger.Logger) AnalyticsService {
	return &analyticsService{
		posts:    posts,
		events:   events,
		activity: activity,
		queue:    queue,
		logger:   logger.Component("analytics"),
		now:      time.Now,
	}
}

// fallback logs an analytics-store failure that is being absorbed
func (s *analyticsService) fallback(query string, err error) {
	metrics.QueryFallbacks.WithLabelValues(query).Inc()
	s.logger.WithError(err).WithField("query", query).Warn("Analytics store query failed, using fallback")
}

// GetPostAnalytics never fails; a store error yields zeros
func (s *analyticsService) GetPostAnalytics(ctx context.Context, postID string) domain.PostAnalytics {
	counts, err := s.events.PostCounts(ctx, postID)
	if err != nil {
		s.fallback("post_counts", err)
		counts = domain.PostEventCounts{}
	}

	return domain.PostAnalytics{
		PostID:         postID,
		Views:          counts.Views,
		UniqueViews:    counts.UniqueViews,
		Reads:          counts.Reads,
		Likes:          counts.Likes,
		Comments:       counts.Comments,
		Shares:         counts.Shares,
		EngagementRate: engagementRate(counts),
	}
}

// engagementRate is (likes+comments+shares)/views*100 with two decimals
func engagementRate(c domain.PostEventCounts) float64 {
	if c.Views <= 0 {
		return 0
	}
	rate := float64(c.Likes+c.Comments+c.Shares) / float64(c.Views) * 100
	return math.Round(rate*100) / 100
}

// percent is round(part/whole*100), 0 when whole is 0
func percent(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return int64(math.Round(float64(part) / float64(whole) * 100))
}

// relationalAuthor is the phase-one result
type relationalAuthor struct {
	postIDs []string
	top     []domain.PostSummary
	totals  domain.AuthorTotals
}

func (s *analyticsService) loadRelational(ctx context.Context, authorID string, withTop bool) (relationalAuthor, error) {
	var out relationalAuthor
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ids, err := s.posts.ListAuthorPostIDs(gctx, authorID)
		out.postIDs = ids
		return err
	})
	g.Go(func() error {
		totals, err := s.posts.AuthorTotals(gctx, authorID)
		out.totals = totals
		return err
	})
	if withTop {
		g.Go(func() error {
			top, err := s.posts.TopByViews(gctx, authorID, TopPostsLimit)
			out.top = top
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return relationalAuthor{}, err
	}
	return out, nil
}

// analyticsAuthor is the phase-two result; ok is false when the store failed
type analyticsAuthor struct {
	counts domain.PostEventCounts
	daily  []domain.DailyCount
	ok     bool
}

func (s *analyticsService) loadAnalytics(ctx context.Context, postIDs []string, since time.Time, withTrend bool) analyticsAuthor {
	out := analyticsAuthor{ok: true}
	if len(postIDs) == 0 {
		return out
	}

	var countsErr, dailyErr error
	var g errgroup.Group
	g.Go(func() error {
		out.counts, countsErr = s.events.PostsCounts(ctx, postIDs)
		return nil
	})
	if withTrend {
		g.Go(func() error {
			out.daily, dailyErr = s.events.DailyViews(ctx, postIDs, since)
			return nil
		})
	}
	_ = g.Wait()

	if countsErr != nil {
		s.fallback("posts_counts", countsErr)
		out.counts = domain.PostEventCounts{}
		out.ok = false
	}
	if dailyErr != nil {
		s.fallback("daily_views", dailyErr)
		out.daily = nil
		out.ok = false
	}
	return out
}

// mergeAuthorStats applies the precedence rules
func mergeAuthorStats(rel domain.AuthorTotals, olap domain.PostEventCounts, ok bool) domain.AuthorStats {
	return domain.AuthorStats{
		TotalPosts:     rel.Posts,
		TotalViews:     rel.Views,
		TotalLikes:     rel.Likes,
		TotalDislikes:  rel.Dislikes,
		TotalComments:  rel.Comments,
		UniqueViewers:  olap.UniqueViewers,
		Views:          olap.Views,
		Reads:          olap.Reads,
		Likes:          olap.Likes,
		Comments:       olap.Comments,
		Shares:         olap.Shares,
		CompletionRate: percent(olap.Reads, olap.Views),
		EngagementRate: percent(olap.Likes+olap.Comments+olap.Shares, olap.Views),
		AnalyticsReady: ok,
	}
}

// GetAuthorStats fails only when the relational store does
func (s *analyticsService) GetAuthorStats(ctx context.Context, authorID string) (*domain.AuthorStats, error) {
	rel, err := s.loadRelational(ctx, authorID, false)
	if err != nil {
		return nil, err
	}
	olap := s.loadAnalytics(ctx, rel.postIDs, time.Time{}, false)
	stats := mergeAuthorStats(rel.totals, olap.counts, olap.ok)
	return &stats, nil
}

// GetAuthorDashboardStats runs the relational phase, then the analytics
// phase, and builds the trend
func (s *analyticsService) GetAuthorDashboardStats(ctx context.Context, authorID string) (*domain.DashboardStats, error) {
	rel, err := s.loadRelational(ctx, authorID, true)
	if err != nil {
		return nil, err
	}

	today := startOfDay(s.now())
	since := today.AddDate(0, 0, -(TrendDays - 1))
	olap := s.loadAnalytics(ctx, rel.postIDs, since, true)

	trend := buildTrend(today, olap.daily)
	if trendViews(trend) == 0 && rel.totals.Views > 0 {
		trend = synthesizeTrend(today, rel.totals.Views, rel.totals.Reads)
	}

	top := rel.top
	if top == nil {
		top = []domain.PostSummary{}
	}

	return &domain.DashboardStats{
		Stats:    mergeAuthorStats(rel.totals, olap.counts, olap.ok),
		Trend:    trend,
		TopPosts: top,
	}, nil
}

// trendDates lists the ISO dates of the trend window ending today, oldest first
func trendDates(today time.Time) [TrendDays]string {
	var dates [TrendDays]string
	for i := 0; i < TrendDays; i++ {
		dates[i] = today.AddDate(0, 0, i-(TrendDays-1)).Format("2006-01-02")
	}
	return dates
}

// buildTrend has exactly one point per day; days without rows are zero
func buildTrend(today time.Time, rows []domain.DailyCount) []domain.TrendPoint {
	byDate := make(map[string]domain.DailyCount, len(rows))
	for _, r := range rows {
		byDate[r.Date] = r
	}

	dates := trendDates(today)
	trend := make([]domain.TrendPoint, TrendDays)
	for i, d := range dates {
		row := byDate[d]
		trend[i] = domain.TrendPoint{Date: d, Views: row.Views, Reads: row.Reads}
	}
	return trend
}

func trendViews(trend []domain.TrendPoint) int64 {
	var total int64
	for _, p := range trend {
		total += p.Views
	}
	return total
}

// synthesizeTrend spreads lifetime totals over the window by trendWeights,
// rounding up. Points are marked synthetic.
func synthesizeTrend(today time.Time, views, reads int64) []domain.TrendPoint {
	dates := trendDates(today)
	trend := make([]domain.TrendPoint, TrendDays)
	for i, d := range dates {
		trend[i] = domain.TrendPoint{
			Date:      d,
			Views:     ceilPercent(views, trendWeights[i]),
			Reads:     ceilPercent(reads, trendWeights[i]),
			Synthetic: true,
		}
	}
	return trend
}

// ceilPercent is ceil(v*pct/100) in integer arithmetic
func ceilPercent(v, pct int64) int64 {
	if v <= 0 {
		return 0
	}
	return (v*pct + 99) / 100
}

// GetPlatformAnalytics fans out to the fast counter and the analytics store
func (s *analyticsService) GetPlatformAnalytics(ctx context.Context) domain.PlatformAnalytics {
	now := s.now().UTC()
	out := domain.PlatformAnalytics{GeneratedAt: now}

	var (
		today        domain.TodayCounts
		todayErr     error
		active7Err   error
		active30Err  error
		activeDayErr error
	)

	var g errgroup.Group
	if s.activity != nil {
		g.Go(func() error {
			out.ActiveUsersToday, activeDayErr = s.activity.CountToday(ctx)
			return nil
		})
	}
	g.Go(func() error {
		out.ActiveUsers7Days, active7Err = s.events.ActiveUsers(ctx, now.Add(-7*24*time.Hour))
		return nil
	})
	g.Go(func() error {
		out.ActiveUsers30Days, active30Err = s.events.ActiveUsers(ctx, now.Add(-30*24*time.Hour))
		return nil
	})
	g.Go(func() error {
		today, todayErr = s.events.TodayCounts(ctx, startOfDay(now))
		return nil
	})
	_ = g.Wait()

	if activeDayErr != nil {
		s.logger.WithError(activeDayErr).Warn("Failed to read today's active users")
		out.ActiveUsersToday = 0
	}
	if active7Err != nil {
		s.fallback("active_users_7d", active7Err)
		out.ActiveUsers7Days = 0
	}
	if active30Err != nil {
		s.fallback("active_users_30d", active30Err)
		out.ActiveUsers30Days = 0
	}
	if todayErr != nil {
		s.fallback("today_counts", todayErr)
		today = domain.TodayCounts{}
	}

	out.Degraded = activeDayErr != nil || active7Err != nil || active30Err != nil || todayErr != nil
	out.PostsCreatedToday = today.PostsCreated
	out.PostsApprovedToday = today.PostsApproved
	out.PostsRejectedToday = today.PostsRejected
	out.EngagementToday = today.Engagement
	return out
}

// ClampLimit bounds a list size, substituting def for non-positive values
func ClampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// GetTrendingPosts ranks by analytics-store engagement and falls back to the
// relational popularity order when the store errors or has nothing
func (s *analyticsService) GetTrendingPosts(ctx context.Context, limit int) ([]domain.TrendingPost, error) {
	limit = ClampLimit(limit, DefaultTrending, MaxTrending)

	ranked, err := s.events.Trending(ctx, s.now().UTC().Add(-TrendingWindow), limit)
	if err != nil {
		s.fallback("trending", err)
		return s.relationalTrending(ctx, limit)
	}
	if len(ranked) == 0 {
		return s.relationalTrending(ctx, limit)
	}

	ids := make([]string, 0, len(ranked))
	for _, t := range ranked {
		if domain.ValidPostID(t.PostID) {
			ids = append(ids, t.PostID)
		}
	}
	if len(ids) == 0 {
		return s.relationalTrending(ctx, limit)
	}
	posts, err := s.posts.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to hydrate trending posts")
		return ranked, nil
	}

	hydrated := hydrateTrending(ranked, posts)
	if len(hydrated) == 0 {
		return s.relationalTrending(ctx, limit)
	}
	return hydrated, nil
}

// hydrateTrending keeps rank order and drops IDs unknown to the relational
// store
func hydrateTrending(ranked []domain.TrendingPost, posts []domain.PostSummary) []domain.TrendingPost {
	byID := make(map[string]domain.PostSummary, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	out := make([]domain.TrendingPost, 0, len(ranked))
	for _, t := range ranked {
		p, ok := byID[t.PostID]
		if !ok {
			continue
		}
		t.Title = p.Title
		t.Slug = p.Slug
		out = append(out, t)
	}
	return out
}

func (s *analyticsService) relationalTrending(ctx context.Context, limit int) ([]domain.TrendingPost, error) {
	posts, err := s.posts.ListPopular(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TrendingPost, len(posts))
	for i, p := range posts {
		out[i] = domain.TrendingPost{
			PostID: p.ID,
			Title:  p.Title,
			Slug:   p.Slug,
			Likes:  p.Likes,
			Views:  p.Views,
			Source: domain.TrendingFromRelational,
		}
	}
	return out, nil
}

// windowStart is midnight of the first day of a days-long window ending today
func (s *analyticsService) windowStart(days int) time.Time {
	days = ClampLimit(days, DefaultWindowDays, MaxWindowDays)
	return startOfDay(s.now()).AddDate(0, 0, -(days - 1))
}

// GetModerationAnalytics groups moderation outcomes by date
func (s *analyticsService) GetModerationAnalytics(ctx context.Context, days int) []domain.ModerationDay {
	rows, err := s.events.ModerationByDay(ctx, s.windowStart(days))
	if err != nil {
		s.fallback("moderation_by_day", err)
		return []domain.ModerationDay{}
	}
	if rows == nil {
		rows = []domain.ModerationDay{}
	}
	return rows
}

// GetModeratorActivity groups moderation outcomes by moderator
func (s *analyticsService) GetModeratorActivity(ctx context.Context, days int) []domain.ModeratorActivity {
	rows, err := s.events.ModeratorActivity(ctx, s.windowStart(days))
	if err != nil {
		s.fallback("moderator_activity", err)
		return []domain.ModeratorActivity{}
	}
	if rows == nil {
		rows = []domain.ModeratorActivity{}
	}
	return rows
}

// GetPostGeo returns the top location buckets of a post
func (s *analyticsService) GetPostGeo(ctx context.Context, postID string) []domain.GeoCount {
	rows, err := s.events.PostGeo(ctx, postID, GeoLimit)
	if err != nil {
		s.fallback("post_geo", err)
		return []domain.GeoCount{}
	}
	if rows == nil {
		rows = []domain.GeoCount{}
	}
	return rows
}

// GetQueueHealth reports depths; an unreachable queue is unhealthy, not an error
func (s *analyticsService) GetQueueHealth(ctx context.Context) domain.QueueHealth {
	health := domain.QueueHealth{CheckedAt: s.now().UTC()}
	if s.queue == nil {
		health.Error = "queue not configured"
		return health
	}
	health.Name = s.queue.Name()

	if err := s.queue.Ping(ctx); err != nil {
		health.Error = err.Error()
		return health
	}
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		health.Error = err.Error()
		return health
	}

	health.Healthy = true
	health.Waiting = stats.Waiting
	health.Active = stats.Active
	health.Delayed = stats.Delayed
	health.DeadLettered = stats.DeadLettered
	health.Processed = stats.Processed
	health.Failed = stats.Dead
	return health
}
