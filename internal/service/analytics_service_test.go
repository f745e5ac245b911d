package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"blogpulse/internal/domain"
	"blogpulse/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

const (
	postOne  = "0b9c2f4e-6c1d-4a8e-9f3b-1d2e3f4a5b01"
	postTwo  = "0b9c2f4e-6c1d-4a8e-9f3b-1d2e3f4a5b02"
	postGone = "0b9c2f4e-6c1d-4a8e-9f3b-1d2e3f4a5bff"
)

func newTestAnalytics(posts *MockPostRepository, reader *fakeReader, activity ActivityService, inspector QueueInspector) *analyticsService {
	svc := NewAnalyticsService(posts, reader, activity, inspector, logger.NewNop()).(*analyticsService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestEngagementRate(t *testing.T) {
	tests := []struct {
		name   string
		counts domain.PostEventCounts
		want   float64
	}{
		{name: "no views", counts: domain.PostEventCounts{Likes: 4, Comments: 2}, want: 0},
		{name: "rounded to two decimals", counts: domain.PostEventCounts{Views: 3, Likes: 1}, want: 33.33},
		{name: "more engagement than views", counts: domain.PostEventCounts{Views: 2, Likes: 3, Shares: 1}, want: 200},
		{name: "empty", counts: domain.PostEventCounts{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engagementRate(tt.counts))
		})
	}
}

func TestMergeAuthorStats_RateSafety(t *testing.T) {
	tests := []struct {
		name           string
		olap           domain.PostEventCounts
		wantCompletion int64
		wantEngagement int64
	}{
		{name: "zero views", olap: domain.PostEventCounts{Reads: 5, Likes: 2}, wantCompletion: 0, wantEngagement: 0},
		{name: "half read", olap: domain.PostEventCounts{Views: 10, Reads: 5, Likes: 1, Comments: 1, Shares: 1}, wantCompletion: 50, wantEngagement: 30},
		{name: "rounds to nearest", olap: domain.PostEventCounts{Views: 3, Reads: 2}, wantCompletion: 67, wantEngagement: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := mergeAuthorStats(domain.AuthorTotals{Views: 99, Posts: 2}, tt.olap, true)
			assert.Equal(t, tt.wantCompletion, stats.CompletionRate)
			assert.Equal(t, tt.wantEngagement, stats.EngagementRate)
			assert.Equal(t, int64(99), stats.TotalViews, "relational totals win")
			assert.Equal(t, tt.olap.Views, stats.Views, "windowed numbers come from the analytics store")
		})
	}
}

func TestGetPostAnalytics(t *testing.T) {
	t.Run("counts from the event log", func(t *testing.T) {
		reader := &fakeReader{counts: domain.PostEventCounts{Views: 8, UniqueViews: 5, Reads: 2, Likes: 1, Comments: 1}}
		svc := newTestAnalytics(&MockPostRepository{}, reader, nil, nil)

		got := svc.GetPostAnalytics(context.Background(), "p1")
		assert.Equal(t, "p1", got.PostID)
		assert.Equal(t, int64(8), got.Views)
		assert.Equal(t, int64(5), got.UniqueViews)
		assert.Equal(t, 25.0, got.EngagementRate)
	})

	t.Run("store failure yields zeros", func(t *testing.T) {
		svc := newTestAnalytics(&MockPostRepository{}, &fakeReader{err: errStore}, nil, nil)

		got := svc.GetPostAnalytics(context.Background(), "p1")
		assert.Equal(t, domain.PostAnalytics{PostID: "p1"}, got)
	})
}

func TestBuildTrend_Completeness(t *testing.T) {
	today := startOfDay(fixedNow)

	tests := []struct {
		name string
		rows []domain.DailyCount
	}{
		{name: "no rows", rows: nil},
		{name: "sparse rows", rows: []domain.DailyCount{
			{Date: "2024-03-05", Views: 4, Reads: 1},
			{Date: "2024-03-10", Views: 2},
		}},
		{name: "row outside the window is ignored", rows: []domain.DailyCount{
			{Date: "2024-02-01", Views: 100},
			{Date: "2024-03-04", Views: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := buildTrend(today, tt.rows)
			require.Len(t, trend, TrendDays)

			assert.Equal(t, "2024-03-04", trend[0].Date)
			assert.Equal(t, "2024-03-10", trend[TrendDays-1].Date)
			for i := 1; i < len(trend); i++ {
				assert.Less(t, trend[i-1].Date, trend[i].Date, "oldest first")
			}

			byDate := map[string]domain.DailyCount{}
			for _, r := range tt.rows {
				byDate[r.Date] = r
			}
			for _, p := range trend {
				assert.Equal(t, byDate[p.Date].Views, p.Views, p.Date)
				assert.Equal(t, byDate[p.Date].Reads, p.Reads, p.Date)
				assert.False(t, p.Synthetic)
			}
		})
	}
}

func TestSynthesizeTrend(t *testing.T) {
	trend := synthesizeTrend(startOfDay(fixedNow), 100, 40)
	require.Len(t, trend, TrendDays)

	wantViews := []int64{5, 10, 15, 10, 15, 20, 25}
	wantReads := []int64{2, 4, 6, 4, 6, 8, 10}
	for i, p := range trend {
		assert.True(t, p.Synthetic)
		assert.Equal(t, wantViews[i], p.Views, p.Date)
		assert.Equal(t, wantReads[i], p.Reads, p.Date)
	}

	// rounding up keeps every day non-zero for small totals
	small := synthesizeTrend(startOfDay(fixedNow), 3, 0)
	for _, p := range small {
		assert.Equal(t, int64(1), p.Views)
		assert.Equal(t, int64(0), p.Reads)
	}
}

func authorRepo(totals domain.AuthorTotals) *MockPostRepository {
	posts := &MockPostRepository{}
	posts.On("ListAuthorPostIDs", mock.Anything, "author-1").Return([]string{"p1", "p2"}, nil)
	posts.On("AuthorTotals", mock.Anything, "author-1").Return(totals, nil)
	posts.On("TopByViews", mock.Anything, "author-1", TopPostsLimit).Return([]domain.PostSummary{{ID: "p1", Views: 80}}, nil)
	return posts
}

func TestGetAuthorDashboardStats_Synthesis(t *testing.T) {
	tests := []struct {
		name          string
		totals        domain.AuthorTotals
		reader        *fakeReader
		wantSynthetic bool
		wantReady     bool
	}{
		{
			name:          "empty analytics store with relational views",
			totals:        domain.AuthorTotals{Posts: 2, Views: 100, Reads: 40},
			reader:        &fakeReader{},
			wantSynthetic: true,
			wantReady:     true,
		},
		{
			name:          "analytics store down with relational views",
			totals:        domain.AuthorTotals{Posts: 2, Views: 100, Reads: 40},
			reader:        &fakeReader{err: errStore},
			wantSynthetic: true,
			wantReady:     false,
		},
		{
			name:          "real trend data",
			totals:        domain.AuthorTotals{Posts: 2, Views: 100},
			reader:        &fakeReader{daily: []domain.DailyCount{{Date: "2024-03-09", Views: 3}}},
			wantSynthetic: false,
			wantReady:     true,
		},
		{
			name:          "no views anywhere",
			totals:        domain.AuthorTotals{Posts: 2},
			reader:        &fakeReader{},
			wantSynthetic: false,
			wantReady:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := authorRepo(tt.totals)
			svc := newTestAnalytics(posts, tt.reader, nil, nil)

			got, err := svc.GetAuthorDashboardStats(context.Background(), "author-1")
			require.NoError(t, err)
			require.Len(t, got.Trend, TrendDays)

			var total int64
			for _, p := range got.Trend {
				assert.Equal(t, tt.wantSynthetic, p.Synthetic)
				total += p.Views
			}
			if tt.wantSynthetic {
				assert.Equal(t, tt.totals.Views, total)
			}
			assert.Equal(t, tt.wantReady, got.Stats.AnalyticsReady)
			assert.Equal(t, tt.totals.Views, got.Stats.TotalViews)
			assert.Len(t, got.TopPosts, 1)
			posts.AssertExpectations(t)
		})
	}
}

func TestGetAuthorDashboardStats_TrendWindow(t *testing.T) {
	reader := &fakeReader{}
	svc := newTestAnalytics(authorRepo(domain.AuthorTotals{}), reader, nil, nil)

	_, err := svc.GetAuthorDashboardStats(context.Background(), "author-1")
	require.NoError(t, err)
	require.Len(t, reader.since, 1)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), reader.since[0])
}

func TestGetAuthorStats_RelationalFailure(t *testing.T) {
	posts := &MockPostRepository{}
	posts.On("ListAuthorPostIDs", mock.Anything, "author-1").Return(nil, assert.AnError)
	posts.On("AuthorTotals", mock.Anything, "author-1").Return(domain.AuthorTotals{}, nil).Maybe()
	svc := newTestAnalytics(posts, &fakeReader{}, nil, nil)

	got, err := svc.GetAuthorStats(context.Background(), "author-1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, got)
}

func TestGetAuthorStats_NoPosts(t *testing.T) {
	posts := &MockPostRepository{}
	posts.On("ListAuthorPostIDs", mock.Anything, "author-1").Return([]string{}, nil)
	posts.On("AuthorTotals", mock.Anything, "author-1").Return(domain.AuthorTotals{}, nil)
	reader := &fakeReader{err: errStore}
	svc := newTestAnalytics(posts, reader, nil, nil)

	got, err := svc.GetAuthorStats(context.Background(), "author-1")
	require.NoError(t, err)
	assert.True(t, got.AnalyticsReady, "no post IDs means nothing to ask the store")
	assert.Zero(t, got.CompletionRate)
}

func TestGetTrendingPosts(t *testing.T) {
	popular := []domain.PostSummary{
		{ID: "p9", Title: "Most viewed", Views: 900},
		{ID: "p8", Title: "Runner up", Views: 800},
	}

	tests := []struct {
		name       string
		reader     *fakeReader
		hydrated   []domain.PostSummary
		wantIDs    []string
		wantSource domain.TrendingSource
	}{
		{
			name:       "store error falls back",
			reader:     &fakeReader{err: errStore},
			wantIDs:    []string{"p9", "p8"},
			wantSource: domain.TrendingFromRelational,
		},
		{
			name:       "empty ranking falls back",
			reader:     &fakeReader{},
			wantIDs:    []string{"p9", "p8"},
			wantSource: domain.TrendingFromRelational,
		},
		{
			name: "hydration keeps rank and drops unknown posts",
			reader: &fakeReader{trending: []domain.TrendingPost{
				{PostID: postTwo, Score: 30, Source: domain.TrendingFromAnalytics},
				{PostID: postGone, Score: 20, Source: domain.TrendingFromAnalytics},
				{PostID: postOne, Score: 10, Source: domain.TrendingFromAnalytics},
			}},
			hydrated:   []domain.PostSummary{{ID: postOne, Title: "One"}, {ID: postTwo, Title: "Two"}},
			wantIDs:    []string{postTwo, postOne},
			wantSource: domain.TrendingFromAnalytics,
		},
		{
			name: "only malformed ids falls back without hydrating",
			reader: &fakeReader{trending: []domain.TrendingPost{
				{PostID: "x", Score: 20, Source: domain.TrendingFromAnalytics},
			}},
			wantIDs:    []string{"p9", "p8"},
			wantSource: domain.TrendingFromRelational,
		},
		{
			name: "every ranked post unknown falls back",
			reader: &fakeReader{trending: []domain.TrendingPost{
				{PostID: postGone, Score: 20, Source: domain.TrendingFromAnalytics},
			}},
			hydrated:   []domain.PostSummary{},
			wantIDs:    []string{"p9", "p8"},
			wantSource: domain.TrendingFromRelational,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := &MockPostRepository{}
			posts.On("ListPopular", mock.Anything, DefaultTrending).Return(popular, nil).Maybe()
			posts.On("GetByIDs", mock.Anything, mock.Anything).Return(tt.hydrated, nil).Maybe()
			svc := newTestAnalytics(posts, tt.reader, nil, nil)

			got, err := svc.GetTrendingPosts(context.Background(), 0)
			require.NoError(t, err)

			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.PostID
				assert.Equal(t, tt.wantSource, p.Source)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestGetTrendingPosts_SkipsMalformedIDs(t *testing.T) {
	ranked := []domain.TrendingPost{
		{PostID: postOne, Score: 40, Source: domain.TrendingFromAnalytics},
		{PostID: "x", Score: 30, Source: domain.TrendingFromAnalytics},
		{PostID: "not-a-post", Score: 25, Source: domain.TrendingFromAnalytics},
		{PostID: postTwo, Score: 10, Source: domain.TrendingFromAnalytics},
	}
	posts := &MockPostRepository{}
	posts.On("GetByIDs", mock.Anything, []string{postOne, postTwo}).Return([]domain.PostSummary{
		{ID: postTwo, Title: "Two", Slug: "two"},
		{ID: postOne, Title: "One", Slug: "one"},
	}, nil)
	svc := newTestAnalytics(posts, &fakeReader{trending: ranked}, nil, nil)

	got, err := svc.GetTrendingPosts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, postOne, got[0].PostID)
	assert.Equal(t, "One", got[0].Title)
	assert.Equal(t, "one", got[0].Slug)
	assert.Equal(t, postTwo, got[1].PostID)
	assert.Equal(t, "Two", got[1].Title)
	posts.AssertExpectations(t)
}

func TestGetTrendingPosts_HydrationError(t *testing.T) {
	ranked := []domain.TrendingPost{{PostID: postOne, Score: 3, Source: domain.TrendingFromAnalytics}}
	posts := &MockPostRepository{}
	posts.On("GetByIDs", mock.Anything, []string{postOne}).Return(nil, assert.AnError)
	svc := newTestAnalytics(posts, &fakeReader{trending: ranked}, nil, nil)

	got, err := svc.GetTrendingPosts(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, ranked, got)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100))
	assert.Equal(t, 20, ClampLimit(-3, 20, 100))
	assert.Equal(t, 7, ClampLimit(7, 20, 100))
	assert.Equal(t, 100, ClampLimit(5000, 20, 100))
}

func TestModerationWindow(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		wantSince time.Time
	}{
		{name: "default", days: 0, wantSince: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{name: "single day", days: 1, wantSince: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{name: "capped", days: 365, wantSince: time.Date(2023, 12, 12, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			svc := newTestAnalytics(&MockPostRepository{}, reader, nil, nil)

			days := svc.GetModerationAnalytics(context.Background(), tt.days)
			require.Len(t, days, 1)
			assert.Equal(t, tt.wantSince, reader.since[0])

			mods := svc.GetModeratorActivity(context.Background(), tt.days)
			assert.NotNil(t, mods)
			assert.Empty(t, mods)
		})
	}
}

func TestAggregations_DegradeOnStoreFailure(t *testing.T) {
	svc := newTestAnalytics(&MockPostRepository{}, &fakeReader{err: errStore}, nil, nil)
	ctx := context.Background()

	assert.Equal(t, []domain.ModerationDay{}, svc.GetModerationAnalytics(ctx, 7))
	assert.Equal(t, []domain.ModeratorActivity{}, svc.GetModeratorActivity(ctx, 7))
	assert.Equal(t, []domain.GeoCount{}, svc.GetPostGeo(ctx, "p1"))

	platform := svc.GetPlatformAnalytics(ctx)
	assert.Zero(t, platform.ActiveUsers7Days)
	assert.Zero(t, platform.PostsCreatedToday)
	assert.Equal(t, fixedNow, platform.GeneratedAt)
	assert.True(t, platform.Degraded)
}

func TestGetPlatformAnalytics(t *testing.T) {
	_, client := setupRedis(t)
	activity := NewActivityService(client, logger.NewNop()).(*activityService)
	activity.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	require.NoError(t, activity.RecordActive(ctx, "u1"))
	require.NoError(t, activity.RecordActive(ctx, "u2"))
	require.NoError(t, activity.RecordActive(ctx, "u1"))

	reader := &fakeReader{
		active: 12,
		today:  domain.TodayCounts{PostsCreated: 3, PostsApproved: 2, PostsRejected: 1, Engagement: 40},
	}
	svc := newTestAnalytics(&MockPostRepository{}, reader, activity, nil)

	got := svc.GetPlatformAnalytics(ctx)
	assert.Equal(t, int64(2), got.ActiveUsersToday)
	assert.Equal(t, int64(12), got.ActiveUsers7Days)
	assert.Equal(t, int64(12), got.ActiveUsers30Days)
	assert.Equal(t, int64(3), got.PostsCreatedToday)
	assert.Equal(t, int64(2), got.PostsApprovedToday)
	assert.Equal(t, int64(1), got.PostsRejectedToday)
	assert.Equal(t, int64(40), got.EngagementToday)
	assert.False(t, got.Degraded)
}

func TestGetQueueHealth(t *testing.T) {
	t.Run("reports depths", func(t *testing.T) {
		_, q := setupQueue(t)
		ctx := context.Background()
		_, err := q.EnqueueBatch(ctx, JobProcessEvent, []any{"a", "b"})
		require.NoError(t, err)

		svc := newTestAnalytics(&MockPostRepository{}, &fakeReader{}, nil, q)
		health := svc.GetQueueHealth(ctx)
		assert.True(t, health.Healthy)
		assert.Equal(t, "events", health.Name)
		assert.Equal(t, int64(2), health.Waiting)
		assert.Empty(t, health.Error)
	})

	t.Run("unreachable backend is unhealthy", func(t *testing.T) {
		mr, q := setupQueue(t)
		mr.SetError("connection refused")

		svc := newTestAnalytics(&MockPostRepository{}, &fakeReader{}, nil, q)
		health := svc.GetQueueHealth(context.Background())
		assert.False(t, health.Healthy)
		assert.NotEmpty(t, health.Error)
	})

	t.Run("no queue configured", func(t *testing.T) {
		svc := newTestAnalytics(&MockPostRepository{}, &fakeReader{}, nil, nil)
		assert.False(t, svc.GetQueueHealth(context.Background()).Healthy)
	})
}
