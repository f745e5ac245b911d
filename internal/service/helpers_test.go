package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blogpulse/internal/domain"
	"blogpulse/pkg/queue"
	"blogpulse/pkg/redis"
)

var errStore = errors.New("analytics store down")

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func setupQueue(t *testing.T) (*miniredis.Miniredis, *queue.Queue) {
	mr, client := setupRedis(t)
	opts := queue.DefaultOptions("events")
	opts.MaxAttempts = 2
	return mr, queue.New(client, opts, zap.NewNop())
}

// MockPostRepository mocks repository.PostRepository
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) GetByID(ctx context.Context, id string) (*domain.PostSummary, error) {
	args := m.Called(ctx, id)
	post, _ := args.Get(0).(*domain.PostSummary)
	return post, args.Error(1)
}

func (m *MockPostRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.PostSummary, error) {
	args := m.Called(ctx, ids)
	posts, _ := args.Get(0).([]domain.PostSummary)
	return posts, args.Error(1)
}

func (m *MockPostRepository) ListAuthorPostIDs(ctx context.Context, authorID string) ([]string, error) {
	args := m.Called(ctx, authorID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockPostRepository) TopByViews(ctx context.Context, authorID string, limit int) ([]domain.PostSummary, error) {
	args := m.Called(ctx, authorID, limit)
	posts, _ := args.Get(0).([]domain.PostSummary)
	return posts, args.Error(1)
}

func (m *MockPostRepository) AuthorTotals(ctx context.Context, authorID string) (domain.AuthorTotals, error) {
	args := m.Called(ctx, authorID)
	return args.Get(0).(domain.AuthorTotals), args.Error(1)
}

func (m *MockPostRepository) ListPopular(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	args := m.Called(ctx, limit)
	posts, _ := args.Get(0).([]domain.PostSummary)
	return posts, args.Error(1)
}

func (m *MockPostRepository) IncrementCounter(ctx context.Context, postID string, counter domain.PostCounter) (int64, error) {
	args := m.Called(ctx, postID, counter)
	return args.Get(0).(int64), args.Error(1)
}

// fakeReader returns canned analytics-store results, or err for everything
type fakeReader struct {
	mu sync.Mutex

	err      error
	counts   domain.PostEventCounts
	daily    []domain.DailyCount
	active   int64
	today    domain.TodayCounts
	trending []domain.TrendingPost
	geo      []domain.GeoCount

	since []time.Time
}

func (f *fakeReader) record(since time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
}

func (f *fakeReader) PostCounts(context.Context, string) (domain.PostEventCounts, error) {
	if f.err != nil {
		return domain.PostEventCounts{}, f.err
	}
	return f.counts, nil
}

func (f *fakeReader) PostsCounts(context.Context, []string) (domain.PostEventCounts, error) {
	if f.err != nil {
		return domain.PostEventCounts{}, f.err
	}
	return f.counts, nil
}

func (f *fakeReader) DailyViews(_ context.Context, _ []string, since time.Time) ([]domain.DailyCount, error) {
	f.record(since)
	if f.err != nil {
		return nil, f.err
	}
	return f.daily, nil
}

func (f *fakeReader) ActiveUsers(context.Context, time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.active, nil
}

func (f *fakeReader) TodayCounts(context.Context, time.Time) (domain.TodayCounts, error) {
	if f.err != nil {
		return domain.TodayCounts{}, f.err
	}
	return f.today, nil
}

func (f *fakeReader) Trending(context.Context, time.Time, int) ([]domain.TrendingPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trending, nil
}

func (f *fakeReader) ModerationByDay(_ context.Context, since time.Time) ([]domain.ModerationDay, error) {
	f.record(since)
	if f.err != nil {
		return nil, f.err
	}
	return []domain.ModerationDay{{Date: since.Format("2006-01-02"), Approved: 1}}, nil
}

func (f *fakeReader) ModeratorActivity(_ context.Context, since time.Time) ([]domain.ModeratorActivity, error) {
	f.record(since)
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func (f *fakeReader) PostGeo(context.Context, string, int) ([]domain.GeoCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.geo, nil
}

// fakeWriter records written rows; failEvent and failRaw inject errors
type fakeWriter struct {
	mu        sync.Mutex
	failEvent error
	failRaw   error
	events    []domain.EventRow
	views     []domain.RawView
}

func (f *fakeWriter) InsertEvent(_ context.Context, row domain.EventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEvent != nil {
		return f.failEvent
	}
	f.events = append(f.events, row)
	return nil
}

func (f *fakeWriter) InsertRawView(_ context.Context, view domain.RawView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRaw != nil {
		return f.failRaw
	}
	f.views = append(f.views, view)
	return nil
}

// fakeQueue records enqueued payloads
type fakeQueue struct {
	mu       sync.Mutex
	err      error
	payloads []any
}

func (f *fakeQueue) Enqueue(_ context.Context, _ string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "job", nil
}

func (f *fakeQueue) EnqueueBatch(_ context.Context, _ string, payloads []any) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payloads...)
	ids := make([]string, len(payloads))
	return ids, nil
}

func (f *fakeQueue) events() []domain.AnalyticsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AnalyticsEvent, 0, len(f.payloads))
	for _, p := range f.payloads {
		out = append(out, p.(domain.AnalyticsEvent))
	}
	return out
}

// fakeNotifier collects counter changes
type fakeNotifier struct {
	mu      sync.Mutex
	changes []domain.CounterChange
}

func (f *fakeNotifier) NotifyCounter(change domain.CounterChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
}
