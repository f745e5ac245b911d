package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpulse/internal/domain"
	apperrors "blogpulse/pkg/errors"
)

func TestCounterColumn(t *testing.T) {
	col, err := counterColumn(domain.CounterViews)
	require.NoError(t, err)
	assert.Equal(t, "views", col)

	col, err = counterColumn(domain.CounterReads)
	require.NoError(t, err)
	assert.Equal(t, "reads", col)

	_, err = counterColumn("likes; DROP TABLE posts")
	assert.Error(t, err)
}

func TestOrderByIDs(t *testing.T) {
	posts := []domain.PostSummary{{ID: "b"}, {ID: "c"}, {ID: "a"}}

	got := orderByIDs(posts, []string{"a", "missing", "b", "c", "a"})

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestValidPostIDs(t *testing.T) {
	valid := "7d5e9c1a-2b3f-4c6d-8e9f-0a1b2c3d4e5f"

	got := validPostIDs([]string{"x", valid, "", "not-a-uuid", "{" + valid + "}"})

	assert.Equal(t, []string{valid}, got)
}

func TestPostRepository_MalformedIDs(t *testing.T) {
	// Malformed IDs never reach the pool, so a repository without a
	// database is enough here.
	repo := NewPostRepository(nil)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "not-a-uuid")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = repo.IncrementCounter(ctx, "x", domain.CounterViews)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	posts, err := repo.GetByIDs(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Empty(t, posts)
}

// stubReader fails every call while err is set
type stubReader struct {
	err   error
	calls int
}

func (s *stubReader) PostCounts(context.Context, string) (domain.PostEventCounts, error) {
	s.calls++
	return domain.PostEventCounts{Views: 3}, s.err
}

func (s *stubReader) PostsCounts(context.Context, []string) (domain.PostEventCounts, error) {
	s.calls++
	return domain.PostEventCounts{}, s.err
}

func (s *stubReader) DailyViews(context.Context, []string, time.Time) ([]domain.DailyCount, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []domain.DailyCount{{Date: "2024-01-01", Views: 1}}, nil
}

func (s *stubReader) ActiveUsers(context.Context, time.Time) (int64, error) {
	s.calls++
	return 9, s.err
}

func (s *stubReader) TodayCounts(context.Context, time.Time) (domain.TodayCounts, error) {
	s.calls++
	return domain.TodayCounts{}, s.err
}

func (s *stubReader) Trending(context.Context, time.Time, int) ([]domain.TrendingPost, error) {
	s.calls++
	return nil, s.err
}

func (s *stubReader) ModerationByDay(context.Context, time.Time) ([]domain.ModerationDay, error) {
	s.calls++
	return nil, s.err
}

func (s *stubReader) ModeratorActivity(context.Context, time.Time) ([]domain.ModeratorActivity, error) {
	s.calls++
	return nil, s.err
}

func (s *stubReader) PostGeo(context.Context, string, int) ([]domain.GeoCount, error) {
	s.calls++
	return nil, s.err
}

func TestBreakerEventReader_PassesThrough(t *testing.T) {
	stub := &stubReader{}
	r := NewBreakerEventReader(stub, DefaultBreakerConfig(), nil)
	ctx := context.Background()

	counts, err := r.PostCounts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Views)

	days, err := r.DailyViews(ctx, []string{"p1"}, time.Now())
	require.NoError(t, err)
	assert.Len(t, days, 1)

	n, err := r.ActiveUsers(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	trending, err := r.Trending(ctx, time.Now(), 5)
	require.NoError(t, err)
	assert.Nil(t, trending)
}

func TestBreakerEventReader_OpensAfterFailures(t *testing.T) {
	stub := &stubReader{err: errors.New("connection refused")}
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-opens"
	cfg.FailureThreshold = 2
	r := NewBreakerEventReader(stub, cfg, nil)
	ctx := context.Background()

	_, err := r.PostCounts(ctx, "p1")
	assert.Error(t, err)
	_, err = r.PostGeo(ctx, "p1", 20)
	assert.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err = r.TodayCounts(ctx, time.Now())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, stub.calls, "open breaker does not reach the store")
}

func TestBreakerEventReader_IgnoresCanceledCallers(t *testing.T) {
	stub := &stubReader{err: context.Canceled}
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-canceled"
	cfg.FailureThreshold = 1
	r := NewBreakerEventReader(stub, cfg, nil)

	for i := 0; i < 3; i++ {
		_, err := r.ModerationByDay(context.Background(), time.Now())
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, r.State())
}
