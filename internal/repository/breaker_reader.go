package repository

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"blogpulse/internal/domain"
	"blogpulse/pkg/metrics"
)

// BreakerConfig configures the analytics-store circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state count reset period
	Timeout          time.Duration // open-state duration before probing
	FailureThreshold uint32        // consecutive failures before opening
}

// DefaultBreakerConfig returns production defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "analytics-store",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerEventReader fails fast while the analytics store is unhealthy.
// Callers see gobreaker.ErrOpenState and fall back like for any other error.
type BreakerEventReader struct {
	next EventReader
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerEventReader wraps next with a circuit breaker
func NewBreakerEventReader(next EventReader, cfg BreakerConfig, log *zap.Logger) *BreakerEventReader {
	if log == nil {
		log = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Analytics store breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		// a caller giving up says nothing about store health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return &BreakerEventReader{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State reports the breaker state
func (b *BreakerEventReader) State() gobreaker.State {
	return b.cb.State()
}

func guarded[T any](b *BreakerEventReader, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

func (b *BreakerEventReader) PostCounts(ctx context.Context, postID string) (domain.PostEventCounts, error) {
	return guarded(b, func() (domain.PostEventCounts, error) { return b.next.PostCounts(ctx, postID) })
}

func (b *BreakerEventReader) PostsCounts(ctx context.Context, postIDs []string) (domain.PostEventCounts, error) {
	return guarded(b, func() (domain.PostEventCounts, error) { return b.next.PostsCounts(ctx, postIDs) })
}

func (b *BreakerEventReader) DailyViews(ctx context.Context, postIDs []string, since time.Time) ([]domain.DailyCount, error) {
	return guarded(b, func() ([]domain.DailyCount, error) { return b.next.DailyViews(ctx, postIDs, since) })
}

func (b *BreakerEventReader) ActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	return guarded(b, func() (int64, error) { return b.next.ActiveUsers(ctx, since) })
}

func (b *BreakerEventReader) TodayCounts(ctx context.Context, since time.Time) (domain.TodayCounts, error) {
	return guarded(b, func() (domain.TodayCounts, error) { return b.next.TodayCounts(ctx, since) })
}

func (b *BreakerEventReader) Trending(ctx context.Context, since time.Time, limit int) ([]domain.TrendingPost, error) {
	return guarded(b, func() ([]domain.TrendingPost, error) { return b.next.Trending(ctx, since, limit) })
}

func (b *BreakerEventReader) ModerationByDay(ctx context.Context, since time.Time) ([]domain.ModerationDay, error) {
	return guarded(b, func() ([]domain.ModerationDay, error) { return b.next.ModerationByDay(ctx, since) })
}

func (b *BreakerEventReader) ModeratorActivity(ctx context.Context, since time.Time) ([]domain.ModeratorActivity, error) {
	return guarded(b, func() ([]domain.ModeratorActivity, error) { return b.next.ModeratorActivity(ctx, since) })
}

func (b *BreakerEventReader) PostGeo(ctx context.Context, postID string, limit int) ([]domain.GeoCount, error) {
	return guarded(b, func() ([]domain.GeoCount, error) { return b.next.PostGeo(ctx, postID, limit) })
}
