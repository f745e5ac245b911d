package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"blogpulse/internal/domain"
	"blogpulse/pkg/redis"
)

// CacheStore is the slice of the Redis client the cache needs
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheService provides cache-aside reads of aggregate results
type CacheService struct {
	store  CacheStore
	keys   *redis.KeyBuilder
	logger *zap.Logger
	async  func(func())
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return newCacheService(redisClient, redisClient.KeyBuilder, logger)
}

func newCacheService(store CacheStore, keys *redis.KeyBuilder, logger *zap.Logger) *CacheService {
	return &CacheService{
		store:  store,
		keys:   keys,
		logger: logger,
		async:  func(fn func()) { go fn() },
	}
}

// getOrLoad returns the cached value of key, or runs load and caches its
// result in the background. Cache errors and corrupt entries fall through
// to load. Results that keep rejects are returned but not cached.
func getOrLoad[T any](ctx context.Context, c *CacheService, query, args string, ttl time.Duration, load func(ctx context.Context) (T, error), keep func(T) bool) (T, error) {
	key := c.keys.KeyAnalytics(query, args)

	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		unmarshalErr := json.Unmarshal([]byte(cached), &v)
		if unmarshalErr == nil {
			c.logger.Debug("Analytics cache hit", zap.String("query", query))
			return v, nil
		}
		c.logger.Warn("Analytics cache corrupted, recomputing",
			zap.String("query", query),
			zap.Error(unmarshalErr))
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("Analytics cache error, recomputing",
			zap.String("query", query),
			zap.Error(err))
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if keep != nil && !keep(v) {
		c.logger.Debug("Analytics result degraded, not caching", zap.String("query", query))
		return v, nil
	}

	c.async(func() { c.put(key, query, v, ttl) })
	return v, nil
}

// put writes one entry with its own timeout so it outlives the request
func (c *CacheService) put(key, query string, v interface{}, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal analytics result for caching",
			zap.String("query", query),
			zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, string(data), ttl); err != nil {
		c.logger.Error("Failed to cache analytics result",
			zap.String("query", query),
			zap.Error(err))
	}
}

// cachedAnalytics serves the platform-wide aggregations from the cache.
// Per-author and per-post reads pass through.
type cachedAnalytics struct {
	AnalyticsService
	cache *CacheService
	ttl   time.Duration
}

// NewCachedAnalyticsService wraps next with a short-lived cache for the
// trending and platform aggregations. A non-positive ttl disables caching.
func NewCachedAnalyticsService(next AnalyticsService, cache *CacheService, ttl time.Duration) AnalyticsService {
	if cache == nil || ttl <= 0 {
		return next
	}
	return &cachedAnalytics{AnalyticsService: next, cache: cache, ttl: ttl}
}

func (s *cachedAnalytics) GetTrendingPosts(ctx context.Context, limit int) ([]domain.TrendingPost, error) {
	limit = ClampLimit(limit, DefaultTrending, MaxTrending)
	return getOrLoad(ctx, s.cache, "trending", strconv.Itoa(limit), s.ttl, func(ctx context.Context) ([]domain.TrendingPost, error) {
		return s.AnalyticsService.GetTrendingPosts(ctx, limit)
	}, rankedByAnalytics)
}

func (s *cachedAnalytics) GetPlatformAnalytics(ctx context.Context) domain.PlatformAnalytics {
	v, _ := getOrLoad(ctx, s.cache, "platform", "all", s.ttl, func(ctx context.Context) (domain.PlatformAnalytics, error) {
		return s.AnalyticsService.GetPlatformAnalytics(ctx), nil
	}, func(p domain.PlatformAnalytics) bool { return !p.Degraded })
	return v
}

// rankedByAnalytics rejects relational fallback rankings
func rankedByAnalytics(posts []domain.TrendingPost) bool {
	for _, p := range posts {
		if p.Source == domain.TrendingFromRelational {
			return false
		}
	}
	return true
}
