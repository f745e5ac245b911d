package service

import (
	"context"
	"fmt"
	"time"

	"blogpulse/pkg/logger"
	"blogpulse/pkg/redis"
)

// activityService tracks distinct daily actors in a Redis set per day
type activityService struct {
	redisClient *redis.Client
	logger      *logger.Logger
	now         func() time.Time
}

// NewActivityService creates a new activity service
func NewActivityService(redisClient *redis.Client, logger *logger.Logger) ActivityService {
	return &activityService{
		redisClient: redisClient,
		logger:      logger.Component("activity"),
		now:         time.Now,
	}
}

func (s *activityService) todayKey() string {
	return s.redisClient.KeyBuilder.KeyActiveDaily(s.now().UTC().Format("2006-01-02"))
}

// RecordActive adds the actor to today's set
func (s *activityService) RecordActive(ctx context.Context, actorID string) error {
	if actorID == "" {
		return nil
	}
	key := s.todayKey()

	pipe := s.redisClient.Pipeline()
	pipe.SAdd(ctx, key, actorID)
	pipe.Expire(ctx, key, redis.TTLActiveDaily)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to record active user")
		return fmt.Errorf("failed to record active user: %w", err)
	}
	return nil
}

// CountToday returns the cardinality of today's set
func (s *activityService) CountToday(ctx context.Context) (int64, error) {
	n, err := s.redisClient.SCard(ctx, s.todayKey())
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return n, nil
}
