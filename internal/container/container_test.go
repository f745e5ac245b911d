package container

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blogpulse/internal/config"
	"blogpulse/internal/domain"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/redis"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:      "test",
		QueueName:        "events-test",
		QueueMaxAttempts: 2,
		WorkerCount:      1,
		JobTimeout:       time.Second,
		DedupTTL:         time.Hour,
		MaxBatchSize:     10,
		SessionJWTSecret: "test-secret",
	}
}

func testInfra(t *testing.T) Infra {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return Infra{RedisClient: client}
}

func TestBuild(t *testing.T) {
	c, err := Build(testConfig(), logger.NewNop(), testInfra(t))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.NotNil(t, c.GetAuthService())
	assert.NotNil(t, c.Services.Ingest)
	assert.NotNil(t, c.Services.Analytics)
	assert.NotNil(t, c.Services.Views)
	assert.NotNil(t, c.Services.Activity)
	assert.NotNil(t, c.Services.Processor)
	assert.NotNil(t, c.Hub)
	assert.NotNil(t, c.Breaker)
	assert.Equal(t, "events-test", c.Queue.Name())
	assert.Same(t, c.Infra.RedisClient, c.GetRedisClient())
}

func TestBuild_RequiresRedis(t *testing.T) {
	c, err := Build(testConfig(), logger.NewNop(), Infra{})
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestBuild_IngestReachesQueue(t *testing.T) {
	c, err := Build(testConfig(), logger.NewNop(), testInfra(t))
	require.NoError(t, err)

	ctx := context.Background()
	n, err := c.Services.Ingest.Track(ctx, []domain.AnalyticsEvent{
		{Event: domain.EventLike, ClientID: "c-1", PostID: "p-1"},
	}, domain.RequestMeta{IP: "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := c.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)

	health := c.Services.Analytics.GetQueueHealth(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, int64(1), health.Waiting)
}

func TestStartStopBackground(t *testing.T) {
	c, err := Build(testConfig(), logger.NewNop(), testInfra(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartBackground(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	assert.NoError(t, c.StopBackground(stopCtx))
}
