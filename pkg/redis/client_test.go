package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr := miniredis.RunT(t)

	client, err := NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{
			name:        "Reachable server",
			url:         "redis://" + mr.Addr(),
			expectError: false,
		},
		{
			name:        "Invalid scheme",
			url:         "invalid://url",
			expectError: true,
		},
		{
			name:        "Empty URL",
			url:         "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "test", nil)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client.KeyBuilder)
			assert.NotNil(t, client.Raw())
			_ = client.Close()
		})
	}
}

func TestClient_IncrWithTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	key := client.KeyBuilder.KeyViewDedup("view", "post-1", "client-a")

	for i := int64(1); i <= 4; i++ {
		v, err := client.IncrWithTTL(ctx, key, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestClient_IncrWithTTL_DoesNotExtendWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	key := "test:window"

	_, err := client.IncrWithTTL(ctx, key, time.Hour)
	require.NoError(t, err)

	mr.FastForward(40 * time.Minute)

	v, err := client.IncrWithTTL(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 20*time.Minute, mr.TTL(key))
}

func TestClient_IncrWithTTL_RestartsAfterExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	key := "test:expiring"

	first, err := client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	mr.FastForward(time.Minute + time.Second)

	again, err := client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again)
}

func TestClient_SCard(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		members  []string
		expected int64
	}{
		{name: "Missing set", members: nil, expected: 0},
		{name: "Distinct members", members: []string{"a", "b", "c"}, expected: 3},
		{name: "Duplicates collapse", members: []string{"a", "a", "b"}, expected: 2},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := fmt.Sprintf("test:set:%d", i)
			for _, m := range tt.members {
				_, err := mr.SAdd(key, m)
				require.NoError(t, err)
			}

			n, err := client.SCard(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestClient_Exists(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:present", "1"))

	n, err := client.Exists(ctx, "test:present", "test:absent")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_GetSet(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "test:cache")
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, client.Set(ctx, "test:cache", "payload", time.Minute))
	val, err := client.Get(ctx, "test:cache")
	require.NoError(t, err)
	assert.Equal(t, "payload", val)

	mr.FastForward(time.Minute + time.Second)
	_, err = client.Get(ctx, "test:cache")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestClient_Pipeline(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	pipe := client.Pipeline()
	pipe.SAdd(ctx, "test:pipe:set", "x")
	pipe.Expire(ctx, "test:pipe:set", time.Hour)
	pipe.Incr(ctx, "test:pipe:counter")

	cmds, err := pipe.Exec(ctx)
	require.NoError(t, err)
	assert.Len(t, cmds, 3)

	assert.True(t, mr.Exists("test:pipe:set"))
	counter, _ := mr.Get("test:pipe:counter")
	assert.Equal(t, "1", counter)
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, client.Health(ctx))

	mr.Close()
	assert.Error(t, client.Health(ctx))
}

func TestPrefixForLog(t *testing.T) {
	assert.Equal(t, "short", prefixForLog("short"))
	long := "prod:view:0f1c2d3e-aaaa-bbbb-cccc-123456789abc:client"
	assert.Equal(t, long[:24]+"…", prefixForLog(long))
}
