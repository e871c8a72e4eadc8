package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/pkg/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
		assert.NoError(t, err)
		if i < 2 {
			assert.True(t, result.Allowed)
		} else {
			assert.False(t, result.Allowed)
		}
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "test:window", 2, time.Second)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	time.Sleep(1100 * time.Millisecond)

	result, err := limiter.Check(ctx, "test:window", 2, time.Second)
	assert.NoError(t, err)
	assert.True(t, result.Allowed)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryLimiter_RejectsWithoutRecording(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	result, err := limiter.Check(ctx, UserKey(7), 1, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	now = now.Add(500 * time.Millisecond)
	result, err = limiter.Check(ctx, UserKey(7), 1, time.Second)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)

	now = now.Add(600 * time.Millisecond)
	result, err = limiter.Check(ctx, UserKey(7), 1, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiter_CleanupBoundsBuckets(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for id := int64(1); id <= 10; id++ {
		_, err := limiter.Check(ctx, UserKey(id), 1, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, limiter.Len())

	now = now.Add(2 * time.Minute)
	_, err := limiter.Check(ctx, UserKey(1), 1, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 9, limiter.Cleanup(time.Minute))
	assert.Equal(t, 1, limiter.Len())
	assert.Zero(t, limiter.Cleanup(0))
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("connection refused")
}

func TestAdaptiveLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("redis rejection", func(t *testing.T) {
		client, cleanup := setupTestRedis(t)
		t.Cleanup(cleanup)

		limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())

		_, err := limiter.Check(ctx, UserKey(1), 1, time.Minute)
		require.NoError(t, err)

		result, err := limiter.Check(ctx, UserKey(1), 1, time.Minute)
		assert.ErrorIs(t, err, ErrLimitExceeded)
		assert.False(t, result.Allowed)
		assert.False(t, limiter.Degraded())
	})

	t.Run("falls back to memory", func(t *testing.T) {
		memory := NewMemoryLimiter(testLogger())
		limiter := NewAdaptiveLimiter(failingLimiter{}, memory, testLogger())

		result, err := limiter.Check(ctx, UserKey(2), 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)

		_, err = limiter.Check(ctx, UserKey(2), 1, time.Minute)
		assert.ErrorIs(t, err, ErrLimitExceeded)
		assert.Equal(t, 1, memory.Len())
		assert.True(t, limiter.Degraded())
	})
}

func TestCleanerSweep(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	stale := keyPrefix + UserKey(1)
	require.NoError(t, client.ZAdd(ctx, stale, redis.Z{
		Score:  float64(time.Now().Add(-time.Hour).UnixMilli()),
		Member: "old",
	}).Err())

	fresh := keyPrefix + UserKey(2)
	require.NoError(t, client.ZAdd(ctx, fresh, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: "new",
	}).Err())

	memory := NewMemoryLimiter(testLogger())
	memory.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := memory.Check(ctx, UserKey(3), 1, time.Second)
	require.NoError(t, err)
	memory.now = time.Now

	NewCleaner(client, memory, testLogger(), time.Minute, 5*time.Minute).Sweep(ctx)

	assert.Zero(t, client.Exists(ctx, stale).Val())
	assert.Equal(t, int64(1), client.Exists(ctx, fresh).Val())
	assert.Zero(t, memory.Len())
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		MessageLimit:  1,
		MessageWindow: time.Second,
		GlobalLimit:   30,
		GlobalWindow:  time.Minute,
	}, []int64{99})

	limit, window := rules.MessageLimit()
	assert.Equal(t, 1, limit)
	assert.Equal(t, time.Second, window)

	limit, window = rules.GlobalLimit()
	assert.Equal(t, 30, limit)
	assert.Equal(t, time.Minute, window)

	assert.True(t, rules.IsWhitelisted(99))
	assert.False(t, rules.IsWhitelisted(1))
	assert.Equal(t, "user:42", UserKey(42))
}
