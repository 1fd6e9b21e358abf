package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-chat-ai-api/internal/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb, &config.RedisConfig{GenerationStateTTL: time.Minute}), mr
}

func TestCancellationFlag(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewGenerationStateStore(c)
	ctx := context.Background()

	flag, err := s.GetCancellationFlag(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, flag)

	require.NoError(t, s.SetCancellationFlag(ctx, "conv-1"))
	flag, err = s.GetCancellationFlag(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, flag)
	assert.Equal(t, time.Minute, mr.TTL("gen:cancel:conv-1"))

	flag, _ = s.GetCancellationFlag(ctx, "conv-2")
	assert.False(t, flag)

	require.NoError(t, s.ClearCancellationFlag(ctx, "conv-1"))
	flag, _ = s.GetCancellationFlag(ctx, "conv-1")
	assert.False(t, flag)
}

func TestCancellationFlagExpires(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewGenerationStateStore(c)
	ctx := context.Background()

	require.NoError(t, s.SetCancellationFlag(ctx, "conv-1"))
	mr.FastForward(2 * time.Minute)
	flag, err := s.GetCancellationFlag(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, flag)
}

func TestGenerationState(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewGenerationStateStore(c)
	s.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	st, err := s.GetGenerationState(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, st.InProgress)
	assert.Equal(t, "conv-1", st.ConversationID)

	require.NoError(t, s.SetGenerationState(ctx, "conv-1", true, "msg-1"))
	st, err = s.GetGenerationState(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, st.InProgress)
	assert.Equal(t, "msg-1", st.MessageID)
	assert.True(t, st.UpdatedAt.Equal(s.now()))

	require.NoError(t, s.SetGenerationState(ctx, "conv-1", false, ""))
	st, err = s.GetGenerationState(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, st.InProgress)
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	l := NewRateLimiter(c)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	key := BuildUserRateLimitKey("user-1", "generate")
	assert.Equal(t, "ratelimit:user-1:generate", key)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := l.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := l.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	now = now.Add(61 * time.Second)
	ok, err = l.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, key))
	remaining, _ = l.Remaining(ctx, key, 3, time.Minute)
	assert.Equal(t, 3, remaining)
}

type cached struct {
	Name string `json:"name"`
}

func TestCacheGetOrLoad(t *testing.T) {
	c, _ := newTestClient(t)
	cache := NewCache(c)
	ctx := context.Background()

	var loads atomic.Int32
	loader := func(context.Context) (any, error) {
		loads.Add(1)
		return &cached{Name: "doc"}, nil
	}

	var out cached
	found, err := cache.GetOrLoad(ctx, "k", time.Minute, &out, loader)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc", out.Name)

	var again cached
	found, err = cache.GetOrLoad(ctx, "k", time.Minute, &again, loader)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc", again.Name)
	assert.Equal(t, int32(1), loads.Load())

	found, err = cache.GetOrLoad(ctx, "missing", time.Minute, &out, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.False(t, found)

	_, err = cache.GetOrLoad(ctx, "broken", time.Minute, &out, func(context.Context) (any, error) { return nil, errors.New("db down") })
	assert.Error(t, err)

	require.NoError(t, cache.Delete(ctx, "k"))
	_, _ = cache.GetOrLoad(ctx, "k", time.Minute, &out, loader)
	assert.Equal(t, int32(2), loads.Load())
}
