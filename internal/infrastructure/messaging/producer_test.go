package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
)

func TestPublishGenerationEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := NewProducer(rdb, config.RedisStreamConfig{Stream: "stream:test"})
	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-1")
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	err := p.PublishGenerationEvent(ctx, &service.GenerationEvent{
		Type:           service.GenerationCompleted,
		ConversationID: "conv-1",
		UserID:         "user-1",
		Provider:       "openai",
		Model:          "gpt-4o",
		TokensUsed:     42,
		OccurredAt:     at,
	})
	require.NoError(t, err)

	entries, err := rdb.XRange(context.Background(), "stream:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(service.GenerationCompleted), entries[0].Values["type"])

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &msg))
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.Equal(t, "req-1", msg.Metadata["request_id"])
	assert.True(t, msg.CreatedAt.Equal(at))

	var ev service.GenerationEvent
	require.NoError(t, msg.UnmarshalPayload(&ev))
	assert.Equal(t, 42, ev.TokensUsed)
}

func TestNewProducerDefaults(t *testing.T) {
	p := NewProducer(nil, config.RedisStreamConfig{})
	assert.Equal(t, StreamGenerationEvents, p.stream)
	assert.Equal(t, int64(100000), p.maxLen)
}
