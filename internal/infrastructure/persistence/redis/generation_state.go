package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-chat-ai-api/internal/domain/entity"
)

const defaultStateTTL = time.Hour

// GenerationStateStore 跨实例共享的取消标记与生成进行中状态
type GenerationStateStore struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time
}

// NewGenerationStateStore 创建生成状态存储
func NewGenerationStateStore(client *Client) *GenerationStateStore {
	ttl := client.config.GenerationStateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &GenerationStateStore{client: client, ttl: ttl, now: time.Now}
}

func cancelKey(conversationID string) string {
	return "gen:cancel:" + conversationID
}

func stateKey(conversationID string) string {
	return "gen:state:" + conversationID
}

// GetCancellationFlag 读取取消标记
func (s *GenerationStateStore) GetCancellationFlag(ctx context.Context, conversationID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.GenerationState.GetCancellationFlag",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	n, err := s.client.rdb.Exists(ctx, cancelKey(conversationID)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return n > 0, nil
}

// SetCancellationFlag 设置取消标记，带过期时间避免残留
func (s *GenerationStateStore) SetCancellationFlag(ctx context.Context, conversationID string) error {
	ctx, span := tracer.Start(ctx, "redis.GenerationState.SetCancellationFlag",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if err := s.client.rdb.Set(ctx, cancelKey(conversationID), "1", s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cancellation flag: %w", err)
	}
	return nil
}

// ClearCancellationFlag 清除取消标记
func (s *GenerationStateStore) ClearCancellationFlag(ctx context.Context, conversationID string) error {
	ctx, span := tracer.Start(ctx, "redis.GenerationState.ClearCancellationFlag",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if err := s.client.rdb.Del(ctx, cancelKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear cancellation flag: %w", err)
	}
	return nil
}

// SetGenerationState 写入生成状态；结束时删除键
func (s *GenerationStateStore) SetGenerationState(ctx context.Context, conversationID string, inProgress bool, messageID string) error {
	ctx, span := tracer.Start(ctx, "redis.GenerationState.SetGenerationState",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Bool("generation.in_progress", inProgress),
		))
	defer span.End()

	key := stateKey(conversationID)
	if !inProgress {
		if err := s.client.rdb.Del(ctx, key).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to clear generation state: %w", err)
		}
		return nil
	}

	b, err := json.Marshal(&entity.GenerationState{
		ConversationID: conversationID,
		InProgress:     true,
		MessageID:      messageID,
		UpdatedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal generation state: %w", err)
	}
	if err := s.client.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set generation state: %w", err)
	}
	return nil
}

// GetGenerationState 不存在时返回 InProgress=false
func (s *GenerationStateStore) GetGenerationState(ctx context.Context, conversationID string) (*entity.GenerationState, error) {
	ctx, span := tracer.Start(ctx, "redis.GenerationState.GetGenerationState",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	b, err := s.client.rdb.Get(ctx, stateKey(conversationID)).Bytes()
	if IsNil(err) {
		return &entity.GenerationState{ConversationID: conversationID}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get generation state: %w", err)
	}

	var st entity.GenerationState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("failed to decode generation state: %w", err)
	}
	return &st, nil
}
