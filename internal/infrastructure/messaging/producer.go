package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
	"z-chat-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	stream Stream
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, cfg config.RedisStreamConfig) *Producer {
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	stream := Stream(cfg.Stream)
	if stream == "" {
		stream = StreamGenerationEvents
	}
	return &Producer{client: client, stream: stream, maxLen: maxLen}
}

// Publish 发布消息到流
func (p *Producer) Publish(ctx context.Context, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(p.stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(p.stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type": msg.Type,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamPublished.WithLabelValues(string(p.stream), "error").Inc()
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.RedisStreamPublished.WithLabelValues(string(p.stream), "success").Inc()
	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishGenerationEvent 发布生成生命周期事件
func (p *Producer) PublishGenerationEvent(ctx context.Context, ev *service.GenerationEvent) error {
	msg, err := NewMessage(uuid.NewString(), string(ev.Type), ev.ConversationID, ev.UserID, ev, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to build generation event: %w", err)
	}
	if id, ok := logger.ValueFromContext(ctx, logger.RequestIDKey); ok {
		msg.SetMetadata("request_id", id)
	}
	if id, ok := logger.ValueFromContext(ctx, logger.TraceIDKey); ok {
		msg.SetMetadata("trace_id", id)
	}
	_, err = p.Publish(ctx, msg)
	return err
}
