package chat

import "z-chat-ai-api/internal/domain/entity"

// EventType 流事件类型
type EventType string

const (
	EventTextDelta       EventType = "text-delta"
	EventReasoningDelta  EventType = "reasoning-delta"
	EventReasoningFinish EventType = "reasoning-finish"
	EventToolCall        EventType = "tool-call"
	EventToolResult      EventType = "tool-result"
	EventError           EventType = "error"
	EventFinish          EventType = "finish"
)

// Event 一个类型化的流事件
type Event struct {
	Type EventType
	// Text 增量文本；reasoning-finish 时为权威的完整推理文本
	Text     string
	ToolCall *entity.ToolCall
	// Usage finish 事件携带；提供商未上报时为 nil
	Usage *entity.TokenUsage
	Err   error
}

// Observer 接收已处理的事件，用于 SSE 推送
// 在编排循环内同步调用，实现不应长时间阻塞
type Observer func(Event)
