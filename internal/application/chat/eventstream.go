package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-chat-ai-api/internal/domain/entity"
)

// EventStream 将模型的分片流转换为有序的类型化事件，并在步骤间执行工具调用
// 单协程拉取，不做预读
type EventStream struct {
	chat     model.BaseChatModel
	opts     []model.Option
	tools    *toolRunner
	maxSteps int

	history []*schema.Message
	reader  *schema.StreamReader[*schema.Message]
	chunks  []*schema.Message
	step    int
	pending []Event

	// queued 已返回调用事件、尚未执行的工具
	queued     []*entity.ToolCall
	nextStep   bool
	streamErrs int
	done       bool
	closed     bool

	texts      []string
	reasonings []string
	usage      *entity.TokenUsage
	resolveErr error
}

// openEventStream 绑定工具并发起第一步流式调用
func openEventStream(ctx context.Context, chat model.ToolCallingChatModel, msgs []*schema.Message, opts []model.Option, tools *toolRunner, maxSteps int) (*EventStream, error) {
	var base model.BaseChatModel = chat
	if !tools.empty() {
		bound, err := chat.WithTools(tools.infos)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		base = bound
	}
	if maxSteps < 1 {
		maxSteps = 1
	}
	s := &EventStream{
		chat:     base,
		opts:     opts,
		tools:    tools,
		maxSteps: maxSteps,
		history:  append([]*schema.Message(nil), msgs...),
	}
	if err := s.openStep(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EventStream) openStep(ctx context.Context) error {
	reader, err := s.chat.Stream(ctx, s.history, s.opts...)
	if err != nil {
		return err
	}
	s.reader = reader
	s.closed = false
	s.chunks = nil
	s.step++
	return nil
}

// Next 返回下一个事件，流结束时返回 io.EOF
// 提供商中途出错时先返回 error 事件，继续读完剩余分片后流自然结束
// 工具调用事件先于执行返回，之后每次调用执行一个工具
func (s *EventStream) Next(ctx context.Context) (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		if len(s.queued) > 0 {
			s.runQueuedTool(ctx)
			continue
		}
		if s.nextStep {
			s.nextStep = false
			if err := s.openStep(ctx); err != nil {
				return Event{}, err
			}
			continue
		}

		chunk, err := s.reader.Recv()
		switch {
		case errors.Is(err, io.EOF):
			s.finishStep()
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.Close()
				return Event{}, ctxErr
			}
			s.streamErrs++
			if s.streamErrs == 1 {
				s.pending = append(s.pending, Event{Type: EventError, Err: &InBandStreamError{Err: err}})
			}
			if s.streamErrs >= maxStreamErrors {
				// 读取端只会重复返回错误，视为流已结束
				s.finishStep()
			}
		default:
			s.chunks = append(s.chunks, chunk)
			if chunk.ReasoningContent != "" {
				s.pending = append(s.pending, Event{Type: EventReasoningDelta, Text: chunk.ReasoningContent})
			}
			if chunk.Content != "" {
				s.pending = append(s.pending, Event{Type: EventTextDelta, Text: chunk.Content})
			}
		}
	}
}

// maxStreamErrors 单步内最多容忍的读取错误次数
const maxStreamErrors = 8

// finishStep 合并当前步骤的分片，有工具调用时排队执行并在之后开启下一步
func (s *EventStream) finishStep() {
	s.Close()
	msg := s.collectStep()

	if msg != nil && msg.ReasoningContent != "" {
		s.pending = append(s.pending, Event{Type: EventReasoningFinish, Text: joinReasoning(s.reasonings)})
	}

	if s.streamErrs > 0 || msg == nil || len(msg.ToolCalls) == 0 || s.tools.empty() || s.step >= s.maxSteps {
		s.done = true
		s.pending = append(s.pending, s.finishEvent())
		return
	}

	s.history = append(s.history, msg)
	for _, tc := range msg.ToolCalls {
		call := &entity.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: repairArguments(tc.Function.Arguments)}
		s.pending = append(s.pending, Event{Type: EventToolCall, ToolCall: call})
		s.queued = append(s.queued, call)
	}
	s.nextStep = true
}

// runQueuedTool 执行队首工具并排入结果事件
func (s *EventStream) runQueuedTool(ctx context.Context) {
	call := s.queued[0]
	s.queued = s.queued[1:]

	result, _ := s.tools.run(ctx, call.Name, call.Arguments)
	if call.Name == ToolThinking {
		s.reasonings = append(s.reasonings, ThoughtFromResult(result))
	}
	done := *call
	done.Result = result
	s.pending = append(s.pending, Event{Type: EventToolResult, ToolCall: &done})
	s.history = append(s.history, schema.ToolMessage(result, call.ID))
}

// collectStep 合并分片并记录最终文本、推理与用量
func (s *EventStream) collectStep() *schema.Message {
	if len(s.chunks) == 0 {
		return nil
	}
	msg, err := schema.ConcatMessages(s.chunks)
	if err != nil {
		s.resolveErr = &ResultResolutionError{Err: err}
		return nil
	}
	s.texts = append(s.texts, msg.Content)
	if msg.ReasoningContent != "" {
		s.reasonings = append(s.reasonings, msg.ReasoningContent)
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := entity.TokenUsage{
			PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
		}
		if s.usage == nil {
			s.usage = &u
		} else {
			sum := s.usage.Add(u)
			s.usage = &sum
		}
	}
	return msg
}

func (s *EventStream) finishEvent() Event {
	ev := Event{Type: EventFinish}
	if s.usage != nil {
		u := *s.usage
		ev.Usage = &u
	}
	return ev
}

// Final 流结束后的最终文本与推理，合并失败时返回 ResultResolutionError
func (s *EventStream) Final() (text, reasoning string, err error) {
	if s.resolveErr != nil {
		return "", "", s.resolveErr
	}
	if !s.done {
		return "", "", &ResultResolutionError{Err: errors.New("stream not finished")}
	}
	return strings.Join(s.texts, ""), joinReasoning(s.reasonings), nil
}

// joinReasoning 各步骤的推理以空行分隔
func joinReasoning(parts []string) string {
	out := ""
	for _, p := range parts {
		out = appendReasoning(out, p)
	}
	return out
}

// Usage 各步骤累计的上报用量
func (s *EventStream) Usage() *entity.TokenUsage {
	return s.usage
}

// Close 释放底层流
func (s *EventStream) Close() {
	if s.reader != nil && !s.closed {
		s.closed = true
		s.reader.Close()
	}
}
